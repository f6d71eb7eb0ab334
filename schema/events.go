package schema

import "time"

// SessionEventType identifies what changed in a session event.
type SessionEventType string

const (
	// SessionEventConnection reports connection readiness changes.
	SessionEventConnection SessionEventType = "connection"
	// SessionEventProgram reports draft or committed program changes.
	SessionEventProgram SessionEventType = "program"
	// SessionEventCompileError reports a server-side compile or runtime error.
	SessionEventCompileError SessionEventType = "compile_error"
	// SessionEventProgress reports a rendered frame and convergence updates.
	SessionEventProgress SessionEventType = "progress"
	// SessionEventAutostep reports autostep mode changes.
	SessionEventAutostep SessionEventType = "autostep"
	// SessionEventSettings reports preference or inspector changes.
	SessionEventSettings SessionEventType = "settings"
)

// SessionEvent is emitted after every accepted state transition.
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	Snapshot  SessionSnapshot  `json:"snapshot"`
	Timestamp time.Time        `json:"timestamp"`
}
