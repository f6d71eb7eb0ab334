package core

import (
	"pkt.systems/penroseide/schema"
	"pkt.systems/pslog"
)

// DefaultProgram is the template loaded before any draft was saved.
const DefaultProgram = "AutoLabel All\n"

// SessionConfig captures the restored state a session starts from.
type SessionConfig struct {
	ID schema.SessionID
	// InitialProgram seeds both the draft and the committed program.
	InitialProgram string
	// Draft replaces the initial draft when HasDraft is set.
	Draft    string
	HasDraft bool
	Settings schema.Settings
	// JointCompileRun sends compile-and-run as one Edit carrying autostep.
	JointCompileRun bool
	// DropStale discards responses echoing a seq older than the latest Edit.
	DropStale bool
}

// SessionDeps captures the collaborators of a session. Sender is required.
type SessionDeps struct {
	Sender     Sender
	RenderSink *RenderSink
	Events     EventSink
	Prefs      PrefsSink
	Logger     pslog.Logger
}
