package schema

// Advisory texts shown by the views.
const (
	SocketErrorText = "Error: could not connect to WebSocket."
	UnreachableText = "Error: server unreachable."
	OptimizingText  = "optimizing..."
)

// SessionSnapshot is a point-in-time copy of the session state.
type SessionSnapshot struct {
	ID              SessionID `json:"id"`
	Connected       bool      `json:"connected"`
	Unreachable     bool      `json:"unreachable"`
	LastError       string    `json:"last_error,omitempty"`
	CompileError    string    `json:"compile_error,omitempty"`
	HasRenderedOnce bool      `json:"has_rendered_once"`
	Converged       bool      `json:"converged"`
	Autostepping    bool      `json:"autostepping"`
	Draft           string    `json:"draft"`
	Committed       string    `json:"committed"`
	Settings        Settings  `json:"settings"`
	ShowInspector   bool      `json:"show_inspector"`
	Generation      uint64    `json:"generation"`
}

// Busy reports whether the server is actively optimizing: autostep is on and
// the last frame was not converged. The rendering surface is locked while busy.
func (s SessionSnapshot) Busy() bool {
	return s.Autostepping && !s.Converged
}

// ProgramChanged reports whether the draft differs from the last compiled program.
func (s SessionSnapshot) ProgramChanged() bool {
	return s.Draft != s.Committed
}

// CompileBlocker returns why compile is disabled, or "" when it is allowed.
func (s SessionSnapshot) CompileBlocker() string {
	switch {
	case !s.ProgramChanged():
		return "program unchanged"
	case !s.Connected:
		return "not connected"
	case s.Busy():
		return "optimizing"
	default:
		return ""
	}
}

// ResampleBlocker returns why resample is disabled, or "" when it is allowed.
func (s SessionSnapshot) ResampleBlocker() string {
	switch {
	case !s.HasRenderedOnce:
		return "nothing rendered"
	case s.Busy():
		return "optimizing"
	case !s.Connected:
		return "not connected"
	default:
		return ""
	}
}

// StepBlocker returns why step and autostep are disabled, or "" when allowed.
func (s SessionSnapshot) StepBlocker() string {
	if !s.Connected {
		return "not connected"
	}
	return ""
}

// DownloadBlocker returns why download is disabled, or "" when it is allowed.
func (s SessionSnapshot) DownloadBlocker() string {
	if !s.HasRenderedOnce {
		return "nothing rendered"
	}
	return ""
}

// BuildLabel is the label of the primary action.
func (s SessionSnapshot) BuildLabel() string {
	if s.Settings.PlayOnBuild {
		return "play"
	}
	return "build"
}

// AutostepLabel is the label of the autostep toggle.
func (s SessionSnapshot) AutostepLabel() string {
	if s.Autostepping {
		return "autostep (on)"
	}
	return "autostep (off)"
}
