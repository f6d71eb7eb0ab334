package schema

// SessionID identifies a client session in logs and events.
type SessionID string

// Flag is the optimization progress marker carried by shapes responses.
type Flag string

const (
	// FlagInitial marks the first frame of a freshly compiled diagram.
	FlagInitial Flag = "initial"
	// FlagIntermediate marks a frame produced while optimization is still running.
	FlagIntermediate Flag = "intermediate"
	// FlagFinal marks the frame produced once optimization converged.
	FlagFinal Flag = "final"
)

// ParseFlag maps a wire flag to a Flag. Only the exact strings "initial" and
// "final" are recognized; anything else is intermediate.
func ParseFlag(value string) Flag {
	switch value {
	case string(FlagInitial):
		return FlagInitial
	case string(FlagFinal):
		return FlagFinal
	default:
		return FlagIntermediate
	}
}

// Converged reports whether a frame with this flag means the layout is stable.
func (f Flag) Converged() bool {
	return f == FlagInitial || f == FlagFinal
}

// CloseInfo describes a connection loss or a failed connection attempt.
type CloseInfo struct {
	Err error
	// Failures counts consecutive attempts that ended without a usable connection.
	Failures int
	// Unreachable is set once Failures crossed the configured threshold.
	Unreachable bool
}
