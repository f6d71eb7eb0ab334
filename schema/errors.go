package schema

import "errors"

var (
	// ErrNotConnected indicates the channel has no open connection.
	ErrNotConnected = errors.New("not connected")
	// ErrActionDisabled indicates a user action was rejected by its guard.
	ErrActionDisabled = errors.New("action disabled")
	// ErrRendererUnavailable indicates no rendering surface is attached.
	ErrRendererUnavailable = errors.New("renderer not attached")
	// ErrNothingRendered indicates no frame has been received yet.
	ErrNothingRendered = errors.New("nothing rendered")
	// ErrInvalidSetting indicates an unknown preference name.
	ErrInvalidSetting = errors.New("invalid setting")
	// ErrClientStopped indicates the client loop is no longer running.
	ErrClientStopped = errors.New("client stopped")
	// ErrClientRunning indicates Run was called on a running client.
	ErrClientRunning = errors.New("client already running")
)
