package core

import "context"

// Renderer is the rendering surface that displays frames.
type Renderer interface {
	// Render receives a shapes frame verbatim.
	Render(payload []byte) error
	// SetLock marks the surface read-only while the optimizer is busy.
	SetLock(locked bool)
	// Download exports the current frame and returns where it was written.
	Download(ctx context.Context) (string, error)
}

// Sender transmits encoded request envelopes.
type Sender interface {
	Send(envelope []byte) error
}
