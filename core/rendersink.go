package core

import (
	"context"
	"sync"

	"pkt.systems/penroseide/internal/logx"
	"pkt.systems/penroseide/schema"
	"pkt.systems/pslog"
)

// RenderSink forwards frames to the attached renderer and keeps its lock in
// sync. It is safe to attach a renderer from any goroutine.
type RenderSink struct {
	mu       sync.RWMutex
	renderer Renderer
	locked   bool
	log      pslog.Logger
}

// NewRenderSink constructs an empty sink.
func NewRenderSink(logger pslog.Logger) *RenderSink {
	return &RenderSink{log: logx.Or(logger)}
}

// Attach installs the renderer and applies the current lock state to it.
func (r *RenderSink) Attach(renderer Renderer) {
	r.mu.Lock()
	r.renderer = renderer
	locked := r.locked
	r.mu.Unlock()
	if renderer != nil {
		renderer.SetLock(locked)
		r.log.Debug("renderer attached", "locked", locked)
	}
}

// Ready reports whether a renderer is attached.
func (r *RenderSink) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.renderer != nil
}

// OnShapes forwards a frame to the renderer.
func (r *RenderSink) OnShapes(payload []byte) error {
	r.mu.RLock()
	renderer := r.renderer
	r.mu.RUnlock()
	if renderer == nil {
		return schema.ErrRendererUnavailable
	}
	return renderer.Render(payload)
}

// SetLock records the lock flag and passes it on when a renderer is attached.
func (r *RenderSink) SetLock(locked bool) {
	r.mu.Lock()
	r.locked = locked
	renderer := r.renderer
	r.mu.Unlock()
	if renderer != nil {
		renderer.SetLock(locked)
	}
}

// Locked returns the last lock flag.
func (r *RenderSink) Locked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locked
}

// Download asks the renderer to export the current frame.
func (r *RenderSink) Download(ctx context.Context) (string, error) {
	r.mu.RLock()
	renderer := r.renderer
	r.mu.RUnlock()
	if renderer == nil {
		return "", schema.ErrRendererUnavailable
	}
	return renderer.Download(ctx)
}
