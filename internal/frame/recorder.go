package frame

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pkt.systems/penroseide/internal/logx"
	"pkt.systems/penroseide/internal/persist"
	"pkt.systems/penroseide/schema"
	"pkt.systems/pslog"
)

// Listener is notified after every rendered frame.
type Listener func(payload []byte, locked bool)

// Recorder keeps the most recent frame in memory and exports it on download.
type Recorder struct {
	dir string
	log pslog.Logger
	now func() time.Time

	mu       sync.Mutex
	last     []byte
	count    int
	locked   bool
	listener Listener
}

// NewRecorder constructs a recorder that downloads into dir.
func NewRecorder(dir string, logger pslog.Logger) (*Recorder, error) {
	if dir == "" {
		return nil, errors.New("frame output dir is required")
	}
	return &Recorder{dir: dir, log: logx.Or(logger), now: time.Now}, nil
}

// OnRender installs a listener for rendered frames.
func (r *Recorder) OnRender(listener Listener) {
	r.mu.Lock()
	r.listener = listener
	r.mu.Unlock()
}

// Render stores a copy of the frame.
func (r *Recorder) Render(payload []byte) error {
	if len(payload) == 0 {
		return errors.New("empty frame")
	}
	r.mu.Lock()
	r.last = append(r.last[:0], payload...)
	r.count++
	locked := r.locked
	listener := r.listener
	count := r.count
	r.mu.Unlock()
	r.log.Trace("frame stored", "bytes", len(payload), "frames", count)
	if listener != nil {
		listener(payload, locked)
	}
	return nil
}

// SetLock marks the surface read-only while the optimizer is busy.
func (r *Recorder) SetLock(locked bool) {
	r.mu.Lock()
	r.locked = locked
	r.mu.Unlock()
}

// Locked reports the current lock flag.
func (r *Recorder) Locked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locked
}

// Frame returns a copy of the last frame.
func (r *Recorder) Frame() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return nil, false
	}
	return append([]byte(nil), r.last...), true
}

// Count returns how many frames were rendered.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Download writes the last frame as indented JSON and returns its path.
func (r *Recorder) Download(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, ok := r.Frame()
	if !ok {
		return "", schema.ErrNothingRendered
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		out.Reset()
		out.Write(data)
	}
	out.WriteByte('\n')
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	name := "frame-" + r.now().UTC().Format("20060102T150405.000000000Z") + ".json"
	path := filepath.Join(r.dir, name)
	if err := persist.WriteFileAtomic(path, out.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	r.log.Debug("frame exported", "path", path, "bytes", out.Len())
	return path, nil
}
