package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"pkt.systems/penroseide/schema"
	"pkt.systems/pslog"
)

type sentFrame struct {
	Tag      string          `json:"tag"`
	Contents json.RawMessage `json:"contents"`
	Seq      uint64          `json:"seq"`
}

type fakeSender struct {
	frames []sentFrame
	err    error
}

func (f *fakeSender) Send(envelope []byte) error {
	if f.err != nil {
		return f.err
	}
	var frame sentFrame
	if err := json.Unmarshal(envelope, &frame); err != nil {
		return err
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSender) tags() []string {
	out := make([]string, 0, len(f.frames))
	for _, frame := range f.frames {
		out = append(out, frame.Tag)
	}
	return out
}

type fakeRenderer struct {
	frames [][]byte
	locks  []bool
	path   string
}

func (f *fakeRenderer) Render(payload []byte) error {
	f.frames = append(f.frames, append([]byte(nil), payload...))
	return nil
}

func (f *fakeRenderer) SetLock(locked bool) {
	f.locks = append(f.locks, locked)
}

func (f *fakeRenderer) Download(context.Context) (string, error) {
	if len(f.frames) == 0 {
		return "", schema.ErrNothingRendered
	}
	return f.path, nil
}

type recordingEvents struct {
	events []schema.SessionEvent
}

func (r *recordingEvents) OnSessionEvent(event schema.SessionEvent) {
	r.events = append(r.events, event)
}

func (r *recordingEvents) last(t *testing.T) schema.SessionEvent {
	t.Helper()
	if len(r.events) == 0 {
		t.Fatalf("expected at least one event")
	}
	return r.events[len(r.events)-1]
}

type fakePrefs struct {
	settings []schema.Settings
	drafts   []string
}

func (f *fakePrefs) SaveSettings(settings schema.Settings) {
	f.settings = append(f.settings, settings)
}

func (f *fakePrefs) SaveDraft(text string) {
	f.drafts = append(f.drafts, text)
}

type harness struct {
	session  *Session
	sender   *fakeSender
	renderer *fakeRenderer
	events   *recordingEvents
	prefs    *fakePrefs
}

func newHarness(t *testing.T, cfg SessionConfig) *harness {
	t.Helper()
	h := &harness{
		sender:   &fakeSender{},
		renderer: &fakeRenderer{path: "/tmp/frame.json"},
		events:   &recordingEvents{},
		prefs:    &fakePrefs{},
	}
	sink := NewRenderSink(nil)
	sink.Attach(h.renderer)
	if cfg.Settings == (schema.Settings{}) {
		cfg.Settings = schema.DefaultSettings()
	}
	session, err := NewSession(cfg, SessionDeps{
		Sender:     h.sender,
		RenderSink: sink,
		Events:     h.events,
		Prefs:      h.prefs,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	h.session = session
	return h
}

func (h *harness) connectedWithDraft(t *testing.T, draft string) {
	t.Helper()
	h.session.OnReady()
	h.session.Edit(draft)
}

func shapes(flag string) []byte {
	return []byte(`{"type":"shapes","contents":{"flag":"` + flag + `","shapes":[]}}`)
}

func shapesSeq(flag string, seq int) []byte {
	return []byte(`{"type":"shapes","contents":{"flag":"` + flag + `","shapes":[]},"seq":` + itoa(seq) + `}`)
}

func compileErrorFrame(message string) []byte {
	return []byte(`{"type":"error","contents":{"contents":"` + message + `"}}`)
}

func itoa(v int) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func wantDisabled(t *testing.T, err error, reason string) {
	t.Helper()
	if !errors.Is(err, schema.ErrActionDisabled) {
		t.Fatalf("expected ErrActionDisabled, got %v", err)
	}
	if !strings.Contains(err.Error(), reason) {
		t.Fatalf("expected reason %q in %q", reason, err.Error())
	}
}

type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *logCapture) Entries() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, line := range strings.Split(c.buf.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(line), &payload); err == nil {
			out = append(out, payload)
		}
	}
	return out
}

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.TraceLevel,
	})
}

func entryText(entry map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := entry[key].(string); ok {
			return value
		}
	}
	return ""
}
