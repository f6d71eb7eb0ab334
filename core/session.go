package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/penroseide/internal/logx"
	"pkt.systems/penroseide/internal/protocol"
	"pkt.systems/penroseide/schema"
	"pkt.systems/pslog"
)

// Session is the authoritative client state machine. It is not safe for
// concurrent use: every method must be called from the single goroutine that
// owns the session.
type Session struct {
	id        schema.SessionID
	sender    Sender
	sink      *RenderSink
	events    EventSink
	prefs     PrefsSink
	log       pslog.Logger
	joint     bool
	dropStale bool
	now       func() time.Time

	seq             uint64
	generation      uint64
	awaitingInitial bool
	locked          bool

	connected       bool
	unreachable     bool
	lastError       string
	compileError    string
	hasRenderedOnce bool
	converged       bool
	autostepping    bool
	draft           string
	committed       string
	settings        schema.Settings
	showInspector   bool
}

// NewSession constructs a session from restored state.
func NewSession(cfg SessionConfig, deps SessionDeps) (*Session, error) {
	if deps.Sender == nil {
		return nil, errors.New("session sender is required")
	}
	logger := logx.Or(deps.Logger)
	if cfg.ID != "" {
		logger = logger.With("session", cfg.ID)
	}
	sink := deps.RenderSink
	if sink == nil {
		sink = NewRenderSink(logger)
	}
	program := cfg.InitialProgram
	if program == "" {
		program = DefaultProgram
	}
	draft := program
	if cfg.HasDraft {
		draft = cfg.Draft
	}
	return &Session{
		id:        cfg.ID,
		sender:    deps.Sender,
		sink:      sink,
		events:    deps.Events,
		prefs:     deps.Prefs,
		log:       logger,
		joint:     cfg.JointCompileRun,
		dropStale: cfg.DropStale,
		now:       time.Now,
		draft:     draft,
		committed: program,
		settings:  cfg.Settings,
		converged: true,
	}, nil
}

// RenderSink returns the sink frames are forwarded to.
func (s *Session) RenderSink() *RenderSink {
	return s.sink
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() schema.SessionSnapshot {
	return schema.SessionSnapshot{
		ID:              s.id,
		Connected:       s.connected,
		Unreachable:     s.unreachable,
		LastError:       s.lastError,
		CompileError:    s.compileError,
		HasRenderedOnce: s.hasRenderedOnce,
		Converged:       s.converged,
		Autostepping:    s.autostepping,
		Draft:           s.draft,
		Committed:       s.committed,
		Settings:        s.settings,
		ShowInspector:   s.showInspector,
		Generation:      s.generation,
	}
}

// OnReady records an open connection.
func (s *Session) OnReady() {
	s.connected = true
	s.unreachable = false
	s.lastError = ""
	s.log.Info("session connected")
	s.emit(schema.SessionEventConnection)
}

// OnClosed records a lost connection or failed attempt. Reconnecting is the
// channel's job; compile and progress state are left as they are.
func (s *Session) OnClosed(info schema.CloseInfo) {
	s.connected = false
	s.unreachable = info.Unreachable
	if info.Unreachable {
		s.lastError = schema.UnreachableText
	} else {
		s.lastError = schema.SocketErrorText
	}
	s.log.Debug("session disconnected", "failures", info.Failures, "unreachable", info.Unreachable)
	s.emit(schema.SessionEventConnection)
}

// OnMessage decodes a server frame and applies it.
func (s *Session) OnMessage(raw []byte) {
	if !s.sink.Ready() {
		s.log.Error("message dropped", "err", schema.ErrRendererUnavailable, "bytes", len(raw))
		return
	}
	resp := protocol.Decode(raw)
	log := s.log
	if resp.HasSeq {
		log = logx.WithSeq(log, resp.Seq)
	}
	switch resp.Kind {
	case protocol.KindError:
		if s.stale(resp) {
			log.Debug("stale error dropped", "generation", s.generation)
			return
		}
		s.compileError = resp.Message
		s.awaitingInitial = false
		log.Info("compile error", "message", resp.Message)
		s.emit(schema.SessionEventCompileError)
	case protocol.KindShapes:
		s.onShapes(log, resp)
	default:
		if resp.Err != nil {
			log.Warn("undecodable message", "tag", resp.Tag, "err", resp.Err, "preview", logx.Preview(raw, 128))
			return
		}
		log.Warn("unknown message", "tag", resp.Tag)
	}
}

func (s *Session) onShapes(log pslog.Logger, resp protocol.Response) {
	if s.stale(resp) {
		log.Debug("stale frame dropped", "generation", s.generation, "flag", resp.Flag)
		return
	}
	if s.awaitingInitial && resp.Flag == schema.FlagIntermediate {
		log.Debug("frame from previous job dropped", "generation", s.generation)
		return
	}
	s.compileError = ""
	s.hasRenderedOnce = true
	s.converged = resp.Flag.Converged()
	s.awaitingInitial = false
	if err := s.sink.OnShapes(resp.Payload); err != nil {
		log.Error("render failed", "err", err)
	}
	log.Trace("frame rendered", "flag", resp.Flag, "converged", s.converged)
	s.syncLock()
	s.emit(schema.SessionEventProgress)
}

func (s *Session) stale(resp protocol.Response) bool {
	return s.dropStale && resp.HasSeq && resp.Seq < s.generation
}

// Edit replaces the draft with the full editor text.
func (s *Session) Edit(text string) {
	if text == s.draft {
		return
	}
	s.draft = text
	if s.prefs != nil {
		s.prefs.SaveDraft(text)
	}
	s.emit(schema.SessionEventProgram)
}

// Compile sends the draft for compilation.
func (s *Session) Compile() error {
	if reason := s.Snapshot().CompileBlocker(); reason != "" {
		return disabled("compile", reason)
	}
	return s.sendEdit(false)
}

// CompileAndRun compiles the draft and starts autostep.
func (s *Session) CompileAndRun() error {
	if reason := s.Snapshot().CompileBlocker(); reason != "" {
		return disabled("compile", reason)
	}
	if s.joint {
		return s.sendEdit(true)
	}
	if err := s.sendEdit(false); err != nil {
		return err
	}
	return s.sendAutostepToggle()
}

// Build runs the primary action: compile-and-run when playOnBuild is set,
// otherwise a plain compile.
func (s *Session) Build() error {
	if s.settings.PlayOnBuild {
		return s.CompileAndRun()
	}
	return s.Compile()
}

func (s *Session) sendEdit(autostep bool) error {
	seq := s.seq + 1
	if err := s.send(protocol.EncodeEdit(seq, s.draft, autostep)); err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	s.seq = seq
	s.committed = s.draft
	s.autostepping = autostep
	s.generation = seq
	s.awaitingInitial = true
	logx.WithSeq(s.log, seq).Info("program submitted", "bytes", len(s.committed), "autostep", autostep)
	s.syncLock()
	s.emit(schema.SessionEventProgram)
	return nil
}

// ToggleAutostep flips continuous optimization on the server.
func (s *Session) ToggleAutostep() error {
	if reason := s.Snapshot().StepBlocker(); reason != "" {
		return disabled("autostep", reason)
	}
	return s.sendAutostepToggle()
}

func (s *Session) sendAutostepToggle() error {
	seq := s.seq + 1
	if err := s.send(protocol.EncodeAutostepToggle(seq)); err != nil {
		return fmt.Errorf("autostep: %w", err)
	}
	s.seq = seq
	s.autostepping = !s.autostepping
	logx.WithSeq(s.log, seq).Debug("autostep toggled", "autostepping", s.autostepping)
	s.syncLock()
	s.emit(schema.SessionEventAutostep)
	return nil
}

// Step asks the server for one optimization step.
func (s *Session) Step() error {
	if reason := s.Snapshot().StepBlocker(); reason != "" {
		return disabled("step", reason)
	}
	seq := s.seq + 1
	if err := s.send(protocol.EncodeStep(seq)); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	s.seq = seq
	return nil
}

// Resample asks the server for a new random layout of the current diagram.
func (s *Session) Resample() error {
	if reason := s.Snapshot().ResampleBlocker(); reason != "" {
		return disabled("resample", reason)
	}
	seq := s.seq + 1
	if err := s.send(protocol.EncodeResample(seq)); err != nil {
		return fmt.Errorf("resample: %w", err)
	}
	s.seq = seq
	return nil
}

// ToggleSetting flips a preference and persists the new settings.
func (s *Session) ToggleSetting(name schema.SettingName) error {
	next, err := s.settings.Toggle(name)
	if err != nil {
		return err
	}
	s.settings = next
	if s.prefs != nil {
		s.prefs.SaveSettings(next)
	}
	s.log.Debug("setting toggled", "setting", name, "debug", next.Debug, "play_on_build", next.PlayOnBuild)
	s.emit(schema.SessionEventSettings)
	return nil
}

// ToggleInspector flips the inspector panel. The flag is not persisted.
func (s *Session) ToggleInspector() {
	s.showInspector = !s.showInspector
	s.emit(schema.SessionEventSettings)
}

// Download exports the current frame through the renderer.
func (s *Session) Download(ctx context.Context) (string, error) {
	if reason := s.Snapshot().DownloadBlocker(); reason != "" {
		return "", disabled("download", reason)
	}
	path, err := s.sink.Download(ctx)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	s.log.Info("frame downloaded", "path", path)
	return path, nil
}

func (s *Session) send(envelope []byte) error {
	if err := s.sender.Send(envelope); err != nil {
		s.log.Warn("send failed", "err", err)
		return err
	}
	return nil
}

func (s *Session) syncLock() {
	busy := s.autostepping && !s.converged
	if busy == s.locked {
		return
	}
	s.locked = busy
	s.sink.SetLock(busy)
}

func (s *Session) emit(kind schema.SessionEventType) {
	if s.events == nil {
		return
	}
	s.events.OnSessionEvent(schema.SessionEvent{
		Type:      kind,
		Snapshot:  s.Snapshot(),
		Timestamp: s.now(),
	})
}

func disabled(action, reason string) error {
	return fmt.Errorf("%s: %w: %s", action, schema.ErrActionDisabled, reason)
}
