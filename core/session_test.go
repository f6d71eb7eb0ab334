package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"pkt.systems/penroseide/schema"
)

func TestNewSessionRequiresSender(t *testing.T) {
	if _, err := NewSession(SessionConfig{}, SessionDeps{}); err == nil {
		t.Fatalf("expected error without sender")
	}
}

func TestNewSessionRestoresDraft(t *testing.T) {
	h := newHarness(t, SessionConfig{Draft: "Label A", HasDraft: true})
	snap := h.session.Snapshot()
	if snap.Draft != "Label A" || snap.Committed != DefaultProgram {
		t.Fatalf("unexpected programs %q / %q", snap.Draft, snap.Committed)
	}
	if !snap.ProgramChanged() {
		t.Fatalf("expected restored draft to enable compile")
	}
}

func TestUnknownMessageLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	h.session.OnMessage(compileErrorFrame("boom"))
	before := h.session.Snapshot()
	eventsBefore := len(h.events.events)

	h.session.OnMessage([]byte(`{"type":"mystery","contents":{}}`))
	h.session.OnMessage([]byte(`not json`))
	h.session.OnMessage([]byte(`{"type":"shapes","contents":"oops"}`))

	if after := h.session.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("unknown message mutated state:\nbefore %+v\nafter  %+v", before, after)
	}
	if len(h.events.events) != eventsBefore {
		t.Fatalf("unknown message emitted events")
	}
	if h.session.Snapshot().CompileError != "boom" {
		t.Fatalf("unknown message must not clear compile error")
	}
}

func TestCompileThenFinalShapes(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	if err := h.session.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := h.sender.tags(); !reflect.DeepEqual(got, []string{"Edit"}) {
		t.Fatalf("unexpected frames %v", got)
	}
	h.session.OnMessage(shapes("final"))

	snap := h.session.Snapshot()
	if !snap.Converged || snap.CompileError != "" || !snap.HasRenderedOnce {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Committed != "Label A" || snap.ProgramChanged() {
		t.Fatalf("expected committed program to follow draft, got %+v", snap)
	}
	if len(h.renderer.frames) != 1 {
		t.Fatalf("expected one rendered frame, got %d", len(h.renderer.frames))
	}
}

func TestCompileDisabledWhenProgramUnchanged(t *testing.T) {
	for _, connected := range []bool{false, true} {
		h := newHarness(t, SessionConfig{})
		if connected {
			h.session.OnReady()
		}
		wantDisabled(t, h.session.Compile(), "program unchanged")
		wantDisabled(t, h.session.CompileAndRun(), "program unchanged")
		if len(h.sender.frames) != 0 {
			t.Fatalf("connected=%v: expected no frames, got %v", connected, h.sender.tags())
		}
	}
}

func TestCompileDisabledWhileDisconnected(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.session.Edit("Label A")
	wantDisabled(t, h.session.Compile(), "not connected")
	wantDisabled(t, h.session.ToggleAutostep(), "not connected")
	wantDisabled(t, h.session.Step(), "not connected")
	if h.session.Snapshot().Autostepping {
		t.Fatalf("rejected autostep toggle must not flip state")
	}
}

func TestCompileAndRunScenario(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	if err := h.session.CompileAndRun(); err != nil {
		t.Fatalf("compile and run: %v", err)
	}
	if got := h.sender.tags(); !reflect.DeepEqual(got, []string{"Edit", "Autostep"}) {
		t.Fatalf("unexpected frames %v", got)
	}
	if h.sender.frames[0].Seq != 1 || h.sender.frames[1].Seq != 2 {
		t.Fatalf("unexpected seqs %d %d", h.sender.frames[0].Seq, h.sender.frames[1].Seq)
	}
	if !h.session.Snapshot().Autostepping {
		t.Fatalf("expected autostepping after compile and run")
	}

	steps := []struct {
		flag      string
		converged bool
		busy      bool
	}{
		{flag: "initial", converged: true, busy: false},
		{flag: "intermediate", converged: false, busy: true},
		{flag: "intermediate", converged: false, busy: true},
		{flag: "final", converged: true, busy: false},
	}
	for _, step := range steps {
		h.session.OnMessage(shapes(step.flag))
		snap := h.session.Snapshot()
		if snap.Converged != step.converged || snap.Busy() != step.busy {
			t.Fatalf("after %s: converged=%v busy=%v", step.flag, snap.Converged, snap.Busy())
		}
	}
	if got, want := h.renderer.locks, []bool{false, true, false}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lock transitions %v want %v", got, want)
	}
}

func TestCompileAndRunJoint(t *testing.T) {
	h := newHarness(t, SessionConfig{JointCompileRun: true})
	h.connectedWithDraft(t, "Label A")
	if err := h.session.CompileAndRun(); err != nil {
		t.Fatalf("compile and run: %v", err)
	}
	if len(h.sender.frames) != 1 || h.sender.frames[0].Tag != "Edit" {
		t.Fatalf("expected a single Edit, got %v", h.sender.tags())
	}
	if string(h.sender.frames[0].Contents) != `{"program":"Label A","autostep":true}` {
		t.Fatalf("unexpected contents %s", h.sender.frames[0].Contents)
	}
	if !h.session.Snapshot().Autostepping {
		t.Fatalf("expected autostepping after joint compile and run")
	}
}

func TestErrorThenShapesClearsBanner(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	if err := h.session.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	h.session.OnMessage(compileErrorFrame("parse error at line 1"))
	snap := h.session.Snapshot()
	if snap.CompileError != "parse error at line 1" {
		t.Fatalf("expected compile error, got %q", snap.CompileError)
	}
	if !snap.Connected || !snap.Converged {
		t.Fatalf("error must not touch connection or convergence: %+v", snap)
	}
	if h.events.last(t).Type != schema.SessionEventCompileError {
		t.Fatalf("expected compile error event")
	}

	h.session.OnMessage(shapes("intermediate"))
	if h.session.Snapshot().CompileError != "" {
		t.Fatalf("expected shapes to clear compile error")
	}
}

func TestPlayErrorThenRecompile(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	if !h.session.Snapshot().Converged {
		t.Fatalf("new session must start converged")
	}
	if err := h.session.CompileAndRun(); err != nil {
		t.Fatalf("compile and run: %v", err)
	}
	snap := h.session.Snapshot()
	if snap.Busy() || h.session.RenderSink().Locked() {
		t.Fatalf("play must not lock before any frame: %+v", snap)
	}
	h.session.OnMessage(compileErrorFrame("parse error at line 1"))
	if reason := h.session.Snapshot().CompileBlocker(); reason != "" {
		t.Fatalf("expected compile enabled after error, got %q", reason)
	}
	h.session.Edit("Label B")
	if err := h.session.Compile(); err != nil {
		t.Fatalf("recompile after fixing the program: %v", err)
	}
	if got := h.sender.tags(); !reflect.DeepEqual(got, []string{"Edit", "Autostep", "Edit"}) {
		t.Fatalf("unexpected frames %v", got)
	}
	if got, want := h.renderer.locks, []bool{false}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lock transitions %v want %v", got, want)
	}
}

func TestReconnectLeavesCompileStateUntouched(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	if err := h.session.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	h.session.OnMessage(shapes("final"))
	h.session.OnMessage(compileErrorFrame("runtime error"))

	h.session.OnClosed(schema.CloseInfo{Failures: 1})
	snap := h.session.Snapshot()
	if snap.Connected || snap.LastError != schema.SocketErrorText {
		t.Fatalf("unexpected disconnected snapshot %+v", snap)
	}
	if snap.CompileError != "runtime error" || !snap.Converged || !snap.HasRenderedOnce {
		t.Fatalf("close must not touch compile state: %+v", snap)
	}

	h.session.OnReady()
	snap = h.session.Snapshot()
	if !snap.Connected || snap.LastError != "" {
		t.Fatalf("expected ready to clear advisory: %+v", snap)
	}
	if snap.CompileError != "runtime error" || !snap.Converged {
		t.Fatalf("ready must not touch compile state: %+v", snap)
	}
}

func TestUnreachableAdvisory(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.session.OnClosed(schema.CloseInfo{Failures: 5, Unreachable: true})
	snap := h.session.Snapshot()
	if !snap.Unreachable || snap.LastError != schema.UnreachableText {
		t.Fatalf("expected unreachable advisory, got %+v", snap)
	}
	h.session.OnReady()
	if snap := h.session.Snapshot(); snap.Unreachable || snap.LastError != "" {
		t.Fatalf("expected ready to clear unreachable, got %+v", snap)
	}
}

func TestIntermediateBeforeInitialDropped(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	if err := h.session.CompileAndRun(); err != nil {
		t.Fatalf("compile and run: %v", err)
	}
	h.session.OnMessage(shapes("intermediate"))
	if snap := h.session.Snapshot(); snap.HasRenderedOnce {
		t.Fatalf("intermediate frame from the previous job was accepted")
	}
	if len(h.renderer.frames) != 0 {
		t.Fatalf("dropped frame reached the renderer")
	}
	h.session.OnMessage(shapes("initial"))
	h.session.OnMessage(shapes("intermediate"))
	if len(h.renderer.frames) != 2 {
		t.Fatalf("expected frames after initial to render, got %d", len(h.renderer.frames))
	}
}

func TestStaleResponsesDropped(t *testing.T) {
	h := newHarness(t, SessionConfig{DropStale: true})
	h.connectedWithDraft(t, "Label A")
	if err := h.session.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	h.session.OnMessage(shapesSeq("initial", 1))
	h.session.Edit("Label B")
	if err := h.session.Compile(); err != nil {
		t.Fatalf("second compile: %v", err)
	}
	if gen := h.session.Snapshot().Generation; gen != 2 {
		t.Fatalf("expected generation 2, got %d", gen)
	}
	rendered := len(h.renderer.frames)
	h.session.OnMessage(shapesSeq("final", 1))
	h.session.OnMessage([]byte(`{"type":"error","contents":{"contents":"old"},"seq":1}`))
	if len(h.renderer.frames) != rendered || h.session.Snapshot().CompileError != "" {
		t.Fatalf("stale responses were applied")
	}
	h.session.OnMessage(shapesSeq("initial", 2))
	if len(h.renderer.frames) != rendered+1 {
		t.Fatalf("current response was dropped")
	}
}

func TestStaleResponsesKeptWhenDisabled(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	_ = h.session.Compile()
	h.session.Edit("Label B")
	_ = h.session.Compile()
	h.session.OnMessage([]byte(`{"type":"error","contents":{"contents":"old"},"seq":1}`))
	if h.session.Snapshot().CompileError != "old" {
		t.Fatalf("expected error to apply without stale filtering")
	}
}

func TestMessageDroppedWithoutRenderer(t *testing.T) {
	capture := &logCapture{}
	sender := &fakeSender{}
	session, err := NewSession(SessionConfig{}, SessionDeps{Sender: sender, Logger: newCaptureLogger(capture)})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	session.OnReady()
	before := session.Snapshot()
	session.OnMessage(shapes("final"))
	session.OnMessage(compileErrorFrame("boom"))
	if after := session.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("message without renderer mutated state")
	}
	var dropped int
	for _, entry := range capture.Entries() {
		if entryText(entry, "message", "msg") == "message dropped" {
			dropped++
		}
	}
	if dropped != 2 {
		t.Fatalf("expected two dropped-message logs, got %d", dropped)
	}
	if _, err := session.Download(context.Background()); !errors.Is(err, schema.ErrActionDisabled) {
		t.Fatalf("expected download to be disabled, got %v", err)
	}
}

func TestSendFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	h.sender.err = schema.ErrNotConnected
	before := h.session.Snapshot()
	if err := h.session.Compile(); !errors.Is(err, schema.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := h.session.ToggleAutostep(); !errors.Is(err, schema.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if after := h.session.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("failed send mutated state")
	}
}

func TestResampleGuards(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	wantDisabled(t, h.session.Resample(), "nothing rendered")
	_ = h.session.CompileAndRun()
	h.session.OnMessage(shapes("initial"))
	h.session.OnMessage(shapes("intermediate"))
	wantDisabled(t, h.session.Resample(), "optimizing")
	h.session.OnMessage(shapes("final"))
	if err := h.session.Resample(); err != nil {
		t.Fatalf("resample: %v", err)
	}
	if converged := h.session.Snapshot().Converged; !converged {
		t.Fatalf("resample must not touch convergence")
	}
	h.session.OnClosed(schema.CloseInfo{Failures: 1})
	wantDisabled(t, h.session.Resample(), "not connected")
}

func TestCompileDisabledWhileBusy(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	_ = h.session.CompileAndRun()
	h.session.OnMessage(shapes("initial"))
	h.session.OnMessage(shapes("intermediate"))
	h.session.Edit("Label B")
	wantDisabled(t, h.session.Compile(), "optimizing")
	if err := h.session.ToggleAutostep(); err != nil {
		t.Fatalf("autostep: %v", err)
	}
	if err := h.session.Compile(); err != nil {
		t.Fatalf("compile after pausing: %v", err)
	}
}

func TestStepSendsWithoutTouchingConvergence(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	_ = h.session.Compile()
	h.session.OnMessage(shapes("initial"))
	if err := h.session.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := h.sender.tags(); !reflect.DeepEqual(got, []string{"Edit", "Step"}) {
		t.Fatalf("unexpected frames %v", got)
	}
	if !h.session.Snapshot().Converged {
		t.Fatalf("step must not touch convergence")
	}
}

func TestBuildFollowsPlayOnBuild(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	if err := h.session.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if !h.session.Snapshot().Autostepping {
		t.Fatalf("expected build to start autostep with playOnBuild")
	}

	h = newHarness(t, SessionConfig{Settings: schema.Settings{Debug: true, PlayOnBuild: false}})
	h.connectedWithDraft(t, "Label A")
	if err := h.session.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if h.session.Snapshot().Autostepping || len(h.sender.frames) != 1 {
		t.Fatalf("expected plain compile without playOnBuild, frames %v", h.sender.tags())
	}
}

func TestToggleSettingPersists(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	if err := h.session.ToggleSetting(schema.SettingDebug); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !h.session.Snapshot().Settings.Debug {
		t.Fatalf("expected debug on")
	}
	if len(h.prefs.settings) != 1 || !h.prefs.settings[0].Debug || !h.prefs.settings[0].PlayOnBuild {
		t.Fatalf("unexpected persisted settings %+v", h.prefs.settings)
	}
	if err := h.session.ToggleSetting("bogus"); !errors.Is(err, schema.ErrInvalidSetting) {
		t.Fatalf("expected ErrInvalidSetting, got %v", err)
	}
	if len(h.prefs.settings) != 1 {
		t.Fatalf("invalid toggle must not persist")
	}
}

func TestEditPersistsDraft(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.session.Edit("Label A")
	h.session.Edit("Label A")
	h.session.Edit("Label B")
	if !reflect.DeepEqual(h.prefs.drafts, []string{"Label A", "Label B"}) {
		t.Fatalf("unexpected drafts %v", h.prefs.drafts)
	}
	if h.events.last(t).Type != schema.SessionEventProgram {
		t.Fatalf("expected program event")
	}
}

func TestToggleInspector(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.session.ToggleInspector()
	if !h.session.Snapshot().ShowInspector {
		t.Fatalf("expected inspector shown")
	}
	if len(h.prefs.settings) != 0 {
		t.Fatalf("inspector flag must not persist")
	}
}

func TestDownload(t *testing.T) {
	h := newHarness(t, SessionConfig{})
	h.connectedWithDraft(t, "Label A")
	if _, err := h.session.Download(context.Background()); !errors.Is(err, schema.ErrActionDisabled) {
		t.Fatalf("expected download disabled before render, got %v", err)
	}
	_ = h.session.Compile()
	h.session.OnMessage(shapes("initial"))
	path, err := h.session.Download(context.Background())
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if path != "/tmp/frame.json" {
		t.Fatalf("unexpected path %q", path)
	}
}

func TestRenderSinkAttachAppliesLock(t *testing.T) {
	sink := NewRenderSink(nil)
	if sink.Ready() {
		t.Fatalf("expected sink without renderer")
	}
	if err := sink.OnShapes([]byte("{}")); !errors.Is(err, schema.ErrRendererUnavailable) {
		t.Fatalf("expected ErrRendererUnavailable, got %v", err)
	}
	if _, err := sink.Download(context.Background()); !errors.Is(err, schema.ErrRendererUnavailable) {
		t.Fatalf("expected ErrRendererUnavailable, got %v", err)
	}
	sink.SetLock(true)
	renderer := &fakeRenderer{}
	sink.Attach(renderer)
	if !sink.Locked() || !reflect.DeepEqual(renderer.locks, []bool{true}) {
		t.Fatalf("expected lock applied on attach, got %v", renderer.locks)
	}
}
