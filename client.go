package penroseide

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pkt.systems/penroseide/core"
	"pkt.systems/penroseide/internal/channel"
	"pkt.systems/penroseide/internal/eventbus"
	"pkt.systems/penroseide/internal/logx"
	"pkt.systems/penroseide/internal/persist"
	"pkt.systems/penroseide/schema"
	"pkt.systems/pslog"
)

const inboxDepth = 64

// Config configures the client.
type Config struct {
	Channel channel.Config
	// StateDir holds the persisted settings and draft; empty disables persistence.
	StateDir        string
	DraftDelay      time.Duration
	SettingsDelay   time.Duration
	JointCompileRun bool
	DropStale       bool
	InitialProgram  string
}

// Deps captures optional collaborators.
type Deps struct {
	Renderer  core.Renderer
	EventSink core.EventSink
	Logger    pslog.Logger
}

// Client drives one editing session against the optimizer server. All state
// transitions run on the goroutine executing Run.
type Client struct {
	id      schema.SessionID
	log     pslog.Logger
	session *core.Session
	channel *channel.Manager
	bus     *eventbus.Bus
	prefs   *persist.Prefs

	inbox    chan func()
	stopped  chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
}

// New constructs a client and restores persisted preferences.
func New(cfg Config, deps Deps) (*Client, error) {
	id := schema.SessionID(uuid.NewString())
	log := logx.Or(deps.Logger).With("session", id)
	c := &Client{
		id:      id,
		log:     log,
		bus:     eventbus.New(log),
		inbox:   make(chan func(), inboxDepth),
		stopped: make(chan struct{}),
	}

	sessionCfg := core.SessionConfig{
		ID:              id,
		InitialProgram:  cfg.InitialProgram,
		Settings:        schema.DefaultSettings(),
		JointCompileRun: cfg.JointCompileRun,
		DropStale:       cfg.DropStale,
	}
	var prefs core.PrefsSink
	if cfg.StateDir != "" {
		store, err := persist.NewStoreWithLogger(cfg.StateDir, log)
		if err != nil {
			return nil, err
		}
		c.prefs = persist.NewPrefs(store, cfg.SettingsDelay, cfg.DraftDelay)
		restored, err := c.prefs.Restore()
		if err != nil {
			log.Warn("client restore incomplete", "err", err)
		}
		sessionCfg.Settings = restored.Settings
		sessionCfg.Draft = restored.Draft
		sessionCfg.HasDraft = restored.HasDraft
		prefs = c.prefs
	}

	mgr, err := channel.NewWithLogger(cfg.Channel, transport{c}, log)
	if err != nil {
		return nil, err
	}
	c.channel = mgr

	sink := core.NewRenderSink(log)
	if deps.Renderer != nil {
		sink.Attach(deps.Renderer)
	}
	services := []core.EventSink{c.bus}
	if deps.EventSink != nil {
		services = append(services, deps.EventSink)
	}
	session, err := core.NewSession(sessionCfg, core.SessionDeps{
		Sender:     mgr,
		RenderSink: sink,
		Events:     eventFanout{sinks: services},
		Prefs:      prefs,
		Logger:     logx.Or(deps.Logger),
	})
	if err != nil {
		return nil, err
	}
	c.session = session
	return c, nil
}

// ID returns the session id used in logs and events.
func (c *Client) ID() schema.SessionID {
	return c.id
}

// Endpoint returns the server address.
func (c *Client) Endpoint() string {
	return c.channel.Endpoint()
}

// Run connects to the server and processes events until ctx is done. Pending
// preferences are flushed before it returns.
func (c *Client) Run(ctx context.Context) error {
	select {
	case <-c.stopped:
		return schema.ErrClientStopped
	default:
	}
	if !c.running.CompareAndSwap(false, true) {
		return schema.ErrClientRunning
	}
	ctx = logx.ContextWithSessionLogger(ctx, c.log, c.id)
	c.log.Info("client start", "endpoint", c.channel.Endpoint())

	chanErr := make(chan error, 1)
	go func() { chanErr <- c.channel.Run(ctx) }()

loop:
	for {
		select {
		case task := <-c.inbox:
			task()
		case <-ctx.Done():
			break loop
		}
	}
	c.stopOnce.Do(func() { close(c.stopped) })
	err := <-chanErr
	if c.prefs != nil {
		if flushErr := c.prefs.Flush(); flushErr != nil {
			c.log.Warn("client prefs flush failed", "err", flushErr)
			err = errors.Join(err, flushErr)
		}
	}
	c.log.Info("client stopped")
	return err
}

// Subscribe returns a stream of session events starting with the latest one.
func (c *Client) Subscribe() (<-chan schema.SessionEvent, func()) {
	return c.bus.Subscribe()
}

// AttachRenderer installs the rendering surface. Messages received before a
// renderer is attached are dropped.
func (c *Client) AttachRenderer(renderer core.Renderer) {
	c.session.RenderSink().Attach(renderer)
}

// Edit replaces the draft program.
func (c *Client) Edit(ctx context.Context, text string) error {
	return c.do(ctx, func() error {
		c.session.Edit(text)
		return nil
	})
}

// Compile sends the draft for compilation.
func (c *Client) Compile(ctx context.Context) error {
	return c.do(ctx, c.session.Compile)
}

// CompileAndRun compiles the draft and starts autostep.
func (c *Client) CompileAndRun(ctx context.Context) error {
	return c.do(ctx, c.session.CompileAndRun)
}

// Build runs the primary action.
func (c *Client) Build(ctx context.Context) error {
	return c.do(ctx, c.session.Build)
}

// Step requests a single optimization step.
func (c *Client) Step(ctx context.Context) error {
	return c.do(ctx, c.session.Step)
}

// Resample requests a new random layout.
func (c *Client) Resample(ctx context.Context) error {
	return c.do(ctx, c.session.Resample)
}

// ToggleAutostep flips continuous optimization.
func (c *Client) ToggleAutostep(ctx context.Context) error {
	return c.do(ctx, c.session.ToggleAutostep)
}

// ToggleSetting flips a persisted preference.
func (c *Client) ToggleSetting(ctx context.Context, name schema.SettingName) error {
	return c.do(ctx, func() error { return c.session.ToggleSetting(name) })
}

// ToggleInspector flips the inspector panel.
func (c *Client) ToggleInspector(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.session.ToggleInspector()
		return nil
	})
}

// Download exports the current frame.
func (c *Client) Download(ctx context.Context) (string, error) {
	var path string
	err := c.do(ctx, func() error {
		var err error
		path, err = c.session.Download(ctx)
		return err
	})
	return path, err
}

// Snapshot returns the current session state.
func (c *Client) Snapshot(ctx context.Context) (schema.SessionSnapshot, error) {
	var snap schema.SessionSnapshot
	err := c.do(ctx, func() error {
		snap = c.session.Snapshot()
		return nil
	})
	return snap, err
}

// do runs fn on the loop goroutine and waits for its result.
func (c *Client) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	task := func() { done <- fn() }
	select {
	case c.inbox <- task:
	case <-c.stopped:
		return schema.ErrClientStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-c.stopped:
		return schema.ErrClientStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) post(task func()) {
	select {
	case c.inbox <- task:
	case <-c.stopped:
	}
}

// transport adapts channel callbacks into loop tasks, preserving delivery order.
type transport struct {
	c *Client
}

func (t transport) OnReady() {
	t.c.post(t.c.session.OnReady)
}

func (t transport) OnMessage(raw []byte) {
	t.c.post(func() { t.c.session.OnMessage(raw) })
}

func (t transport) OnClosed(info schema.CloseInfo) {
	t.c.post(func() { t.c.session.OnClosed(info) })
}
