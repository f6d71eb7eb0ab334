package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"pkt.systems/penroseide/internal/logx"
	"pkt.systems/penroseide/schema"
	"pkt.systems/pslog"
)

// Handler receives connection lifecycle events and raw frames. Calls are made
// sequentially from the manager's goroutine.
type Handler interface {
	OnReady()
	OnMessage(raw []byte)
	OnClosed(info schema.CloseInfo)
}

// Manager owns the websocket connection to the optimizer server and keeps it
// alive: every close or failed dial is reported and followed by a new attempt.
type Manager struct {
	cfg     Config
	handler Handler
	dialer  *websocket.Dialer
	policy  backoff.BackOff
	log     pslog.Logger
	sleep   func(ctx context.Context, d time.Duration) bool

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	running  atomic.Bool
	attempts atomic.Uint64
}

// New constructs a Manager.
func New(cfg Config, handler Handler) (*Manager, error) {
	return NewWithLogger(cfg, handler, nil)
}

// NewWithLogger constructs a Manager with logging.
func NewWithLogger(cfg Config, handler Handler, logger pslog.Logger) (*Manager, error) {
	if handler == nil {
		return nil, errors.New("channel handler is required")
	}
	cfg = cfg.withDefaults()
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.Reconnect.InitialInterval
	policy.MaxInterval = cfg.Reconnect.MaxInterval
	policy.Multiplier = cfg.Reconnect.Multiplier
	policy.RandomizationFactor = cfg.Reconnect.Randomization
	policy.Reset()
	return &Manager{
		cfg:     cfg,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		policy:  policy,
		log:     logx.WithEndpoint(logx.Or(logger), cfg.Endpoint),
		sleep:   sleepContext,
	}, nil
}

// Endpoint returns the configured server address.
func (m *Manager) Endpoint() string {
	return m.cfg.Endpoint
}

// Attempts returns how many connection attempts were made so far.
func (m *Manager) Attempts() uint64 {
	return m.attempts.Load()
}

// Ready reports whether a connection is currently open.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Run connects and reconnects until ctx is done. Attempts are strictly
// sequential, so there is never more than one dial in flight.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("channel manager already running")
	}
	defer m.running.Store(false)

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := m.open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			m.log.Warn("channel dial failed", "err", err, "failures", failures)
		} else {
			failures = 0
			m.policy.Reset()
			m.setConn(conn)
			m.log.Info("channel ready")
			m.handler.OnReady()
			err = m.serve(ctx, conn)
			m.clearConn(conn)
			if ctx.Err() != nil {
				m.log.Info("channel closed", "reason", "shutdown")
				return nil
			}
			failures = 1
			m.log.Warn("channel closed", "err", err)
		}
		info := schema.CloseInfo{
			Err:         err,
			Failures:    failures,
			Unreachable: m.cfg.Reconnect.UnreachableAfter > 0 && failures >= m.cfg.Reconnect.UnreachableAfter,
		}
		m.handler.OnClosed(info)

		delay := m.policy.NextBackOff()
		if delay == backoff.Stop {
			delay = m.cfg.Reconnect.MaxInterval
		}
		m.log.Debug("channel reconnect scheduled", "delay", delay.String(), "failures", failures, "unreachable", info.Unreachable)
		if !m.sleep(ctx, delay) {
			return nil
		}
	}
}

// Send transmits a pre-encoded envelope as a text frame. Nothing is queued:
// without an open connection it returns schema.ErrNotConnected.
func (m *Manager) Send(envelope []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return schema.ErrNotConnected
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, envelope); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	m.log.Trace("channel frame sent", "bytes", len(envelope))
	return nil
}

func (m *Manager) open(ctx context.Context) (*websocket.Conn, error) {
	attempt := m.attempts.Add(1)
	m.log.Debug("channel dial start", "attempt", attempt)
	conn, resp, err := m.dialer.DialContext(ctx, m.cfg.Endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) error {
	if m.cfg.ReadLimit > 0 {
		conn.SetReadLimit(m.cfg.ReadLimit)
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown"), deadline)
			_ = conn.Close()
		case <-stop:
		}
	}()
	if m.cfg.PingInterval > 0 {
		pongWait := m.cfg.PingInterval * 2
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go m.keepalive(conn, stop)
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.log.Trace("channel frame received", "bytes", len(data))
		m.handler.OnMessage(data)
	}
}

func (m *Manager) keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(m.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				m.log.Debug("channel ping failed", "err", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func (m *Manager) setConn(conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

func (m *Manager) clearConn(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	_ = conn.Close()
}

// Probe dials the endpoint once and closes the connection again.
func Probe(ctx context.Context, endpoint string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "probe"), deadline)
	return conn.Close()
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
