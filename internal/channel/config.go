package channel

import "time"

// DefaultEndpoint is the local optimizer server address.
const DefaultEndpoint = "ws://localhost:9160"

// Config configures the channel manager.
type Config struct {
	Endpoint         string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval enables keepalive pings; the read deadline is extended on every pong.
	PingInterval time.Duration
	ReadLimit    int64
	Reconnect    ReconnectConfig
}

// ReconnectConfig shapes the delay between connection attempts.
type ReconnectConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Randomization   float64
	// UnreachableAfter flags close events once this many consecutive attempts failed; 0 disables.
	UnreachableAfter int
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.Reconnect.MaxInterval <= 0 {
		c.Reconnect.MaxInterval = 5 * time.Second
	}
	if c.Reconnect.Multiplier < 1 {
		c.Reconnect.Multiplier = 2
	}
	if c.Reconnect.Randomization < 0 {
		c.Reconnect.Randomization = 0
	}
	return c
}
