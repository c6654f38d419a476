package session

import (
	"time"

	"github.com/danmuck/conswire/internal/protocol/frame"
)

// BackoffConfig defines the delay growth between empty reads.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines receive loop behavior.
type Config struct {
	// Role labels logs and metrics ("client", "server").
	Role              string
	MaxFrameBytes     uint32
	Poll              BackoffConfig
	HeartbeatInterval time.Duration
	// SkipCorruptFrames drops a delimited frame whose payload is truncated
	// instead of terminating the loop.
	SkipCorruptFrames bool
}

func DefaultConfig() Config {
	return Config{
		Role:              "client",
		MaxFrameBytes:     frame.DefaultLimits().MaxFrameBytes,
		HeartbeatInterval: 5 * time.Second,
		Poll: BackoffConfig{
			InitialDelay: 10 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     250 * time.Millisecond,
			Jitter:       false,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Role == "" {
		c.Role = d.Role
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = d.MaxFrameBytes
	}
	if c.Poll.InitialDelay <= 0 {
		c.Poll.InitialDelay = d.Poll.InitialDelay
	}
	if c.Poll.Multiplier == 0 {
		c.Poll.Multiplier = d.Poll.Multiplier
	}
	if c.Poll.MaxDelay <= 0 {
		c.Poll.MaxDelay = d.Poll.MaxDelay
	}
	return c
}
