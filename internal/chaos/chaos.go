package chaos

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrInjected is returned by operations failed on purpose
var ErrInjected = errors.New("chaos: injected failure")

// Chaos provides deterministic failure injection on the FIX transport
type Chaos struct {
	cfg    *Config
	logger *zap.Logger
	rng    *rand.Rand
	mu     sync.Mutex
	start  time.Time
}

// New creates a new Chaos instance
func New(cfg *Config, logger *zap.Logger) *Chaos {
	c := &Chaos{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		start:  time.Now(),
	}

	if cfg.Profile != "" {
		if err := cfg.ApplyProfile(cfg.Profile); err != nil {
			logger.Warn("ignoring chaos profile", zap.String("profile", cfg.Profile), zap.Error(err))
		}
	}

	return c
}

// Enabled reports whether faults are currently injected
func (c *Chaos) Enabled() bool {
	if c == nil || !c.cfg.Enabled {
		return false
	}

	// Check if window expired
	if c.cfg.WindowMs > 0 {
		elapsed := time.Since(c.start).Milliseconds()
		if elapsed > int64(c.cfg.WindowMs) {
			return false
		}
	}

	return true
}

// MaybeDelay injects a random delay if chaos is enabled
func (c *Chaos) MaybeDelay(ctx context.Context, op string) error {
	if !c.Enabled() {
		return nil
	}

	if c.cfg.DelayMsMin == 0 && c.cfg.DelayMsMax == 0 {
		return nil
	}

	c.mu.Lock()
	var delayMs int
	if c.cfg.DelayMsMin >= c.cfg.DelayMsMax {
		delayMs = c.cfg.DelayMsMin
	} else {
		delayMs = c.cfg.DelayMsMin + c.rng.Intn(c.cfg.DelayMsMax-c.cfg.DelayMsMin+1)
	}
	c.mu.Unlock()

	if delayMs > 0 {
		c.logger.Info("chaos delay injected",
			zap.String("op", op),
			zap.Int("delay_ms", delayMs),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
			return nil
		}
	}

	return nil
}

// MaybeDrop returns true if the operation should fail
func (c *Chaos) MaybeDrop(op string) bool {
	if !c.Enabled() {
		return false
	}

	if c.cfg.DropPct == 0 {
		return false
	}

	c.mu.Lock()
	drop := c.rng.Intn(100) < c.cfg.DropPct
	c.mu.Unlock()

	if drop {
		c.logger.Info("chaos drop injected",
			zap.String("op", op),
			zap.Bool("dropped", true),
		)
	}

	return drop
}

// targets reports whether a raw outbound message is subject to faults
func (c *Chaos) targets(raw []byte) bool {
	if c.cfg.TargetMsgType == "" {
		return true
	}
	return bytes.Contains(raw, []byte("\x0135="+c.cfg.TargetMsgType+"\x01"))
}

type contextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Dialer injects faults into dials and into writes on the connections it
// returns. A dropped write closes the connection, as a reset would.
type Dialer struct {
	inner contextDialer
	chaos *Chaos
}

// WrapDialer wraps inner. With chaos disabled the wrapper is transparent.
func (c *Chaos) WrapDialer(inner contextDialer) *Dialer {
	return &Dialer{inner: inner, chaos: c}
}

// DialContext dials through the wrapped dialer
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if err := d.chaos.MaybeDelay(ctx, "dial"); err != nil {
		return nil, err
	}
	if d.chaos.MaybeDrop("dial") {
		return nil, ErrInjected
	}
	conn, err := d.inner.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return &faultyConn{Conn: conn, chaos: d.chaos}, nil
}

type faultyConn struct {
	net.Conn
	chaos *Chaos
}

func (c *faultyConn) Write(b []byte) (int, error) {
	if c.chaos.Enabled() && c.chaos.targets(b) {
		if err := c.chaos.MaybeDelay(context.Background(), "write"); err != nil {
			return 0, err
		}
		if c.chaos.MaybeDrop("write") {
			c.Conn.Close()
			return 0, ErrInjected
		}
	}
	return c.Conn.Write(b)
}
