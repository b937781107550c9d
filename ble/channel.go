package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"wandcaster/protocol"
)

// ChannelConfig tunes command retries.
type ChannelConfig struct {
	// Timeout is how long to wait for a reply.
	Timeout time.Duration `yaml:"timeout"`
	// RetryDelay separates attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// Attempts is the total number of tries including the first.
	Attempts int `yaml:"attempts"`
}

// DefaultChannelConfig matches the wand's observed latency.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		Timeout:    5 * time.Second,
		RetryDelay: 500 * time.Millisecond,
		Attempts:   3,
	}
}

// CommandChannel writes commands and pairs them with the next notification.
// One command is in flight at a time; concurrent callers queue on the mutex.
type CommandChannel struct {
	conn Connection
	cfg  ChannelConfig
	log  logrus.FieldLogger

	mu       sync.Mutex
	awaiting atomic.Bool
	resp     chan []byte
}

// NewCommandChannel wraps conn.
func NewCommandChannel(conn Connection, cfg ChannelConfig, log logrus.FieldLogger) *CommandChannel {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &CommandChannel{
		conn: conn,
		cfg:  cfg,
		log:  log,
		resp: make(chan []byte, 1),
	}
}

// Deliver offers a notification payload as the pending reply. It never
// blocks and reports whether the payload was taken.
func (c *CommandChannel) Deliver(payload []byte) bool {
	if !c.awaiting.CompareAndSwap(true, false) {
		return false
	}
	select {
	case c.resp <- append([]byte(nil), payload...):
	default:
	}
	return true
}

// Send writes cmd and, when wantResponse is set, returns the next
// notification. Write faults and timeouts are retried; missing GATT entries
// clear the cache, drop the link and fail immediately.
func (c *CommandChannel) Send(ctx context.Context, cmd []byte, wantResponse bool) ([]byte, error) {
	if len(cmd) == 0 {
		return nil, fmt.Errorf("%w: empty command", protocol.ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var reply []byte
	attempt := func() error {
		if wantResponse {
			c.drain()
			c.awaiting.Store(true)
		}
		if err := c.conn.Write(ctx, protocol.CommandUUID, cmd, false); err != nil {
			c.awaiting.Store(false)
			if IsMissing(err) {
				c.dropConnection(err)
				return backoff.Permanent(err)
			}
			return err
		}
		if !wantResponse {
			return nil
		}

		timer := time.NewTimer(c.cfg.Timeout)
		defer timer.Stop()
		select {
		case reply = <-c.resp:
			return nil
		case <-timer.C:
			c.awaiting.Store(false)
			return ErrResponseTimeout
		case <-c.conn.Done():
			c.awaiting.Store(false)
			return backoff.Permanent(ErrLinkLost)
		case <-ctx.Done():
			c.awaiting.Store(false)
			return backoff.Permanent(ctx.Err())
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryDelay), uint64(c.cfg.Attempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.log.WithError(err).WithField("opcode", fmt.Sprintf("0x%02x", cmd[0])).Warnf("BLE: command failed, retrying in %s", wait)
	}
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		return nil, fmt.Errorf("command 0x%02x: %w", cmd[0], err)
	}
	return reply, nil
}

func (c *CommandChannel) drain() {
	select {
	case <-c.resp:
	default:
	}
}

func (c *CommandChannel) dropConnection(cause error) {
	c.log.WithError(cause).Warn("BLE: GATT table stale, clearing cache and disconnecting")
	if err := c.conn.ClearCache(); err != nil {
		c.log.WithError(err).Debug("BLE: clear cache failed")
	}
	if err := c.conn.Disconnect(); err != nil {
		c.log.WithError(err).Debug("BLE: disconnect failed")
	}
}
