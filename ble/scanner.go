package ble

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ScanConfig holds configuration for finding and reconnecting to a wand.
type ScanConfig struct {
	// DeviceID is the wand's MAC address; empty takes the first MCW- device.
	DeviceID string
	// ConnectTimeout bounds one scan+connect attempt (0 = no limit)
	ConnectTimeout time.Duration
	// RetryDelay is how long to wait before retrying a failed connection
	RetryDelay time.Duration
	// AutoReconnect reconnects after the link drops
	AutoReconnect bool
}

// DefaultScanConfig returns sensible defaults for scanning.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		ConnectTimeout: 30 * time.Second,
		RetryDelay:     2 * time.Second,
		AutoReconnect:  true,
	}
}

// SessionHandler runs for the lifetime of one connection. It returns when the
// connection is no longer usable.
type SessionHandler func(ctx context.Context, conn Connection) error

// Scanner keeps a wand connected: it connects through the Transport, hands the
// connection to a handler and reconnects after it returns.
type Scanner struct {
	transport Transport
	config    ScanConfig
	log       logrus.FieldLogger
}

// NewScanner creates a new Scanner with the given Transport and config.
func NewScanner(transport Transport, config ScanConfig, log logrus.FieldLogger) *Scanner {
	return &Scanner{
		transport: transport,
		config:    config,
		log:       log.WithField("component", "scanner"),
	}
}

// Run connects and serves connections until ctx is cancelled, or after the
// first connection ends when AutoReconnect is off.
func (s *Scanner) Run(ctx context.Context, handle SessionHandler) error {
	for {
		conn, err := s.connect(ctx)
		switch {
		case err == nil:
			herr := handle(ctx, conn)
			if derr := conn.Disconnect(); derr != nil {
				s.log.WithError(derr).Debug("Scanner: disconnect after session")
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if herr != nil && !errors.Is(herr, ErrLinkLost) {
				s.log.WithError(herr).Warn("Scanner: session ended")
			}
			if !s.config.AutoReconnect {
				return herr
			}
			s.log.Info("Scanner: wand gone, initiating reconnection scan")
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			s.log.WithError(err).Warnf("Scanner: connect failed, retrying in %s", s.config.RetryDelay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.RetryDelay):
		}
	}
}

func (s *Scanner) connect(ctx context.Context) (Connection, error) {
	if s.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ConnectTimeout)
		defer cancel()
	}
	return s.transport.Connect(ctx, s.config.DeviceID)
}
