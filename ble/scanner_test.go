package ble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	failures int
	conns    []*fakeConn
	ids      []string
}

func (f *fakeTransport) Connect(ctx context.Context, deviceID string) (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, deviceID)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("device not found")
	}
	c := newFakeConn()
	f.conns = append(f.conns, c)
	return c, nil
}

func TestScannerRetriesUntilConnected(t *testing.T) {
	log, _ := test.NewNullLogger()
	tr := &fakeTransport{failures: 2}
	s := NewScanner(tr, ScanConfig{DeviceID: "AA:BB:CC:DD:EE:FF", RetryDelay: time.Millisecond}, log)

	sessions := 0
	err := s.Run(context.Background(), func(ctx context.Context, conn Connection) error {
		sessions++
		return ErrLinkLost
	})
	assert.ErrorIs(t, err, ErrLinkLost)
	assert.Equal(t, 1, sessions)
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:FF", "AA:BB:CC:DD:EE:FF", "AA:BB:CC:DD:EE:FF"}, tr.ids)
	_, disconnected := tr.conns[0].counts()
	assert.Equal(t, 1, disconnected, "connection is closed after the session")
}

func TestScannerReconnects(t *testing.T) {
	log, _ := test.NewNullLogger()
	tr := &fakeTransport{}
	cfg := DefaultScanConfig()
	cfg.RetryDelay = time.Millisecond
	s := NewScanner(tr, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sessions := 0
	err := s.Run(ctx, func(ctx context.Context, conn Connection) error {
		sessions++
		if sessions == 3 {
			cancel()
		}
		return ErrLinkLost
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, sessions)
	assert.Len(t, tr.conns, 3)
}
