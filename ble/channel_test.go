package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"wandcaster/protocol"
)

func fastChannel() ChannelConfig {
	return ChannelConfig{Timeout: 20 * time.Millisecond, RetryDelay: time.Millisecond, Attempts: 3}
}

func newTestChannel(conn Connection, cfg ChannelConfig) *CommandChannel {
	log, _ := test.NewNullLogger()
	return NewCommandChannel(conn, cfg, log)
}

func TestSendReturnsReply(t *testing.T) {
	conn := newFakeConn()
	ch := newTestChannel(conn, fastChannel())
	conn.onWrite = func([]byte) { ch.Deliver([]byte("MCW 1.2")) }

	reply, err := ch.Send(context.Background(), protocol.RequestFirmware(), true)
	require.NoError(t, err)
	assert.Equal(t, []byte("MCW 1.2"), reply)
	assert.Equal(t, 1, conn.writeCount())
}

func TestSendWithoutResponse(t *testing.T) {
	conn := newFakeConn()
	ch := newTestChannel(conn, fastChannel())

	reply, err := ch.Send(context.Background(), protocol.KeepAlive(), false)
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.False(t, ch.Deliver([]byte{0x01}), "nothing awaited")
}

func TestSendRetriesWriteFault(t *testing.T) {
	conn := newFakeConn()
	conn.writeErrs = []error{errors.New("att error 0x0e")}
	ch := newTestChannel(conn, fastChannel())
	conn.onWrite = func([]byte) { ch.Deliver([]byte{protocol.RespBoxAddress, 1, 2, 3, 4, 5, 6}) }

	reply, err := ch.Send(context.Background(), protocol.RequestBoxAddress(), true)
	require.NoError(t, err)
	assert.Len(t, reply, 7)
	assert.Equal(t, 2, conn.writeCount())
}

func TestSendTimesOut(t *testing.T) {
	conn := newFakeConn()
	ch := newTestChannel(conn, fastChannel())

	_, err := ch.Send(context.Background(), protocol.RequestFirmware(), true)
	assert.ErrorIs(t, err, ErrResponseTimeout)
	assert.Equal(t, 3, conn.writeCount(), "three attempts in total")
	assert.False(t, ch.Deliver([]byte("late")), "late reply is not taken")
}

func TestSendMissingServiceDropsLink(t *testing.T) {
	conn := newFakeConn()
	conn.writeErrs = []error{fmt.Errorf("discover: %w", ErrServiceMissing)}
	ch := newTestChannel(conn, fastChannel())

	_, err := ch.Send(context.Background(), protocol.RequestFirmware(), true)
	assert.ErrorIs(t, err, ErrServiceMissing)
	assert.Equal(t, 1, conn.writeCount(), "no retry")
	cleared, disconnected := conn.counts()
	assert.Equal(t, 1, cleared)
	assert.Equal(t, 1, disconnected)
}

func TestSendContextCancelled(t *testing.T) {
	conn := newFakeConn()
	ch := newTestChannel(conn, ChannelConfig{Timeout: time.Second, RetryDelay: time.Millisecond, Attempts: 3})
	ctx, cancel := context.WithCancel(context.Background())
	conn.onWrite = func([]byte) { cancel() }

	_, err := ch.Send(ctx, protocol.RequestFirmware(), true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, conn.writeCount())
}

func TestSendStopsWaitingWhenLinkDrops(t *testing.T) {
	conn := newFakeConn()
	ch := newTestChannel(conn, ChannelConfig{Timeout: time.Second, RetryDelay: time.Millisecond, Attempts: 3})
	conn.onWrite = func([]byte) { conn.drop() }

	start := time.Now()
	_, err := ch.Send(context.Background(), protocol.RequestFirmware(), true)
	assert.ErrorIs(t, err, ErrLinkLost)
	assert.Equal(t, 1, conn.writeCount(), "no retry on a dropped link")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSendEmptyCommand(t *testing.T) {
	ch := newTestChannel(newFakeConn(), fastChannel())
	_, err := ch.Send(context.Background(), nil, false)
	assert.ErrorIs(t, err, protocol.ErrInvalidArgument)
}

func TestSendSerializesCallers(t *testing.T) {
	conn := newFakeConn()
	ch := newTestChannel(conn, ChannelConfig{Timeout: time.Second, RetryDelay: time.Millisecond, Attempts: 1})

	var inFlight atomic.Int32
	var overlapped atomic.Bool
	conn.onWrite = func(data []byte) {
		if inFlight.Inc() > 1 {
			overlapped.Store(true)
		}
		reply := append([]byte(nil), data...)
		go func() {
			time.Sleep(2 * time.Millisecond)
			inFlight.Dec()
			ch.Deliver(reply)
		}()
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := protocol.ReadThreshold(uint8(i))
			reply, err := ch.Send(context.Background(), cmd, true)
			assert.NoError(t, err)
			assert.Equal(t, cmd, reply, "each caller gets its own reply")
		}(i)
	}
	wg.Wait()
	assert.False(t, overlapped.Load())
	assert.Equal(t, 8, conn.writeCount())
}
