package ble

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wandcaster/protocol"
)

type recordingSink struct {
	events chan protocol.Event
	lost   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan protocol.Event, 64), lost: make(chan struct{}, 1)}
}

func (r *recordingSink) HandleEvent(ev protocol.Event) { r.events <- ev }
func (r *recordingSink) ConnectionLost()                { r.lost <- struct{}{} }

func (r *recordingSink) next(t *testing.T) protocol.Event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return nil
	}
}

func newTestLink(conn Connection) *Link {
	log, _ := test.NewNullLogger()
	cfg := DefaultLinkConfig()
	cfg.Channel = fastChannel()
	return NewLink(conn, cfg, log)
}

func TestLinkDispatchesInOrder(t *testing.T) {
	conn := newFakeConn()
	link := newTestLink(conn)
	sink := newRecordingSink()
	link.AddSink(sink)
	require.NoError(t, link.Start())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = link.Run(ctx) }()

	conn.notify(protocol.NotifyUUID, []byte{protocol.StreamButton, 0x0F})
	conn.notify(protocol.NotifyUUID, []byte{0xEE, 0xEE})
	conn.notify(protocol.NotifyUUID, protocol.EncodeIMU(protocol.RawSample{AccZ: 4096}))
	conn.notify(protocol.BatteryUUID, []byte{87})
	conn.notify(protocol.NotifyUUID, []byte{protocol.StreamButton, 0x00})

	assert.Equal(t, protocol.Buttons{Mask: 0x0F}, sink.next(t))
	batch, ok := sink.next(t).(protocol.IMUBatch)
	require.True(t, ok)
	assert.Len(t, batch.Samples, 1)
	assert.Equal(t, protocol.Battery{Percent: 87}, sink.next(t))
	assert.Equal(t, protocol.Buttons{Mask: 0}, sink.next(t))
}

func TestLinkReplyIsAlsoAnEvent(t *testing.T) {
	conn := newFakeConn()
	link := newTestLink(conn)
	sink := newRecordingSink()
	link.AddSink(sink)
	require.NoError(t, link.Start())
	conn.onWrite = func([]byte) { conn.notify(protocol.NotifyUUID, []byte("MCW 2.0")) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = link.Run(ctx) }()

	reply, err := link.Send(ctx, protocol.RequestFirmware(), true)
	require.NoError(t, err)
	assert.Equal(t, []byte("MCW 2.0"), reply)
	assert.Equal(t, protocol.FirmwareVersion{Version: "MCW 2.0"}, sink.next(t))
}

func TestLinkStartFaults(t *testing.T) {
	t.Run("battery missing is tolerated", func(t *testing.T) {
		conn := newFakeConn()
		conn.subErrs[protocol.BatteryUUID] = fmt.Errorf("%w: battery", ErrServiceMissing)
		assert.NoError(t, newTestLink(conn).Start())
	})

	t.Run("notify missing drops the link", func(t *testing.T) {
		conn := newFakeConn()
		conn.subErrs[protocol.NotifyUUID] = fmt.Errorf("%w: notify", ErrCharacteristicMissing)
		err := newTestLink(conn).Start()
		assert.ErrorIs(t, err, ErrCharacteristicMissing)
		cleared, disconnected := conn.counts()
		assert.Equal(t, 1, cleared)
		assert.Equal(t, 1, disconnected)
	})

	t.Run("other faults propagate", func(t *testing.T) {
		conn := newFakeConn()
		boom := errors.New("boom")
		conn.subErrs[protocol.BatteryUUID] = boom
		assert.ErrorIs(t, newTestLink(conn).Start(), boom)
	})
}

func TestLinkRunReportsLoss(t *testing.T) {
	conn := newFakeConn()
	link := newTestLink(conn)
	sink := newRecordingSink()
	link.AddSink(sink)
	require.NoError(t, link.Start())

	conn.notify(protocol.NotifyUUID, []byte{protocol.StreamButton, 0x01})
	conn.drop()

	err := link.Run(context.Background())
	assert.ErrorIs(t, err, ErrLinkLost)
	assert.Equal(t, protocol.Buttons{Mask: 0x01}, sink.next(t), "queued events are delivered before the loss")
	select {
	case <-sink.lost:
	default:
		t.Fatal("ConnectionLost not called")
	}
}

func TestLinkDropsWhenQueueFull(t *testing.T) {
	conn := newFakeConn()
	log, _ := test.NewNullLogger()
	cfg := DefaultLinkConfig()
	cfg.QueueSize = 1
	link := NewLink(conn, cfg, log)
	require.NoError(t, link.Start())

	for i := 0; i < 3; i++ {
		conn.notify(protocol.NotifyUUID, []byte{protocol.StreamButton, byte(i)})
	}
	assert.Equal(t, uint64(2), link.Dropped())
}

func TestLinkIdentify(t *testing.T) {
	conn := newFakeConn()
	link := newTestLink(conn)
	require.NoError(t, link.Start())

	conn.onWrite = func(cmd []byte) {
		var reply []byte
		switch {
		case cmd[0] == protocol.OpFirmware:
			reply = []byte("MCW 1.4.1")
		case cmd[0] == protocol.OpProductInfo && protocol.ProductInfo(cmd[1]) == protocol.InfoWandType:
			reply = []byte{protocol.RespProductInfo, byte(protocol.InfoWandType), 0x02}
		case cmd[0] == protocol.OpProductInfo && protocol.ProductInfo(cmd[1]) == protocol.InfoSerial:
			reply = []byte{protocol.RespProductInfo, byte(protocol.InfoSerial), 0x78, 0x56, 0x34, 0x12}
		case cmd[0] == protocol.OpBoxAddress:
			reply = []byte{protocol.RespBoxAddress, 1, 2, 3, 4, 5, 6}
		}
		if reply != nil {
			conn.notify(protocol.NotifyUUID, reply)
		}
	}

	info, err := link.Identify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "MCW 1.4.1", info.Firmware)
	assert.Equal(t, protocol.ModelRonWeasley, info.Model)
	assert.Equal(t, protocol.ModelRonWeasley.String(), info.ModelName)
	assert.Equal(t, "78563412", info.Serial)
	assert.Equal(t, "06:05:04:03:02:01", info.BoxAddress)
}

func TestLinkIdentifyPartial(t *testing.T) {
	conn := newFakeConn()
	link := newTestLink(conn)
	require.NoError(t, link.Start())
	conn.onWrite = func(cmd []byte) {
		if cmd[0] == protocol.OpFirmware {
			conn.notify(protocol.NotifyUUID, []byte("MCW 1.0"))
		}
	}

	info, err := link.Identify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "MCW 1.0", info.Firmware)
	assert.Equal(t, protocol.ModelUnknown, info.Model)
	assert.Empty(t, info.Serial)
}

func TestLinkIdentifyStopsOnLostLink(t *testing.T) {
	conn := newFakeConn()
	link := newTestLink(conn)
	require.NoError(t, link.Start())
	conn.onWrite = func([]byte) { conn.drop() }

	_, err := link.Identify(context.Background())
	assert.ErrorIs(t, err, ErrLinkLost)
	assert.Equal(t, 1, conn.writeCount(), "remaining queries skipped")
}

func TestLinkIdentifyStopsOnMissingCharacteristic(t *testing.T) {
	conn := newFakeConn()
	link := newTestLink(conn)
	require.NoError(t, link.Start())
	conn.writeErrs = []error{fmt.Errorf("write: %w", ErrCharacteristicMissing)}

	_, err := link.Identify(context.Background())
	assert.True(t, IsMissing(err))
	assert.Equal(t, 1, conn.writeCount(), "remaining queries skipped")
	cleared, _ := conn.counts()
	assert.Equal(t, 1, cleared)
}

func TestLinkCommands(t *testing.T) {
	conn := newFakeConn()
	link := newTestLink(conn)
	ctx := context.Background()

	require.NoError(t, link.InitButtons(ctx))
	require.NoError(t, link.StartIMU(ctx))
	require.NoError(t, link.Vibrate(ctx, 120*time.Millisecond))
	require.NoError(t, link.KeepAlive(ctx))
	require.NoError(t, link.StopIMU(ctx))
	assert.ErrorIs(t, link.Vibrate(ctx, time.Minute+6*time.Second), protocol.ErrInvalidArgument)

	seq := protocol.ButtonInit()
	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.writes, len(seq)+4)
	assert.Equal(t, seq[0], conn.writes[0])
	tail := conn.writes[len(seq):]
	assert.Equal(t, protocol.IMUStart(), tail[0])
	assert.Equal(t, []byte{protocol.OpVibrate, 120, 0}, tail[1])
	assert.Equal(t, protocol.KeepAlive(), tail[2])
	assert.Equal(t, protocol.IMUStop(), tail[3])
}

func TestCastFeedback(t *testing.T) {
	conn := newFakeConn()
	fb := CastFeedback{Link: newTestLink(conn), Vibrate: 80 * time.Millisecond}

	fb.BeginCasting()
	require.Eventually(t, func() bool { return conn.writeCount() == 1 }, time.Second, time.Millisecond)
	fb.EndCasting()
	require.Eventually(t, func() bool { return conn.writeCount() == 2 }, time.Second, time.Millisecond)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, []byte{protocol.OpVibrate, 80, 0}, conn.writes[0])
	assert.Equal(t, protocol.LightClear(), conn.writes[1])
}
