package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"wandcaster/protocol"
)

// ErrLinkLost is returned by Run when the connection drops.
var ErrLinkLost = errors.New("link lost")

// Sink consumes decoded events. HandleEvent is called from the link's
// dispatch goroutine, one event at a time, in arrival order.
type Sink interface {
	HandleEvent(ev protocol.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev protocol.Event)

func (f SinkFunc) HandleEvent(ev protocol.Event) { f(ev) }

// LossHandler is implemented by sinks that need to know when the link drops.
type LossHandler interface {
	ConnectionLost()
}

// LinkConfig tunes a Link.
type LinkConfig struct {
	Channel ChannelConfig
	// QueueSize is the event buffer between the notification callback and
	// the dispatch goroutine.
	QueueSize int
	// SpellLengthIndex selects the spell event layout.
	SpellLengthIndex int
}

// DefaultLinkConfig returns defaults for a live wand.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		Channel:          DefaultChannelConfig(),
		QueueSize:        256,
		SpellLengthIndex: protocol.DefaultSpellLengthIndex,
	}
}

// Link owns one wand connection: it decodes notifications, queues events for
// sinks and carries commands through a CommandChannel.
type Link struct {
	conn    Connection
	decoder *protocol.Decoder
	channel *CommandChannel
	log     logrus.FieldLogger

	events  chan protocol.Event
	dropped atomic.Uint64

	mu    sync.RWMutex
	sinks []Sink
}

// NewLink wraps conn. Call Start to subscribe and Run to dispatch.
func NewLink(conn Connection, cfg LinkConfig, log logrus.FieldLogger) *Link {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultLinkConfig().QueueSize
	}
	log = log.WithFields(logrus.Fields{"component": "ble", "device": conn.Address()})
	return &Link{
		conn:    conn,
		decoder: protocol.NewDecoder(cfg.SpellLengthIndex),
		channel: NewCommandChannel(conn, cfg.Channel, log),
		log:     log,
		events:  make(chan protocol.Event, cfg.QueueSize),
	}
}

// AddSink registers s for every subsequent event.
func (l *Link) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Address of the connected wand.
func (l *Link) Address() string { return l.conn.Address() }

// Dropped counts events discarded because the queue was full.
func (l *Link) Dropped() uint64 { return l.dropped.Load() }

// Start subscribes to the wand's notify and battery characteristics. A
// missing battery characteristic is logged and tolerated.
func (l *Link) Start() error {
	if err := l.conn.Subscribe(protocol.NotifyUUID, l.handleNotification); err != nil {
		if IsMissing(err) {
			l.dropStale(err)
		}
		return fmt.Errorf("subscribe notify: %w", err)
	}
	if err := l.conn.Subscribe(protocol.BatteryUUID, l.handleBattery); err != nil {
		if !IsMissing(err) {
			return fmt.Errorf("subscribe battery: %w", err)
		}
		l.log.WithError(err).Warn("BLE: battery level unavailable")
	}
	return nil
}

func (l *Link) dropStale(cause error) {
	l.log.WithError(cause).Warn("BLE: GATT table stale, clearing cache and disconnecting")
	_ = l.conn.ClearCache()
	_ = l.conn.Disconnect()
}

// handleNotification runs on the transport callback goroutine. The payload
// first satisfies any pending command, then is decoded as a stream event.
func (l *Link) handleNotification(data []byte) {
	if l.channel.Deliver(data) {
		l.log.WithField("payload", fmt.Sprintf("%x", data)).Debug("BLE: command response")
	}
	ev := l.decoder.Decode(data)
	if ev == nil {
		l.log.WithField("payload", fmt.Sprintf("%x", data)).Trace("BLE: unrecognized notification")
		return
	}
	l.enqueue(ev)
}

func (l *Link) handleBattery(data []byte) {
	if ev := protocol.DecodeBattery(data); ev != nil {
		l.enqueue(ev)
	}
}

func (l *Link) enqueue(ev protocol.Event) {
	select {
	case l.events <- ev:
	default:
		if n := l.dropped.Inc(); n == 1 || n%100 == 0 {
			l.log.WithField("dropped", n).Warn("BLE: event queue full, dropping")
		}
	}
}

// Run dispatches queued events to sinks until ctx ends or the link drops.
// Sinks implementing LossHandler are told when the link drops.
func (l *Link) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.conn.Done():
			l.drainQueue()
			l.notifyLoss()
			return ErrLinkLost
		case ev := <-l.events:
			l.dispatch(ev)
		}
	}
}

func (l *Link) drainQueue() {
	for {
		select {
		case ev := <-l.events:
			l.dispatch(ev)
		default:
			return
		}
	}
}

func (l *Link) dispatch(ev protocol.Event) {
	l.mu.RLock()
	sinks := l.sinks
	l.mu.RUnlock()
	for _, s := range sinks {
		s.HandleEvent(ev)
	}
}

func (l *Link) notifyLoss() {
	l.mu.RLock()
	sinks := l.sinks
	l.mu.RUnlock()
	for _, s := range sinks {
		if h, ok := s.(LossHandler); ok {
			h.ConnectionLost()
		}
	}
}

// Send carries one command across the link.
func (l *Link) Send(ctx context.Context, cmd []byte, wantResponse bool) ([]byte, error) {
	return l.channel.Send(ctx, cmd, wantResponse)
}

// Close disconnects.
func (l *Link) Close() error {
	return l.conn.Disconnect()
}
