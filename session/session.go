// Package session turns wand events into spell casts: the four-pad grip
// starts and stops motion tracking and the traced path is classified on
// release.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"wandcaster/gesture"
	"wandcaster/motion"
	"wandcaster/protocol"
)

// IdleSpell is published when the last spell expires.
const IdleSpell = "awaiting"

// Kind names a published message.
type Kind string

const (
	KindSpell   Kind = "spell"
	KindBattery Kind = "battery"
	KindButtons Kind = "buttons"
	KindCasting Kind = "casting"
	KindTrace   Kind = "trace"
	KindDevice  Kind = "device"
)

// Message is one published update.
type Message struct {
	Kind Kind        `json:"kind"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// Publisher receives session output. Publish must not block for long; it runs
// on the event dispatch path.
type Publisher interface {
	Publish(msg Message)
}

// Feedback signals casting to the user, e.g. by buzzing the wand.
type Feedback interface {
	BeginCasting()
	EndCasting()
}

// SpellDetected is the payload of a spell message.
type SpellDetected struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
	CastID     string  `json:"cast_id,omitempty"`
}

// Casting is the payload of a casting message.
type Casting struct {
	Active bool   `json:"active"`
	CastID string `json:"cast_id"`
}

// BatteryLevel is the payload of a battery message.
type BatteryLevel struct {
	Percent uint8 `json:"percent"`
}

// TracePoint is the payload of a trace message: the newest path point.
type TracePoint struct {
	CastID string  `json:"cast_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	N      int     `json:"n"`
}

// State is a snapshot of the session.
type State struct {
	Spell   string      `json:"spell"`
	Casting bool        `json:"casting"`
	Buttons ButtonState `json:"buttons"`
	Battery int         `json:"battery"`
	Mode    string      `json:"mode"`
}

// Config tunes a Session.
type Config struct {
	// ResetDelay is how long a spell stays published before IdleSpell.
	ResetDelay time.Duration
	// ClassifyTimeout bounds one classification.
	ClassifyTimeout time.Duration
	// Clock drives the reset timer; nil uses the wall clock.
	Clock clock.Clock
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		ResetDelay:      time.Second,
		ClassifyTimeout: 5 * time.Second,
	}
}

// Session is a ble.Sink. Without a classifier it passes the wand's own spell
// events through; with one it ignores them and classifies traced paths.
type Session struct {
	cfg        Config
	log        logrus.FieldLogger
	clock      clock.Clock
	tracker    *motion.Tracker
	classifier gesture.Classifier
	pub        Publisher
	timer      *ResetTimer

	mu       sync.Mutex
	buttons  Buttons
	casting  bool
	castID   string
	battery  int
	feedback Feedback

	spell atomic.String
}

// New builds a session. classifier may be nil.
func New(cfg Config, tracker *motion.Tracker, classifier gesture.Classifier, pub Publisher, log logrus.FieldLogger) *Session {
	def := DefaultConfig()
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = def.ResetDelay
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = def.ClassifyTimeout
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	s := &Session{
		cfg:        cfg,
		log:        log.WithField("component", "session"),
		clock:      clk,
		tracker:    tracker,
		classifier: classifier,
		pub:        pub,
		timer:      NewResetTimer(clk, cfg.ResetDelay),
		battery:    -1,
	}
	s.spell.Store(IdleSpell)
	return s
}

// SetFeedback installs casting feedback; nil disables it.
func (s *Session) SetFeedback(f Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = f
}

// Mode reports the detection source.
func (s *Session) Mode() string {
	if s.classifier == nil {
		return string(gesture.ModeWand)
	}
	return s.classifier.Name()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Spell:   s.spell.Load(),
		Casting: s.casting,
		Buttons: s.buttons.State(),
		Battery: s.battery,
		Mode:    s.Mode(),
	}
}

// HandleEvent consumes one decoded wand event.
func (s *Session) HandleEvent(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.Buttons:
		s.handleButtons(ev.Mask)
	case protocol.IMUBatch:
		s.handleIMU(ev)
	case protocol.NativeSpell:
		if s.classifier != nil {
			s.log.WithField("spell", ev.Name).Debug("ignoring wand spell, server-side detection active")
			return
		}
		s.publishSpell(gesture.Result{Label: ev.Name, Confidence: 1}, string(gesture.ModeWand), "")
	case protocol.Battery:
		s.mu.Lock()
		s.battery = int(ev.Percent)
		s.mu.Unlock()
		s.publish(KindBattery, BatteryLevel{Percent: ev.Percent})
	}
}

func (s *Session) handleButtons(mask uint8) {
	s.mu.Lock()
	state, edge := s.buttons.Update(mask)
	var (
		path   motion.Path
		castID string
		fb     = s.feedback
	)
	switch {
	case edge == EdgePressed && s.classifier != nil:
		s.timer.Cancel()
		s.casting = true
		s.castID = uuid.NewString()
		castID = s.castID
		s.tracker.Start()
	case edge == EdgeReleased && s.casting:
		s.casting = false
		castID = s.castID
		path = s.tracker.Stop()
	default:
		edge = EdgeNone
	}
	s.mu.Unlock()

	s.publish(KindButtons, state)
	switch edge {
	case EdgePressed:
		s.log.WithField("cast_id", castID).Debug("casting started")
		s.publish(KindCasting, Casting{Active: true, CastID: castID})
		if fb != nil {
			fb.BeginCasting()
		}
	case EdgeReleased:
		s.publish(KindCasting, Casting{Active: false, CastID: castID})
		if fb != nil {
			fb.EndCasting()
		}
		s.classify(path, castID)
	}
}

func (s *Session) handleIMU(batch protocol.IMUBatch) {
	s.mu.Lock()
	if !s.casting {
		s.mu.Unlock()
		return
	}
	var (
		last motion.Point
		ok   bool
	)
	for _, sample := range batch.Samples {
		if p, accepted := s.tracker.Update(sample.Accel, sample.Gyro); accepted {
			last, ok = p, true
		}
	}
	n := s.tracker.Len()
	castID := s.castID
	s.mu.Unlock()

	if ok {
		s.publish(KindTrace, TracePoint{CastID: castID, X: last.X, Y: last.Y, N: n})
	}
}

func (s *Session) classify(path motion.Path, castID string) {
	if len(path) < gesture.MinPoints {
		s.log.WithField("points", len(path)).Debug("path too short, no spell")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ClassifyTimeout)
	defer cancel()
	res, ok, err := s.classifier.Classify(ctx, path)
	if err != nil {
		s.log.WithError(err).Warn("classification failed")
		return
	}
	if !ok {
		s.log.WithField("points", len(path)).Info("no spell recognized")
		return
	}
	s.publishSpell(res, s.classifier.Name(), castID)
}

func (s *Session) publishSpell(res gesture.Result, source, castID string) {
	label := strings.ReplaceAll(res.Label, "_", " ")
	s.timer.Cancel()
	s.spell.Store(label)
	s.log.WithFields(logrus.Fields{
		"spell":      label,
		"confidence": res.Confidence,
		"source":     source,
	}).Info("spell detected")
	s.publish(KindSpell, SpellDetected{Label: label, Confidence: res.Confidence, Source: source, CastID: castID})
	s.timer.Arm(func() {
		s.spell.Store(IdleSpell)
		s.publish(KindSpell, SpellDetected{Label: IdleSpell})
	})
}

// ConnectionLost resets the session when the link drops.
func (s *Session) ConnectionLost() {
	s.log.Info("connection lost, resetting")
	s.Reset()
}

// Reset returns to idle: pads released, tracking discarded, reset timer
// cancelled. The released button state is published, and IdleSpell too when a
// spell was still showing.
func (s *Session) Reset() {
	s.mu.Lock()
	wasCasting := s.casting
	castID := s.castID
	s.casting = false
	s.buttons.Reset()
	s.tracker.Discard()
	s.timer.Cancel()
	state := s.buttons.State()
	s.mu.Unlock()

	s.publish(KindButtons, state)
	if wasCasting {
		s.publish(KindCasting, Casting{Active: false, CastID: castID})
	}
	if prev := s.spell.Swap(IdleSpell); prev != IdleSpell {
		s.publish(KindSpell, SpellDetected{Label: IdleSpell})
	}
}

func (s *Session) publish(kind Kind, data interface{}) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(Message{Kind: kind, At: s.clock.Now(), Data: data})
}
