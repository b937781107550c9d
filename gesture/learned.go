package gesture

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"

	"wandcaster/motion"
)

// DefaultFloor is the minimum probability a learned prediction needs.
const DefaultFloor = 0.9

// DefaultTimeout bounds one inference call.
const DefaultTimeout = 5 * time.Second

// Backend runs a spell model. input is a 1×SampleCount×2 float32 tensor; the
// result is one probability per label.
type Backend interface {
	Infer(ctx context.Context, input *tensor.Dense) ([]float32, error)
}

// Learned classifies with a trained model behind a Backend.
type Learned struct {
	backend Backend
	labels  []string
	floor   float64
	timeout time.Duration
}

// LearnedOption configures a Learned classifier.
type LearnedOption func(*Learned)

// WithLabels overrides the model's output labels.
func WithLabels(labels []string) LearnedOption {
	return func(l *Learned) { l.labels = labels }
}

// WithFloor sets the minimum accepted probability.
func WithFloor(floor float64) LearnedOption {
	return func(l *Learned) { l.floor = floor }
}

// WithTimeout bounds each Infer call.
func WithTimeout(d time.Duration) LearnedOption {
	return func(l *Learned) { l.timeout = d }
}

// NewLearned wraps backend.
func NewLearned(backend Backend, opts ...LearnedOption) *Learned {
	l := &Learned{
		backend: backend,
		labels:  SpellLabels,
		floor:   DefaultFloor,
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Learned) Name() string { return "learned" }

// InputTensor converts a prepared path into the model's input layout.
func InputTensor(prepared motion.Path) *tensor.Dense {
	backing := make([]float32, 0, 2*len(prepared))
	for _, p := range prepared {
		backing = append(backing, float32(p.X), float32(p.Y))
	}
	return tensor.New(tensor.WithShape(1, len(prepared), 2), tensor.WithBacking(backing))
}

// Classify runs the model on path and accepts the argmax label when its
// probability reaches the floor.
func (l *Learned) Classify(ctx context.Context, path motion.Path) (Result, bool, error) {
	if len(path) < MinPoints {
		return Result{}, false, nil
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	probs, err := l.backend.Infer(ctx, InputTensor(Prepare(path)))
	if err != nil {
		return Result{}, false, fmt.Errorf("infer: %w", err)
	}
	if len(probs) == 0 {
		return Result{}, false, fmt.Errorf("%w: empty output", ErrBadOutput)
	}

	p := make([]float64, len(probs))
	for i, v := range probs {
		p[i] = float64(v)
	}
	idx := floats.MaxIdx(p)
	if idx >= len(l.labels) {
		return Result{}, false, fmt.Errorf("%w: index %d beyond %d labels", ErrBadOutput, idx, len(l.labels))
	}
	if p[idx] < l.floor {
		return Result{}, false, nil
	}
	return Result{Label: l.labels[idx], Confidence: p[idx]}, true, nil
}
