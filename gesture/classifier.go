package gesture

import (
	"context"
	"errors"

	"wandcaster/motion"
)

var (
	ErrNoTemplates   = errors.New("no templates loaded")
	ErrBadOutput     = errors.New("malformed classifier output")
	ErrUnknownFormat = errors.New("unknown template format")
)

// Result is an accepted classification.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier maps a trace to a spell label. ok is false when nothing was
// recognized with enough confidence. An error means the classifier itself
// failed; callers treat that the same as no match.
type Classifier interface {
	Classify(ctx context.Context, path motion.Path) (res Result, ok bool, err error)
	Name() string
}
