package gesture

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Mode selects where spells are recognized.
type Mode string

const (
	// ModeWand trusts the wand firmware's own spell events.
	ModeWand Mode = "wand"
	// ModeTemplate matches traces against shape templates.
	ModeTemplate Mode = "template"
	// ModeRemote sends traces to a model server.
	ModeRemote Mode = "remote"
)

// ParseMode validates s.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeWand, ModeTemplate, ModeRemote:
		return m, nil
	default:
		return "", fmt.Errorf("unknown detection mode %q", s)
	}
}

// Options describe the requested classifier.
type Options struct {
	Mode          Mode          `yaml:"mode"`
	TemplatesPath string        `yaml:"templates"`
	Threshold     float64       `yaml:"threshold"`
	RemoteURL     string        `yaml:"remote_url"`
	ModelPath     string        `yaml:"model"`
	Floor         float64       `yaml:"floor"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Build constructs the requested classifier, stepping down from remote to
// templates to wand-native detection when a strategy cannot be set up. A nil
// Classifier means wand-native detection.
func Build(ctx context.Context, opts Options, log logrus.FieldLogger) (Classifier, Mode) {
	log = log.WithField("component", "gesture")

	if opts.Mode == ModeRemote {
		c, err := buildRemote(ctx, opts)
		if err == nil {
			log.WithField("model", opts.ModelPath).Info("remote spell model ready")
			return c, ModeRemote
		}
		log.WithError(err).Warn("remote classifier unavailable, falling back to templates")
		opts.Mode = ModeTemplate
	}

	if opts.Mode == ModeTemplate {
		c, err := buildTemplates(opts, log)
		if err == nil {
			log.WithField("templates", len(c.Templates())).Info("template matcher ready")
			return c, ModeTemplate
		}
		log.WithError(err).Warn("template matcher unavailable, using wand spell events")
	}

	return nil, ModeWand
}

func buildRemote(ctx context.Context, opts Options) (*Learned, error) {
	if opts.RemoteURL == "" || opts.ModelPath == "" {
		return nil, fmt.Errorf("remote mode needs a server url and model path")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	backend := NewRemoteBackend(opts.RemoteURL, opts.ModelPath, nil)
	uctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := backend.Upload(uctx); err != nil {
		return nil, err
	}
	floor := opts.Floor
	if floor <= 0 {
		floor = DefaultFloor
	}
	return NewLearned(backend, WithFloor(floor), WithTimeout(timeout)), nil
}

func buildTemplates(opts Options, log logrus.FieldLogger) (*TemplateMatcher, error) {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	templates := Generate()
	if opts.TemplatesPath != "" {
		loaded, err := LoadTemplates(opts.TemplatesPath)
		if err != nil {
			log.WithError(err).WithField("path", opts.TemplatesPath).Warn("template file unusable, using built-in shapes")
		} else {
			templates = loaded
		}
	}
	return NewTemplateMatcher(templates, threshold)
}
