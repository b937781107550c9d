package gesture

import (
	"context"
	"math"
	"sort"

	"wandcaster/motion"
)

// DefaultThreshold is the minimum template score accepted.
const DefaultThreshold = 0.75

// Template is a labeled reference shape. Points is the resampled and
// normalized form used for matching; Source keeps the raw points it was
// prepared from, which is what the store writes.
type Template struct {
	Label  string
	Points motion.Path
	Source motion.Path
}

// NewTemplate prepares raw points for matching.
func NewTemplate(label string, points motion.Path) Template {
	src := make(motion.Path, len(points))
	copy(src, points)
	return Template{Label: label, Points: Prepare(points), Source: src}
}

// raw returns the points to persist.
func (t Template) raw() motion.Path {
	if len(t.Source) > 0 {
		return t.Source
	}
	return t.Points
}

// Match is the score of one template against a candidate.
type Match struct {
	Label string
	Score float64
}

// TemplateMatcher is a nearest-template classifier. Templates are fixed after
// construction, so a matcher may be shared between goroutines.
type TemplateMatcher struct {
	templates []Template
	threshold float64
}

// NewTemplateMatcher builds a matcher over templates, accepting scores at or
// above threshold.
func NewTemplateMatcher(templates []Template, threshold float64) (*TemplateMatcher, error) {
	if len(templates) == 0 {
		return nil, ErrNoTemplates
	}
	ts := make([]Template, len(templates))
	copy(ts, templates)
	sort.Slice(ts, func(i, j int) bool { return ts[i].Label < ts[j].Label })
	return &TemplateMatcher{templates: ts, threshold: threshold}, nil
}

func (m *TemplateMatcher) Name() string { return "template" }

// Templates returns the loaded templates sorted by label.
func (m *TemplateMatcher) Templates() []Template {
	return m.templates
}

// Classify scores path against every template.
func (m *TemplateMatcher) Classify(ctx context.Context, path motion.Path) (Result, bool, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, false, err
	}
	if len(path) < MinPoints {
		return Result{}, false, nil
	}
	best, ok := m.Best(path)
	if !ok || best.Score < m.threshold {
		return Result{}, false, nil
	}
	return Result{Label: best.Label, Confidence: best.Score}, true, nil
}

// Best returns the highest scoring template regardless of threshold.
func (m *TemplateMatcher) Best(path motion.Path) (Match, bool) {
	matches := m.Rank(path)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}

// Rank scores every template, best first.
func (m *TemplateMatcher) Rank(path motion.Path) []Match {
	if len(path) == 0 {
		return nil
	}
	candidate := Prepare(path)
	matches := make([]Match, 0, len(m.templates))
	for _, t := range m.templates {
		score := math.Max(0, 1-MeanDistance(candidate, t.Points))
		matches = append(matches, Match{Label: t.Label, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}
