// Package gesture recognizes spell shapes from 2D wand traces.
package gesture

import (
	"math"

	"wandcaster/motion"
)

// SampleCount is the fixed length every path is resampled to before
// comparison.
const SampleCount = 50

// MinPoints is the shortest trace worth classifying.
const MinPoints = 10

const normalizeEpsilon = 1e-5

// Resample returns n points spaced at equal arc length along path. The first
// output point is the first input point; if rounding leaves the walk short,
// the final input point pads the result.
func Resample(path motion.Path, n int) motion.Path {
	if len(path) == 0 || n <= 0 {
		return nil
	}
	out := make(motion.Path, 0, n)
	out = append(out, path[0])
	if n == 1 {
		return out
	}

	interval := Length(path) / float64(n-1)
	if interval > 0 {
		var acc float64
		prev := path[0]
		for i := 1; i < len(path) && len(out) < n; {
			cur := path[i]
			d := distance(prev, cur)
			if d > 0 && acc+d >= interval {
				t := (interval - acc) / d
				q := motion.Point{X: prev.X + t*(cur.X-prev.X), Y: prev.Y + t*(cur.Y-prev.Y)}
				out = append(out, q)
				prev = q
				acc = 0
				continue
			}
			acc += d
			prev = cur
			i++
		}
	}

	last := path[len(path)-1]
	for len(out) < n {
		out = append(out, last)
	}
	return out
}

// Normalize translates path to its bounding box minimum and scales each axis
// by its extent, so coordinates fall in [0,1]. Degenerate axes are divided by
// a small epsilon instead of zero.
func Normalize(path motion.Path) motion.Path {
	if len(path) == 0 {
		return nil
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range path {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	w := math.Max(maxX-minX, normalizeEpsilon)
	h := math.Max(maxY-minY, normalizeEpsilon)

	out := make(motion.Path, len(path))
	for i, p := range path {
		out[i] = motion.Point{X: (p.X - minX) / w, Y: (p.Y - minY) / h}
	}
	return out
}

// Prepare resamples and normalizes path for comparison.
func Prepare(path motion.Path) motion.Path {
	return Normalize(Resample(path, SampleCount))
}

// Length is the polyline length of path.
func Length(path motion.Path) float64 {
	var l float64
	for i := 1; i < len(path); i++ {
		l += distance(path[i-1], path[i])
	}
	return l
}

// MeanDistance is the average pointwise distance over the shorter of a and b.
func MeanDistance(a, b motion.Path) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += distance(a[i], b[i])
	}
	return sum / float64(n)
}

func distance(a, b motion.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
