package gesture

import (
	"math"

	"wandcaster/motion"
)

type shape func(n int) motion.Path

var builtins = []struct {
	label string
	gen   shape
}{
	{"Circle", circle},
	{"Rectangle", rectangle},
	{"Triangle", triangle},
	{"Triangle_Down", polyline(motion.Point{X: -1, Y: 1}, motion.Point{X: 1, Y: 1}, motion.Point{X: 0, Y: -1}, motion.Point{X: -1, Y: 1})},
	{"Diamond", polyline(motion.Point{X: 0, Y: 1}, motion.Point{X: 1, Y: 0}, motion.Point{X: 0, Y: -1}, motion.Point{X: -1, Y: 0}, motion.Point{X: 0, Y: 1})},
	{"Star", star},
	{"Heart", heart},
	{"Infinity", infinity},
	{"Spiral", spiral},
	{"Letter_C", letterC},
	{"Letter_L", polyline(motion.Point{X: 0, Y: 1}, motion.Point{X: 0, Y: 0}, motion.Point{X: 0.6, Y: 0})},
	{"Letter_M", polyline(motion.Point{X: 0, Y: 0}, motion.Point{X: 0, Y: 1}, motion.Point{X: 0.5, Y: 0.5}, motion.Point{X: 1, Y: 1}, motion.Point{X: 1, Y: 0})},
	{"Letter_N", polyline(motion.Point{X: 0, Y: 0}, motion.Point{X: 0, Y: 1}, motion.Point{X: 1, Y: 0}, motion.Point{X: 1, Y: 1})},
	{"Letter_S", letterS},
	{"Letter_U", letterU},
	{"Letter_W", polyline(motion.Point{X: 0, Y: 1}, motion.Point{X: 0.2, Y: 0}, motion.Point{X: 0.5, Y: 0.5}, motion.Point{X: 0.8, Y: 0}, motion.Point{X: 1, Y: 1})},
	{"Letter_Z", polyline(motion.Point{X: 0, Y: 1}, motion.Point{X: 1, Y: 1}, motion.Point{X: 0, Y: 0}, motion.Point{X: 1, Y: 0})},
	{"Check", check},
	{"Lightning", polyline(motion.Point{X: 0.2, Y: 1}, motion.Point{X: -0.2, Y: 0}, motion.Point{X: 0.2, Y: 0}, motion.Point{X: -0.2, Y: -1})},
	{"Swipe_Right", polyline(motion.Point{X: -1, Y: 0}, motion.Point{X: 1, Y: 0})},
	{"Swipe_Left", polyline(motion.Point{X: 1, Y: 0}, motion.Point{X: -1, Y: 0})},
	{"Swipe_Up", polyline(motion.Point{X: 0, Y: -1}, motion.Point{X: 0, Y: 1})},
	{"Swipe_Down", polyline(motion.Point{X: 0, Y: 1}, motion.Point{X: 0, Y: -1})},
	{"Diagonal_Right_Up", polyline(motion.Point{X: -1, Y: -1}, motion.Point{X: 1, Y: 1})},
	{"Chevron_Left", polyline(motion.Point{X: 0, Y: 1}, motion.Point{X: -1, Y: 0}, motion.Point{X: 0, Y: -1})},
	{"Chevron_Right", polyline(motion.Point{X: 0, Y: 1}, motion.Point{X: 1, Y: 0}, motion.Point{X: 0, Y: -1})},
	{"Chevron_Up", polyline(motion.Point{X: -1, Y: -0.5}, motion.Point{X: 0, Y: 0.5}, motion.Point{X: 1, Y: -0.5})},
	{"Chevron_Down", polyline(motion.Point{X: -1, Y: 0.5}, motion.Point{X: 0, Y: -0.5}, motion.Point{X: 1, Y: 0.5})},
}

// Generate returns the built-in shape library, each template normalized and
// resampled to SampleCount points.
func Generate() []Template {
	out := make([]Template, 0, len(builtins))
	for _, b := range builtins {
		out = append(out, NewTemplate(b.label, b.gen(SampleCount)))
	}
	return out
}

// Shape returns the raw built-in points for label.
func Shape(label string, n int) (motion.Path, bool) {
	for _, b := range builtins {
		if b.label == label {
			return b.gen(n), true
		}
	}
	return nil, false
}

func linspace(a, b float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{a}
	}
	out := make([]float64, n)
	step := (b - a) / float64(n-1)
	for i := range out {
		out[i] = a + step*float64(i)
	}
	out[n-1] = b
	return out
}

func line(from, to motion.Point, n int) motion.Path {
	xs, ys := linspace(from.X, to.X, n), linspace(from.Y, to.Y, n)
	out := make(motion.Path, n)
	for i := range out {
		out[i] = motion.Point{X: xs[i], Y: ys[i]}
	}
	return out
}

// polyline spreads n points evenly over the segments joining vertices.
func polyline(vertices ...motion.Point) shape {
	return func(n int) motion.Path {
		segs := len(vertices) - 1
		per := max(n/segs, 2)
		out := make(motion.Path, 0, per*segs)
		for i := 0; i < segs; i++ {
			out = append(out, line(vertices[i], vertices[i+1], per)...)
		}
		return out
	}
}

func parametric(from, to float64, n int, f func(t float64) motion.Point) motion.Path {
	ts := linspace(from, to, n)
	out := make(motion.Path, n)
	for i, t := range ts {
		out[i] = f(t)
	}
	return out
}

func circle(n int) motion.Path {
	return parametric(0, 2*math.Pi, n, func(t float64) motion.Point {
		return motion.Point{X: math.Cos(t), Y: math.Sin(t)}
	})
}

func rectangle(n int) motion.Path {
	return polyline(
		motion.Point{X: -1, Y: 1}, motion.Point{X: 1, Y: 1},
		motion.Point{X: 1, Y: -1}, motion.Point{X: -1, Y: -1},
		motion.Point{X: -1, Y: 1},
	)(n)
}

func triangle(n int) motion.Path {
	return polyline(
		motion.Point{X: -1, Y: -1}, motion.Point{X: 1, Y: -1},
		motion.Point{X: 0, Y: 1}, motion.Point{X: -1, Y: -1},
	)(n)
}

func star(n int) motion.Path {
	return polyline(
		motion.Point{X: 0, Y: 1},
		motion.Point{X: 0.587, Y: -0.809},
		motion.Point{X: -0.951, Y: 0.309},
		motion.Point{X: 0.951, Y: 0.309},
		motion.Point{X: -0.587, Y: -0.809},
		motion.Point{X: 0, Y: 1},
	)(n)
}

func heart(n int) motion.Path {
	return parametric(0, 2*math.Pi, n, func(t float64) motion.Point {
		s := math.Sin(t)
		return motion.Point{
			X: 16 * s * s * s,
			Y: 13*math.Cos(t) - 5*math.Cos(2*t) - 2*math.Cos(3*t) - math.Cos(4*t),
		}
	})
}

func infinity(n int) motion.Path {
	return parametric(0, 2*math.Pi, n, func(t float64) motion.Point {
		return motion.Point{X: math.Cos(t), Y: math.Sin(t) * math.Cos(t)}
	})
}

func spiral(n int) motion.Path {
	return parametric(0, 4*math.Pi, n, func(t float64) motion.Point {
		return motion.Point{X: t * math.Cos(t), Y: t * math.Sin(t)}
	})
}

func letterC(n int) motion.Path {
	return parametric(math.Pi/4, 7*math.Pi/4, n, func(t float64) motion.Point {
		return motion.Point{X: math.Cos(t), Y: math.Sin(t)}
	})
}

func letterS(n int) motion.Path {
	return parametric(1, -1, n, func(y float64) motion.Point {
		return motion.Point{X: 0.5 * math.Sin(y*math.Pi), Y: y}
	})
}

func letterU(n int) motion.Path {
	out := line(motion.Point{X: -1, Y: 2}, motion.Point{X: -1, Y: 0}, 10)
	out = append(out, parametric(math.Pi, 2*math.Pi, n, func(t float64) motion.Point {
		return motion.Point{X: math.Cos(t), Y: math.Sin(t)}
	})...)
	return append(out, line(motion.Point{X: 1, Y: 0}, motion.Point{X: 1, Y: 2}, 10)...)
}

func check(n int) motion.Path {
	out := line(motion.Point{X: 0, Y: 0}, motion.Point{X: 1, Y: -1}, n/3)
	return append(out, line(motion.Point{X: 1, Y: -1}, motion.Point{X: 3, Y: 2}, 2*n/3)...)
}
