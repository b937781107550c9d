package motion

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// StandardGravity in m/s².
const StandardGravity = 9.80665

// Point is a position on the gesture plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Path is an ordered gesture trace.
type Path []Point

// Config tunes the tracker.
type Config struct {
	// SampleRate of the IMU stream in Hz.
	SampleRate float64 `yaml:"sample_rate"`
	// Beta is the Madgwick gain.
	Beta float64 `yaml:"beta"`
	// PlaneScale converts tip deflection into plane units.
	PlaneScale float64 `yaml:"plane_scale"`
	// GravityAlpha is the low-pass factor for the gravity estimate.
	GravityAlpha float64 `yaml:"gravity_alpha"`
	// GravityMin and GravityMax bound the accel magnitude, in units of g,
	// accepted as a gravity measurement.
	GravityMin float64 `yaml:"gravity_min"`
	GravityMax float64 `yaml:"gravity_max"`
	// SmoothAlpha is the low-pass factor applied to output points.
	SmoothAlpha float64 `yaml:"smooth_alpha"`
	// MaxPoints caps the buffered path; later points are dropped.
	MaxPoints int `yaml:"max_points"`
}

// DefaultConfig matches the wand's ~234 Hz stream.
func DefaultConfig() Config {
	return Config{
		SampleRate:   1 / 0.0042735,
		Beta:         DefaultBeta,
		PlaneScale:   250,
		GravityAlpha: 0.02,
		GravityMin:   0.8,
		GravityMax:   1.2,
		SmoothAlpha:  0.15,
		MaxPoints:    8192,
	}
}

// ShaftAxis is the sensor axis pointing along the wand toward the tip.
var ShaftAxis = r3.Vector{X: 1}

// Tracker turns IMU samples into a roll-invariant 2D trace of the wand tip.
// Only the forward (shaft) direction is projected, so twisting the wand about
// its shaft does not move the trace. It is not safe for concurrent use.
type Tracker struct {
	cfg    Config
	filter *Madgwick

	active     bool
	hasRef     bool
	refForward r3.Vector
	gravity    r3.Vector
	planeX     r3.Vector
	planeY     r3.Vector
	smoothed   Point
	path       Path
}

// NewTracker returns an idle tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = DefaultConfig().MaxPoints
	}
	return &Tracker{
		cfg:    cfg,
		filter: NewMadgwick(cfg.SampleRate, cfg.Beta),
		path:   make(Path, 0, 512),
	}
}

// Start clears all state and begins buffering a new path.
func (t *Tracker) Start() {
	t.filter.Reset()
	t.hasRef = false
	t.refForward = r3.Vector{}
	t.gravity = r3.Vector{}
	t.planeX, t.planeY = r3.Vector{}, r3.Vector{}
	t.smoothed = Point{}
	t.path = t.path[:0]
	t.active = true
}

// Stop ends buffering and returns a copy of the path.
func (t *Tracker) Stop() Path {
	t.active = false
	out := make(Path, len(t.path))
	copy(out, t.path)
	return out
}

// Discard ends buffering and drops the path.
func (t *Tracker) Discard() {
	t.active = false
	t.path = t.path[:0]
}

// Active reports whether the tracker is buffering.
func (t *Tracker) Active() bool { return t.active }

// Len is the number of buffered points.
func (t *Tracker) Len() int { return len(t.path) }

// Orientation returns the current fused orientation.
func (t *Tracker) Orientation() quat.Number { return t.filter.Quaternion() }

// Update fuses one sample and returns the smoothed plane position. accel is
// in m/s², gyro in rad/s. It returns false when the tracker is idle or the
// sample is unusable. The first sample after Start fixes the reference frame
// and yields the origin without being buffered.
func (t *Tracker) Update(accel, gyro r3.Vector) (Point, bool) {
	if !t.active || !finite(accel) || !finite(gyro) {
		return Point{}, false
	}
	aMag := accel.Norm()
	if !t.hasRef && aMag == 0 {
		return Point{}, false
	}

	q := t.filter.UpdateIMU(gyro, accel)
	forward := Rotate(q, ShaftAxis).Normalize()

	if !t.hasRef {
		t.hasRef = true
		t.refForward = forward
		t.gravity = accel.Mul(-1 / aMag)
		t.planeX, t.planeY = planeAxes(t.refForward, t.gravity)
		return Point{}, true
	}

	g := aMag / StandardGravity
	if g >= t.cfg.GravityMin && g <= t.cfg.GravityMax {
		measured := accel.Mul(-1 / aMag)
		t.gravity = t.gravity.Mul(1 - t.cfg.GravityAlpha).Add(measured.Mul(t.cfg.GravityAlpha)).Normalize()
	}
	t.planeX, t.planeY = planeAxes(t.refForward, t.gravity)

	delta := forward.Sub(t.refForward)
	raw := Point{
		X: delta.Dot(t.planeX) * t.cfg.PlaneScale,
		Y: delta.Dot(t.planeY) * t.cfg.PlaneScale,
	}
	a := t.cfg.SmoothAlpha
	t.smoothed = Point{
		X: (1-a)*t.smoothed.X + a*raw.X,
		Y: (1-a)*t.smoothed.Y + a*raw.Y,
	}

	if len(t.path) < t.cfg.MaxPoints {
		t.path = append(t.path, t.smoothed)
	}
	return t.smoothed, true
}

// planeAxes builds an orthonormal basis perpendicular to forward with its
// vertical axis anchored to up.
func planeAxes(forward, up r3.Vector) (x, y r3.Vector) {
	if math.Abs(up.Dot(forward)) > 0.9 {
		if math.Abs(forward.Z) < 0.9 {
			up = r3.Vector{Z: 1}
		} else {
			up = r3.Vector{Y: 1}
		}
	}
	x = up.Cross(forward).Normalize()
	y = forward.Cross(x).Normalize()
	return x, y
}

func finite(v r3.Vector) bool {
	for _, c := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
