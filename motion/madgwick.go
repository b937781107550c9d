// Package motion fuses wand IMU samples into an orientation and projects the
// wand tip's travel onto a 2D plane.
package motion

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// DefaultBeta is the gradient descent gain for IMU-only fusion.
const DefaultBeta = 0.033

var identity = quat.Number{Real: 1}

// Madgwick is a gyroscope/accelerometer orientation filter. It is not safe
// for concurrent use.
type Madgwick struct {
	beta float64
	dt   float64
	q    quat.Number
}

// NewMadgwick returns a filter at identity orientation. sampleRate is in Hz.
func NewMadgwick(sampleRate, beta float64) *Madgwick {
	return &Madgwick{beta: beta, dt: 1 / sampleRate, q: identity}
}

// Reset returns the filter to identity orientation.
func (m *Madgwick) Reset() {
	m.q = identity
}

// Quaternion returns the current orientation, sensor to world.
func (m *Madgwick) Quaternion() quat.Number {
	return m.q
}

// UpdateIMU integrates one sample. gyro is in rad/s; accel may be in any unit
// since only its direction is used. A zero accel vector skips the gravity
// correction.
func (m *Madgwick) UpdateIMU(gyro, accel r3.Vector) quat.Number {
	q := m.q
	qDot := quat.Scale(0.5, quat.Mul(q, quat.Number{Imag: gyro.X, Jmag: gyro.Y, Kmag: gyro.Z}))

	if n := accel.Norm(); n > 0 {
		a := accel.Mul(1 / n)
		q0, q1, q2, q3 := q.Real, q.Imag, q.Jmag, q.Kmag

		// Objective function: predicted gravity minus measured.
		f1 := 2*(q1*q3-q0*q2) - a.X
		f2 := 2*(q0*q1+q2*q3) - a.Y
		f3 := 2*(0.5-q1*q1-q2*q2) - a.Z

		// Jacobian transpose times objective.
		step := quat.Number{
			Real: -2*q2*f1 + 2*q1*f2,
			Imag: 2*q3*f1 + 2*q0*f2 - 4*q1*f3,
			Jmag: -2*q0*f1 + 2*q3*f2 - 4*q2*f3,
			Kmag: 2*q1*f1 + 2*q2*f2,
		}
		if sn := quat.Abs(step); sn > 0 {
			qDot = quat.Sub(qDot, quat.Scale(m.beta/sn, step))
		}
	}

	q = quat.Add(q, quat.Scale(m.dt, qDot))
	m.q = normalize(q)
	return m.q
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return identity
	}
	return quat.Scale(1/n, q)
}

// Rotate applies q to v.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}
