package motion

import (
	"math"

	"github.com/gwillem/armseq/pkg/robot"
)

// arrivalTolerance is the residue below which a rate-clamped joint snaps to
// its target.
const arrivalTolerance = 1e-9

// Interpolator advances a pose one tick at a time toward a segment target.
type Interpolator interface {
	// Step moves pose to the next intermediate position.
	Step(pose *robot.JointVector)
}

// Begin starts interpolating from start to target over steps ticks. Each call
// returns fresh state, so nothing carries over between segments.
func (m Mode) Begin(start, target robot.JointVector, steps int) Interpolator {
	if m.Kind == UniformRateClamp {
		return newRateClamp(start, target, steps)
	}
	return &easedPower{
		start:    start,
		target:   target,
		steps:    steps,
		exponent: m.Exponent,
	}
}

// easedPower is closed form: step i depends only on the start snapshot.
type easedPower struct {
	start, target robot.JointVector
	steps         int
	exponent      float64
	i             int
}

func (e *easedPower) Step(pose *robot.JointVector) {
	s := e.shape()
	e.i++
	if s >= 1 {
		*pose = e.target
		return
	}
	for j := range pose {
		pose[j] = e.start[j] + (e.target[j]-e.start[j])*s
	}
}

func (e *easedPower) shape() float64 {
	if e.steps <= 1 || e.i >= e.steps-1 {
		return 1
	}
	t := float64(e.i) / float64(e.steps-1)
	return math.Pow(t, e.exponent)
}

// rateClamp bounds every joint's per-tick change by a budget fixed at segment
// entry, so joints that start together arrive together.
type rateClamp struct {
	target robot.JointVector
	rate   [robot.NumJoints]float64
}

func newRateClamp(start, target robot.JointVector, steps int) *rateClamp {
	r := &rateClamp{target: target}
	for j := range r.rate {
		r.rate[j] = math.Abs(target[j]-start[j]) / float64(steps)
	}
	return r
}

func (r *rateClamp) Step(pose *robot.JointVector) {
	for j := range pose {
		delta := r.target[j] - pose[j]
		pose[j] += min(max(delta, -r.rate[j]), r.rate[j])
		if math.Abs(r.target[j]-pose[j]) <= arrivalTolerance*max(1, math.Abs(r.target[j])) {
			pose[j] = r.target[j]
		}
	}
}
