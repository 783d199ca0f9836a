package motion

// AuthorityRamp tracks how much control authority the sequencer asserts over the
// joints it commands. The value always stays within [0,1].
type AuthorityRamp struct {
	value float64

	// active ramp
	transition Transition
	from       float64
	steps, i   int
}

// Value returns the current authority.
func (a *AuthorityRamp) Value() float64 {
	return a.value
}

// Begin starts a segment's transition over steps ticks, ramping from the
// current value.
func (a *AuthorityRamp) Begin(t Transition, steps int) {
	a.transition = t
	a.from = a.value
	a.steps = steps
	a.i = 0
}

// Step advances the ramp by one tick and returns the new value.
func (a *AuthorityRamp) Step() float64 {
	if a.transition == Hold || a.steps < 1 {
		return a.value
	}
	a.i = min(a.i+1, a.steps)
	frac := float64(a.i) / float64(a.steps)
	switch a.transition {
	case RampUp:
		a.value = a.from + (1-a.from)*frac
	case RampDown:
		a.value = a.from * (1 - frac)
	}
	if a.i == a.steps {
		// land exactly on the end value
		if a.transition == RampUp {
			a.value = 1
		} else {
			a.value = 0
		}
	}
	a.value = min(max(a.value, 0), 1)
	return a.value
}
