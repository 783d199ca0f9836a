package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func run(a *AuthorityRamp, t Transition, steps int) []float64 {
	a.Begin(t, steps)
	out := make([]float64, steps)
	for i := range out {
		out[i] = a.Step()
	}
	return out
}

func TestAuthorityRamp_Up(t *testing.T) {
	var a AuthorityRamp
	values := run(&a, RampUp, 500)

	assert.InDelta(t, 1.0/500, values[0], 1e-12)
	assert.Equal(t, 1.0, values[499])
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1])
		assert.LessOrEqual(t, values[i], 1.0)
	}
}

func TestAuthorityRamp_Down(t *testing.T) {
	a := AuthorityRamp{}
	run(&a, RampUp, 10)
	values := run(&a, RampDown, 400)

	assert.InDelta(t, 1-1.0/400, values[0], 1e-12)
	assert.Equal(t, 0.0, values[399])
	for i := 1; i < len(values); i++ {
		assert.LessOrEqual(t, values[i], values[i-1])
		assert.GreaterOrEqual(t, values[i], 0.0)
	}
}

func TestAuthorityRamp_HoldKeepsValue(t *testing.T) {
	var a AuthorityRamp
	run(&a, RampUp, 4)
	for _, v := range run(&a, Hold, 20) {
		assert.Equal(t, 1.0, v)
	}

	var idle AuthorityRamp
	for _, v := range run(&idle, Hold, 5) {
		assert.Equal(t, 0.0, v)
	}
}

func TestAuthorityRamp_FromPartialValue(t *testing.T) {
	var a AuthorityRamp
	up := run(&a, RampUp, 10)[:3]
	assert.InDelta(t, 0.3, up[2], 1e-12)

	// interrupted after three ticks: release starts from 0.3
	a = AuthorityRamp{value: up[2]}
	down := run(&a, RampDown, 3)
	assert.InDelta(t, 0.2, down[0], 1e-12)
	assert.InDelta(t, 0.1, down[1], 1e-12)
	assert.Equal(t, 0.0, down[2])
}

func TestAuthorityRamp_SingleStep(t *testing.T) {
	var a AuthorityRamp
	assert.Equal(t, []float64{1}, run(&a, RampUp, 1))
	assert.Equal(t, []float64{0}, run(&a, RampDown, 1))
}
