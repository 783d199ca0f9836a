package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armseq/pkg/robot"
)

const eps = 1e-12

// trajectory runs a full segment and returns every intermediate pose.
func trajectory(mode Mode, start, target robot.JointVector, steps int) []robot.JointVector {
	pose := start
	interp := mode.Begin(start, target, steps)
	out := make([]robot.JointVector, 0, steps)
	for range steps {
		interp.Step(&pose)
		out = append(out, pose)
	}
	return out
}

var (
	zero   = robot.JointVector{}
	target = robot.JointVector{0.39, 0, 0, 0.1, 0.39, 0, 0, 0.1, 0}
	far    = robot.JointVector{-1.8, 0.2, 1.4, 1.57079632, 0.78, -0.18, -1.7, 1.75, -0.1}
)

func TestEasedPower_ArrivesExactly(t *testing.T) {
	for _, exp := range []float64{0.5, 1, 1.2, 1.5, 3} {
		for _, steps := range []int{2, 3, 10, 450, 500} {
			poses := trajectory(Eased(exp), zero, far, steps)
			require.Len(t, poses, steps)
			assert.Equal(t, far, poses[steps-1], "exp=%g steps=%d", exp, steps)
		}
	}
}

func TestEasedPower_FirstStepIsStart(t *testing.T) {
	poses := trajectory(Eased(1.2), target, far, 100)
	assert.Equal(t, target, poses[0])
}

func TestEasedPower_Shape(t *testing.T) {
	start := robot.JointVector{}
	end := robot.JointVector{1}

	linear := trajectory(Eased(1), start, end, 11)
	easeIn := trajectory(Eased(2), start, end, 11)
	easeOut := trajectory(Eased(0.5), start, end, 11)

	assert.InDelta(t, 0.5, linear[5][0], eps)
	assert.InDelta(t, 0.25, easeIn[5][0], eps, "exponent > 1 starts slow")
	assert.InDelta(t, 0.7071067811865476, easeOut[5][0], 1e-9, "exponent < 1 starts fast")

	for i := 1; i < len(easeIn); i++ {
		assert.GreaterOrEqual(t, easeIn[i][0], easeIn[i-1][0])
	}
}

func TestRateClamp_ArrivesAfterNSteps(t *testing.T) {
	start := robot.JointVector{0.39, 0, 0, 0.1, -0.5, -0.2, 0, 1.57079632, 0}
	for _, steps := range []int{2, 7, 300, 450, 1000} {
		poses := trajectory(RateClamp(), start, far, steps)
		assert.Equal(t, far, poses[steps-1], "steps=%d", steps)
		if steps > 2 {
			assert.NotEqual(t, far, poses[steps-2], "steps=%d arrives early", steps)
		}
	}
}

func TestRateClamp_ZeroTravelJointsHold(t *testing.T) {
	start := robot.JointVector{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}
	end := start
	end[robot.RightElbow] = 1.5

	for _, pose := range trajectory(RateClamp(), start, end, 50) {
		for j := range pose {
			if robot.Joint(j) == robot.RightElbow {
				continue
			}
			assert.Equal(t, start[j], pose[j], "joint %s moved", robot.Joint(j))
		}
	}
}

func TestRateClamp_JointsMoveProportionally(t *testing.T) {
	end := robot.JointVector{1, 2, -4}
	poses := trajectory(RateClamp(), zero, end, 4)

	assert.InDelta(t, 0.25, poses[0][0], eps)
	assert.InDelta(t, 0.5, poses[0][1], eps)
	assert.InDelta(t, -1.0, poses[0][2], eps)
	assert.InDelta(t, 0.5, poses[1][0], eps)
	assert.InDelta(t, -2.0, poses[1][2], eps)
}

func TestRateClamp_IdempotentAfterArrival(t *testing.T) {
	pose := target
	interp := RateClamp().Begin(target, far, 300)
	for range 300 {
		interp.Step(&pose)
	}
	require.Equal(t, far, pose)

	for range 5 {
		interp.Step(&pose)
		assert.Equal(t, far, pose)
	}
}

func TestSingleStepReachesTarget(t *testing.T) {
	for _, mode := range []Mode{Eased(1.2), Eased(0.3), RateClamp()} {
		poses := trajectory(mode, target, far, 1)
		require.Len(t, poses, 1)
		assert.Equal(t, far, poses[0], "mode %s", mode)
	}
}

func TestBeginIsFreshPerSegment(t *testing.T) {
	// A second segment's budget comes from its own start, not the first one's.
	first := trajectory(RateClamp(), zero, target, 10)
	second := trajectory(RateClamp(), first[9], zero, 2)

	assert.InDelta(t, target[0]/2, second[0][0], eps)
	assert.Equal(t, zero, second[1])
}
