package motion

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armseq/pkg/robot"
)

func TestSegment_Validate(t *testing.T) {
	valid := Segment{Target: target, Steps: 10, Mode: Eased(1.2)}

	tests := []struct {
		name   string
		mutate func(*Segment)
		ok     bool
	}{
		{"valid eased", func(*Segment) {}, true},
		{"valid clamp", func(s *Segment) { s.Mode = RateClamp() }, true},
		{"single step", func(s *Segment) { s.Steps = 1 }, true},
		{"zero steps", func(s *Segment) { s.Steps = 0 }, false},
		{"negative steps", func(s *Segment) { s.Steps = -3 }, false},
		{"nan target", func(s *Segment) { s.Target[2] = math.NaN() }, false},
		{"inf target", func(s *Segment) { s.Target[8] = math.Inf(-1) }, false},
		{"zero exponent", func(s *Segment) { s.Mode = Eased(0) }, false},
		{"negative exponent", func(s *Segment) { s.Mode = Eased(-1) }, false},
		{"unknown mode", func(s *Segment) { s.Mode = Mode{Kind: 7} }, false},
		{"unknown transition", func(s *Segment) { s.Authority = 9 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := s.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSegment)
			}
		})
	}
}

func TestProgram_Validate(t *testing.T) {
	assert.ErrorIs(t, Program{}.Validate(), ErrEmptyProgram)

	p := Program{Segments: []Segment{
		{Label: "ok", Target: target, Steps: 5, Mode: Eased(1)},
		{Label: "broken", Target: target, Steps: 0, Mode: RateClamp()},
	}}
	err := p.Validate()
	require.ErrorIs(t, err, ErrInvalidSegment)
	assert.Contains(t, err.Error(), "broken")
}

func TestDemoProgram(t *testing.T) {
	p := Demo()
	require.NoError(t, p.Validate())
	assert.Equal(t, RampUp, p.Segments[0].Authority)
	assert.Equal(t, len(p.Segments)-1, p.ReleaseIndex())
	assert.Equal(t, 3300, p.TotalSteps())
}

const waveYAML = `
name: wave
poses:
  rest: [0.29, 0, 0, 0.1, 0.29, 0, 0, 0.1, 0]
segments:
  - label: startup
    pose: rest
    steps: 500
    exponent: 1.2
    authority: ramp_up
  - repeat: 3
    segments:
      - label: out
        target: [0.39, 0, 0, 0.1, -1.8, 0.2, 0, 1.57079632, 0]
        steps: 450
        mode: uniform_rate_clamp
      - label: in
        target: [0.39, 0, 0, 0.1, -0.5, 0, 0, 1.57079632, 0]
        steps: 300
        mode: rate_clamp
  - label: shutdown
    pose: rest
    steps: 400
    mode: eased_power
    exponent: 1.2
    authority: ramp_down
`

func TestParseProgram(t *testing.T) {
	p, err := ParseProgram([]byte(waveYAML), "fallback")
	require.NoError(t, err)

	assert.Equal(t, "wave", p.Name)
	require.Len(t, p.Segments, 8)

	first := p.Segments[0]
	assert.Equal(t, "startup", first.Label)
	assert.Equal(t, robot.JointVector{0.29, 0, 0, 0.1, 0.29, 0, 0, 0.1, 0}, first.Target)
	assert.Equal(t, Eased(1.2), first.Mode)
	assert.Equal(t, RampUp, first.Authority)

	for i := 1; i <= 6; i += 2 {
		assert.Equal(t, "out", p.Segments[i].Label)
		assert.Equal(t, RateClamp(), p.Segments[i].Mode)
		assert.Equal(t, Hold, p.Segments[i].Authority)
		assert.Equal(t, "in", p.Segments[i+1].Label)
	}

	last := p.Segments[7]
	assert.Equal(t, RampDown, last.Authority)
	assert.Equal(t, 7, p.ReleaseIndex())
	assert.Equal(t, 500+3*(450+300)+400, p.TotalSteps())
}

func TestParseProgram_DefaultsAndErrors(t *testing.T) {
	p, err := ParseProgram([]byte("segments:\n  - {target: [0,0,0,0,0,0,0,0,0], steps: 1}\n"), "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", p.Name)
	assert.Equal(t, Eased(1), p.Segments[0].Mode)
	assert.Equal(t, Hold, p.Segments[0].Authority)

	bad := map[string]string{
		"short target":  "segments:\n  - {target: [0, 0, 0], steps: 5}\n",
		"zero steps":    "segments:\n  - {target: [0,0,0,0,0,0,0,0,0], steps: 0}\n",
		"unknown mode":  "segments:\n  - {target: [0,0,0,0,0,0,0,0,0], steps: 5, mode: spline}\n",
		"unknown pose":  "segments:\n  - {pose: home, steps: 5}\n",
		"pose + target": "poses: {home: [0,0,0,0,0,0,0,0,0]}\nsegments:\n  - {pose: home, target: [0,0,0,0,0,0,0,0,0], steps: 5}\n",
		"bad authority": "segments:\n  - {target: [0,0,0,0,0,0,0,0,0], steps: 5, authority: sideways}\n",
		"bad pose size": "poses: {home: [0, 1]}\nsegments:\n  - {pose: home, steps: 5}\n",
	}
	for name, doc := range bad {
		_, err := ParseProgram([]byte(doc), "x")
		assert.Error(t, err, name)
	}

	_, err = ParseProgram([]byte("name: empty\n"), "x")
	assert.ErrorIs(t, err, ErrEmptyProgram)
}

func TestLoadProgram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dance2.yaml")
	require.NoError(t, os.WriteFile(path, []byte("segments:\n  - {target: [0,0,0,0,0,0,0,0,0], steps: 3}\n"), 0600))

	p, err := LoadProgram(path)
	require.NoError(t, err)
	assert.Equal(t, "dance2", p.Name)

	_, err = LoadProgram(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
