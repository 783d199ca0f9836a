// Package motion defines segments, programs, interpolation and authority ramps.
package motion

import (
	"errors"
	"fmt"
	"math"

	"github.com/gwillem/armseq/pkg/robot"
)

var (
	// ErrInvalidSegment is wrapped by every segment validation error.
	ErrInvalidSegment = errors.New("invalid segment")
	// ErrEmptyProgram is returned when a program has no segments.
	ErrEmptyProgram = errors.New("program has no segments")
)

// ModeKind selects an interpolation law.
type ModeKind int

const (
	// EasedPower moves along start + (target-start) * t^exponent.
	EasedPower ModeKind = iota
	// UniformRateClamp moves each joint by at most |travel|/steps per tick.
	UniformRateClamp
)

func (k ModeKind) String() string {
	switch k {
	case EasedPower:
		return "eased_power"
	case UniformRateClamp:
		return "uniform_rate_clamp"
	default:
		return fmt.Sprintf("mode(%d)", int(k))
	}
}

// Mode is an interpolation law with its parameters.
type Mode struct {
	Kind     ModeKind
	Exponent float64 // EasedPower only
}

// Eased returns an EasedPower mode. Exponent 1 is linear, above 1 eases in.
func Eased(exponent float64) Mode {
	return Mode{Kind: EasedPower, Exponent: exponent}
}

// RateClamp returns a UniformRateClamp mode.
func RateClamp() Mode {
	return Mode{Kind: UniformRateClamp}
}

func (m Mode) String() string {
	if m.Kind == EasedPower {
		return fmt.Sprintf("%s(%g)", m.Kind, m.Exponent)
	}
	return m.Kind.String()
}

// Transition describes what a segment does to control authority.
type Transition int

const (
	// Hold keeps authority at its last value.
	Hold Transition = iota
	// RampUp raises authority linearly to 1 over the segment.
	RampUp
	// RampDown lowers authority linearly to 0 over the segment.
	RampDown
)

func (t Transition) String() string {
	switch t {
	case Hold:
		return "none"
	case RampUp:
		return "ramp_up"
	case RampDown:
		return "ramp_down"
	default:
		return fmt.Sprintf("transition(%d)", int(t))
	}
}

// Segment is one motion primitive: drive every joint from wherever the previous
// segment left it to Target in exactly Steps ticks.
type Segment struct {
	Label     string
	Target    robot.JointVector
	Steps     int
	Mode      Mode
	Authority Transition
}

// Validate rejects segments the sequencer must not start.
func (s Segment) Validate() error {
	if s.Steps < 1 {
		return fmt.Errorf("%w: steps must be at least 1, got %d", ErrInvalidSegment, s.Steps)
	}
	if !s.Target.Finite() {
		return fmt.Errorf("%w: target has non-finite values", ErrInvalidSegment)
	}
	switch s.Mode.Kind {
	case EasedPower:
		e := s.Mode.Exponent
		if math.IsNaN(e) || math.IsInf(e, 0) || e <= 0 {
			return fmt.Errorf("%w: exponent must be a positive number, got %g", ErrInvalidSegment, e)
		}
	case UniformRateClamp:
	default:
		return fmt.Errorf("%w: unknown mode %s", ErrInvalidSegment, s.Mode.Kind)
	}
	switch s.Authority {
	case Hold, RampUp, RampDown:
	default:
		return fmt.Errorf("%w: unknown authority transition %s", ErrInvalidSegment, s.Authority)
	}
	return nil
}

// Name returns the label, or a positional name when the segment has none.
func (s Segment) Name(index int) string {
	if s.Label != "" {
		return s.Label
	}
	return fmt.Sprintf("segment %d", index)
}

// Program is an ordered choreography, executed start to end exactly once.
type Program struct {
	Name     string
	Segments []Segment
}

// Validate checks every segment. The sequencer calls it before the first tick
// so an invalid program emits nothing.
func (p Program) Validate() error {
	if len(p.Segments) == 0 {
		return ErrEmptyProgram
	}
	for i, s := range p.Segments {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.Name(i), err)
		}
	}
	return nil
}

// TotalSteps returns the number of ticks the program takes.
func (p Program) TotalSteps() int {
	n := 0
	for _, s := range p.Segments {
		n += s.Steps
	}
	return n
}

// ReleaseIndex returns the index of the final segment if it ramps authority
// down, or -1.
func (p Program) ReleaseIndex() int {
	if n := len(p.Segments); n > 0 && p.Segments[n-1].Authority == RampDown {
		return n - 1
	}
	return -1
}
