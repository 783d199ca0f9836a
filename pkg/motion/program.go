package motion

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/gwillem/armseq/pkg/robot"
)

// maxExpandedSegments bounds repeat expansion of a program file.
const maxExpandedSegments = 100_000

// programFile is the YAML layout of a choreography.
//
//	name: wave
//	poses:
//	  rest: [0.29, 0, 0, 0.1, 0.29, 0, 0, 0.1, 0]
//	segments:
//	  - {label: startup, pose: rest, steps: 500, mode: eased_power, exponent: 1.2, authority: ramp_up}
//	  - repeat: 3
//	    segments:
//	      - {target: [0.39, 0, 0, 0.1, -0.5, -0.2, 0, 1.5708, 0], steps: 450, mode: uniform_rate_clamp}
//	  - {label: shutdown, pose: rest, steps: 400, exponent: 1.2, authority: ramp_down}
type programFile struct {
	Name     string               `koanf:"name"`
	Poses    map[string][]float64 `koanf:"poses"`
	Segments []segmentEntry       `koanf:"segments"`
}

// segmentEntry is either a segment or a repeated block of entries.
type segmentEntry struct {
	Label     string    `koanf:"label"`
	Target    []float64 `koanf:"target"`
	Pose      string    `koanf:"pose"`
	Steps     int       `koanf:"steps"`
	Mode      string    `koanf:"mode"`
	Exponent  *float64  `koanf:"exponent"`
	Authority string    `koanf:"authority"`

	Repeat   int            `koanf:"repeat"`
	Segments []segmentEntry `koanf:"segments"`
}

// LoadProgram reads a choreography file. The program name defaults to the file
// name without extension.
func LoadProgram(path string) (Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Program{}, fmt.Errorf("read program: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	p, err := ParseProgram(data, name)
	if err != nil {
		return Program{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseProgram decodes a YAML choreography and expands repeated blocks into a
// flat, validated Program.
func ParseProgram(data []byte, defaultName string) (Program, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return Program{}, fmt.Errorf("parse program: %w", err)
	}
	var f programFile
	if err := k.Unmarshal("", &f); err != nil {
		return Program{}, fmt.Errorf("decode program: %w", err)
	}

	poses := make(map[string]robot.JointVector, len(f.Poses))
	for name, values := range f.Poses {
		v, err := robot.JointVectorFrom(values)
		if err != nil {
			return Program{}, fmt.Errorf("pose %q: %w", name, err)
		}
		poses[name] = v
	}

	p := Program{Name: f.Name}
	if p.Name == "" {
		p.Name = defaultName
	}
	if err := expand(&p.Segments, f.Segments, poses); err != nil {
		return Program{}, err
	}
	if err := p.Validate(); err != nil {
		return Program{}, err
	}
	return p, nil
}

func expand(out *[]Segment, entries []segmentEntry, poses map[string]robot.JointVector) error {
	for _, e := range entries {
		if len(e.Segments) > 0 {
			repeat := e.Repeat
			if repeat == 0 {
				repeat = 1
			}
			if repeat < 0 {
				return fmt.Errorf("repeat must be positive, got %d", repeat)
			}
			for range repeat {
				if err := expand(out, e.Segments, poses); err != nil {
					return err
				}
				if len(*out) > maxExpandedSegments {
					return fmt.Errorf("program expands to more than %d segments", maxExpandedSegments)
				}
			}
			continue
		}

		seg, err := e.segment(poses)
		if err != nil {
			return fmt.Errorf("%s: %w", Segment{Label: e.Label}.Name(len(*out)), err)
		}
		*out = append(*out, seg)
	}
	return nil
}

func (e segmentEntry) segment(poses map[string]robot.JointVector) (Segment, error) {
	seg := Segment{Label: e.Label, Steps: e.Steps}

	switch {
	case e.Pose != "" && e.Target != nil:
		return seg, fmt.Errorf("%w: set either target or pose, not both", ErrInvalidSegment)
	case e.Pose != "":
		v, ok := poses[e.Pose]
		if !ok {
			return seg, fmt.Errorf("%w: unknown pose %q", ErrInvalidSegment, e.Pose)
		}
		seg.Target = v
	default:
		v, err := robot.JointVectorFrom(e.Target)
		if err != nil {
			return seg, fmt.Errorf("%w: %v", ErrInvalidSegment, err)
		}
		seg.Target = v
	}

	switch strings.ToLower(e.Mode) {
	case "", "eased", "eased_power":
		exp := 1.0
		if e.Exponent != nil {
			exp = *e.Exponent
		}
		seg.Mode = Eased(exp)
	case "rate_clamp", "uniform_rate_clamp":
		seg.Mode = RateClamp()
	default:
		return seg, fmt.Errorf("%w: unknown mode %q", ErrInvalidSegment, e.Mode)
	}

	switch strings.ToLower(e.Authority) {
	case "", "none", "hold":
		seg.Authority = Hold
	case "ramp_up", "up":
		seg.Authority = RampUp
	case "ramp_down", "down":
		seg.Authority = RampDown
	default:
		return seg, fmt.Errorf("%w: unknown authority %q", ErrInvalidSegment, e.Authority)
	}

	return seg, nil
}

const halfPi = 1.57079632

// Demo returns the built-in arm-wave choreography: rise to a rest pose while
// taking authority, wave the right forearm, then settle and release.
func Demo() Program {
	rest := robot.JointVector{0.29, 0, 0, 0.1, 0.29, 0, 0, 0.1, 0}
	settle := robot.JointVector{0.39, 0, 0, 0.1, 0.39, 0, 0, 0.1, 0}
	wave := func(pitch, roll float64) robot.JointVector {
		return robot.JointVector{0.39, 0, 0, 0.1, pitch, roll, 0, halfPi, 0}
	}

	return Program{
		Name: "demo",
		Segments: []Segment{
			{Label: "startup", Target: rest, Steps: 500, Mode: Eased(1.2), Authority: RampUp},
			{Label: "raise", Target: wave(-0.5, -0.2), Steps: 500, Mode: Eased(1.5)},
			{Label: "reach", Target: wave(-1.8, 0.2), Steps: 450, Mode: Eased(1)},
			{Label: "wave out", Target: wave(-1.7, 0), Steps: 450, Mode: Eased(1)},
			{Label: "wave in", Target: wave(-0.5, 0), Steps: 300, Mode: Eased(1)},
			{Label: "tuck", Target: wave(-0.5, -0.2), Steps: 300, Mode: Eased(1)},
			{Label: "hold", Target: wave(-0.5, -0.2), Steps: 400, Mode: Eased(1)},
			{Label: "shutdown", Target: settle, Steps: 400, Mode: Eased(1.2), Authority: RampDown},
		},
	}
}
