package command

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/gwillem/armseq/pkg/robot"
)

// Wire layout (protobuf encoding, float32 on the wire):
//
//	message Frame     { uint64 seq = 1; float authority = 2; repeated MotorCmd motors = 3; }
//	message MotorCmd  { uint32 index = 1; float q = 2; float dq = 3; float kp = 4; float kd = 5; float tau = 6; }
//	message State     { uint64 tick = 1; repeated MotorState motors = 2; }
//	message MotorState{ uint32 index = 1; float q = 2; float dq = 3; float tau_est = 4; }

var errWireType = errors.New("unexpected wire type")

// ErrIncompleteState is returned by State.Joints when a commanded joint is
// missing from the snapshot or has a non-finite position.
var ErrIncompleteState = errors.New("incomplete joint state")

// MarshalFrame encodes a frame.
func MarshalFrame(f *Frame) []byte {
	b := make([]byte, 0, 16+len(f.Motors)*34)
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, f.Seq)
	b = appendFloat(b, 2, f.Authority)
	for _, m := range f.Motors {
		var mb []byte
		mb = protowire.AppendTag(mb, 1, protowire.VarintType)
		mb = protowire.AppendVarint(mb, uint64(m.Index))
		mb = appendFloat(mb, 2, m.Position)
		mb = appendFloat(mb, 3, m.Velocity)
		mb = appendFloat(mb, 4, m.Kp)
		mb = appendFloat(mb, 5, m.Kd)
		mb = appendFloat(mb, 6, m.Tau)
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, mb)
	}
	return b
}

// UnmarshalFrame decodes a frame.
func UnmarshalFrame(b []byte) (*Frame, error) {
	f := &Frame{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			f.Seq = v
			return n, nil
		case num == 2 && typ == protowire.Fixed32Type:
			return consumeFloat(b, &f.Authority)
		case num == 3 && typ == protowire.BytesType:
			mb, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			m, err := unmarshalMotorCmd(mb)
			if err != nil {
				return 0, err
			}
			f.Motors = append(f.Motors, m)
			return n, nil
		}
		return skip(num, typ, b)
	})
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

func unmarshalMotorCmd(b []byte) (MotorCommand, error) {
	var m MotorCommand
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			m.Index = int(v)
			return n, nil
		}
		if typ == protowire.Fixed32Type {
			switch num {
			case 2:
				return consumeFloat(b, &m.Position)
			case 3:
				return consumeFloat(b, &m.Velocity)
			case 4:
				return consumeFloat(b, &m.Kp)
			case 5:
				return consumeFloat(b, &m.Kd)
			case 6:
				return consumeFloat(b, &m.Tau)
			}
		}
		return skip(num, typ, b)
	})
	return m, err
}

// MotorState is one motor's entry in a robot state snapshot.
type MotorState struct {
	Index    int
	Position float64
	Velocity float64
	Torque   float64
}

// State is a full-robot joint state snapshot.
type State struct {
	Tick   uint64
	Motors []MotorState
}

// Positions returns motor positions indexed by motor index.
func (s *State) Positions() []float64 {
	size := 0
	for _, m := range s.Motors {
		size = max(size, m.Index+1)
	}
	q := make([]float64, size)
	for _, m := range s.Motors {
		q[m.Index] = m.Position
	}
	return q
}

// Joints returns the commanded joints' positions. Every joint's motor must be
// present with a finite position.
func (s *State) Joints() (robot.JointVector, error) {
	present := make(map[int]float64, len(s.Motors))
	for _, m := range s.Motors {
		present[m.Index] = m.Position
	}
	for _, j := range robot.AllJoints() {
		q, ok := present[j.MotorIndex()]
		if !ok {
			return robot.JointVector{}, fmt.Errorf("%w: %s (motor %d) missing", ErrIncompleteState, j, j.MotorIndex())
		}
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return robot.JointVector{}, fmt.Errorf("%w: %s (motor %d) is %v", ErrIncompleteState, j, j.MotorIndex(), q)
		}
	}
	return robot.FromMotors(s.Positions()), nil
}

// MarshalState encodes a state snapshot.
func MarshalState(s *State) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, s.Tick)
	for _, m := range s.Motors {
		var mb []byte
		mb = protowire.AppendTag(mb, 1, protowire.VarintType)
		mb = protowire.AppendVarint(mb, uint64(m.Index))
		mb = appendFloat(mb, 2, m.Position)
		mb = appendFloat(mb, 3, m.Velocity)
		mb = appendFloat(mb, 4, m.Torque)
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, mb)
	}
	return b
}

// UnmarshalState decodes a state snapshot.
func UnmarshalState(b []byte) (*State, error) {
	s := &State{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s.Tick = v
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			mb, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			m, err := unmarshalMotorState(mb)
			if err != nil {
				return 0, err
			}
			s.Motors = append(s.Motors, m)
			return n, nil
		}
		return skip(num, typ, b)
	})
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}

func unmarshalMotorState(b []byte) (MotorState, error) {
	var m MotorState
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			m.Index = int(v)
			return n, nil
		}
		if typ == protowire.Fixed32Type {
			switch num {
			case 2:
				return consumeFloat(b, &m.Position)
			case 3:
				return consumeFloat(b, &m.Velocity)
			case 4:
				return consumeFloat(b, &m.Torque)
			}
		}
		return skip(num, typ, b)
	})
	if err == nil && (m.Index < 0 || m.Index >= 1<<16) {
		err = fmt.Errorf("motor index %d out of range", m.Index)
	}
	return m, err
}

// walk calls field for every field in b. field consumes the value and returns
// the number of bytes used, or a negative protowire error code.
func walk(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if typ == protowire.EndGroupType {
		return 0, fmt.Errorf("field %d: %w", num, errWireType)
	}
	return protowire.ConsumeFieldValue(num, typ, b), nil
}

func appendFloat(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(float32(v)))
}

func consumeFloat(b []byte, dst *float64) (int, error) {
	v, n := protowire.ConsumeFixed32(b)
	if n >= 0 {
		*dst = float64(math.Float32frombits(v))
	}
	return n, nil
}
