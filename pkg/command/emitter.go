package command

import (
	"context"

	"github.com/gwillem/armseq/pkg/robot"
)

// Emitter turns a desired pose and authority into a Frame and sends it.
type Emitter struct {
	sender     Sender
	gains      Gains
	weightSlot bool
	seq        uint64
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithGains sets the gains sent with every setpoint.
func WithGains(g Gains) EmitterOption {
	return func(e *Emitter) { e.gains = g }
}

// WithWeightSlot also writes the authority into the position of the unused
// motor slot, for receivers that read it from there.
func WithWeightSlot(on bool) EmitterOption {
	return func(e *Emitter) { e.weightSlot = on }
}

// NewEmitter creates an emitter sending to s.
func NewEmitter(s Sender, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		sender: s,
		gains:  DefaultGains(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build creates the next frame for pose and authority without sending it.
func (e *Emitter) Build(pose robot.JointVector, authority float64) *Frame {
	e.seq++
	n := robot.NumJoints
	if e.weightSlot {
		n++
	}
	f := &Frame{
		Seq:       e.seq,
		Motors:    make([]MotorCommand, 0, n),
		Authority: authority,
	}
	for _, j := range robot.AllJoints() {
		f.Motors = append(f.Motors, MotorCommand{
			Index:    j.MotorIndex(),
			Position: pose[j],
			Kp:       e.gains.Kp,
			Kd:       e.gains.Kd,
			Tau:      e.gains.Tau,
		})
	}
	if e.weightSlot {
		f.Motors = append(f.Motors, MotorCommand{Index: robot.UnusedMotorIndex, Position: authority})
	}
	return f
}

// Emit builds one frame and hands it to the sender.
func (e *Emitter) Emit(ctx context.Context, pose robot.JointVector, authority float64) (*Frame, error) {
	f := e.Build(pose, authority)
	if err := e.sender.Send(ctx, f); err != nil {
		return f, err
	}
	return f, nil
}
