// Package command builds actuator command frames from poses and sends them to
// the outbound channel.
package command

import (
	"context"

	"github.com/gwillem/armseq/pkg/robot"
)

// MotorCommand is the setpoint for one motor.
type MotorCommand struct {
	Index    int // robot motor index
	Position float64
	Velocity float64
	Kp       float64
	Kd       float64
	Tau      float64 // feed-forward torque
}

// Frame is one outbound command message.
type Frame struct {
	Seq       uint64
	Motors    []MotorCommand
	Authority float64
}

// Pose returns the commanded positions of the nine joints, in joint order.
// Motors that are not commanded joints are ignored.
func (f *Frame) Pose() robot.JointVector {
	var pose robot.JointVector
	for _, m := range f.Motors {
		for _, j := range robot.AllJoints() {
			if j.MotorIndex() == m.Index {
				pose[j] = m.Position
			}
		}
	}
	return pose
}

// Gains are the program-wide constants sent with every joint setpoint.
type Gains struct {
	Kp  float64
	Kd  float64
	Tau float64
}

// DefaultGains returns kp=60, kd=1.5 and no feed-forward torque.
func DefaultGains() Gains {
	return Gains{Kp: 60, Kd: 1.5}
}

// Sender is the outbound command channel. Send hands the frame over and does not
// wait for any acknowledgment.
type Sender interface {
	Send(ctx context.Context, f *Frame) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, f *Frame) error

func (fn SenderFunc) Send(ctx context.Context, f *Frame) error {
	return fn(ctx, f)
}
