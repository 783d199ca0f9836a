package transport

import (
	"context"
	"sync"

	"github.com/gwillem/armseq/pkg/command"
	"github.com/gwillem/armseq/pkg/robot"
)

// Loopback is an in-process link. The observed pose is the last commanded one,
// starting from a seed.
type Loopback struct {
	mu     sync.Mutex
	pose   robot.JointVector
	last   *command.Frame
	frames int
}

// NewLoopback creates a loopback link that reports seed until a frame arrives.
func NewLoopback(seed robot.JointVector) *Loopback {
	return &Loopback{pose: seed}
}

func (l *Loopback) Send(_ context.Context, f *command.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pose = f.Pose()
	l.last = f
	l.frames++
	return nil
}

func (l *Loopback) Pose(context.Context) (robot.JointVector, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pose, nil
}

// Last returns the most recent frame and the number of frames received.
func (l *Loopback) Last() (*command.Frame, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.frames
}

func (l *Loopback) Close() error { return nil }
