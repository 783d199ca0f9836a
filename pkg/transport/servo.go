package transport

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gwillem/armseq/pkg/command"
	"github.com/gwillem/armseq/pkg/robot"
)

// servoArm is the part of robot.Arm the servo link drives.
type servoArm interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	ReadPose(ctx context.Context) (robot.JointVector, error)
	WritePose(ctx context.Context, pose robot.JointVector) error
	Close() error
}

// Servo drives a Feetech servo bench. Servos cannot blend, so any nonzero
// authority means torque on and positions written; zero means torque off.
type Servo struct {
	arm     servoArm
	logger  *zap.Logger
	enabled bool
}

// NewServo wraps an opened arm.
func NewServo(arm servoArm, logger *zap.Logger) *Servo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Servo{arm: arm, logger: logger}
}

// Send applies one frame to the servos.
func (s *Servo) Send(ctx context.Context, f *command.Frame) error {
	if f.Authority <= 0 {
		if s.enabled {
			if err := s.arm.Disable(ctx); err != nil {
				return fmt.Errorf("disable torque: %w", err)
			}
			s.enabled = false
			s.logger.Info("Torque disabled", zap.Uint64("seq", f.Seq))
		}
		return nil
	}

	if !s.enabled {
		if err := s.arm.Enable(ctx); err != nil {
			return fmt.Errorf("enable torque: %w", err)
		}
		s.enabled = true
		s.logger.Info("Torque enabled", zap.Uint64("seq", f.Seq))
	}
	return s.arm.WritePose(ctx, f.Pose())
}

// Pose reads the servo positions.
func (s *Servo) Pose(ctx context.Context) (robot.JointVector, error) {
	return s.arm.ReadPose(ctx)
}

// Close releases torque and closes the bus.
func (s *Servo) Close() error {
	if s.enabled {
		if err := s.arm.Disable(context.Background()); err != nil {
			s.logger.Warn("Failed to disable torque", zap.Error(err))
		}
		s.enabled = false
	}
	return s.arm.Close()
}
