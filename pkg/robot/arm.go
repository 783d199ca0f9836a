package robot

import (
	"context"
	"fmt"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// DefaultBaudRate is the bus speed of the bench servos.
const DefaultBaudRate = 1_000_000

// Arm represents the servo bench rig: one Feetech bus with a servo per joint.
type Arm struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
}

// NewArm opens the servo bus and creates an arm from a complete calibration.
func NewArm(port string, baudRate int, cal Calibration) (*Arm, error) {
	if !cal.Complete() {
		return nil, fmt.Errorf("calibration for %s covers %d of %d joints", port, len(cal), NumJoints)
	}
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudRate,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	group := feetech.NewServoGroupByIDs(bus, cal.ServoIDs()...)

	return &Arm{
		bus:         bus,
		group:       group,
		calibration: cal,
	}, nil
}

// Close closes the arm's bus connection.
func (a *Arm) Close() error {
	return a.bus.Close()
}

// Enable enables torque on all servos.
func (a *Arm) Enable(ctx context.Context) error {
	return a.group.EnableAll(ctx)
}

// Disable disables torque on all servos.
func (a *Arm) Disable(ctx context.Context) error {
	return a.group.DisableAll(ctx)
}

// ReadPose reads the current joint angles from all servos.
func (a *Arm) ReadPose(ctx context.Context) (JointVector, error) {
	var pose JointVector

	rawPositions, err := a.group.Positions(ctx)
	if err != nil {
		return pose, fmt.Errorf("read positions: %w", err)
	}

	seen := 0
	for id, raw := range rawPositions {
		joint, cal, ok := a.calibration.ByID(id)
		if !ok {
			continue
		}
		pose[joint] = cal.Radians(raw)
		seen++
	}
	if seen != NumJoints {
		return pose, fmt.Errorf("read positions: got %d of %d joints", seen, NumJoints)
	}

	return pose, nil
}

// WritePose writes target joint angles to all servos. Angles outside the
// calibrated range are clamped by the calibration.
func (a *Arm) WritePose(ctx context.Context, pose JointVector) error {
	rawPositions := make(feetech.PositionMap, NumJoints)
	for _, joint := range AllJoints() {
		cal := a.calibration[joint]
		rawPositions[cal.ID] = cal.Raw(pose[joint])
	}

	if err := a.group.SetPositions(ctx, rawPositions); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}

	return nil
}
