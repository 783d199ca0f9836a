// Package robot provides the joint layout, servo bench arm, calibration and
// configuration for the two-arm manipulator.
package robot

import (
	"fmt"
	"math"
)

// Joint identifies one of the commanded joints. Its value is the index into a
// JointVector.
type Joint int

// Commanded joints, in JointVector order. The order is fixed.
const (
	LeftShoulderPitch Joint = iota
	LeftShoulderRoll
	LeftShoulderYaw
	LeftElbow
	RightShoulderPitch
	RightShoulderRoll
	RightShoulderYaw
	RightElbow
	WaistYaw

	NumJoints = 9
)

// UnusedMotorIndex is the robot motor slot that legacy receivers read the
// authority weight from.
const UnusedMotorIndex = 9

// RobotMotorCount is the number of motors in a full-robot state snapshot.
const RobotMotorCount = 20

var jointNames = [NumJoints]string{
	"left_shoulder_pitch",
	"left_shoulder_roll",
	"left_shoulder_yaw",
	"left_elbow",
	"right_shoulder_pitch",
	"right_shoulder_roll",
	"right_shoulder_yaw",
	"right_elbow",
	"waist_yaw",
}

// Motor indices of each joint in the full-robot motor array.
var motorIndices = [NumJoints]int{16, 17, 18, 19, 12, 13, 14, 15, 6}

func (j Joint) String() string {
	if j < 0 || j >= NumJoints {
		return fmt.Sprintf("joint(%d)", int(j))
	}
	return jointNames[j]
}

// MotorIndex returns the joint's index in the full-robot motor array.
func (j Joint) MotorIndex() int {
	return motorIndices[j]
}

// AllJoints returns all joints in JointVector order.
func AllJoints() []Joint {
	joints := make([]Joint, NumJoints)
	for i := range joints {
		joints[i] = Joint(i)
	}
	return joints
}

// JointByName looks up a joint by its snake_case name.
func JointByName(name string) (Joint, bool) {
	for i, n := range jointNames {
		if n == name {
			return Joint(i), true
		}
	}
	return 0, false
}

// JointVector holds one position per commanded joint, in radians.
type JointVector [NumJoints]float64

// JointVectorFrom copies a slice into a JointVector. The slice must have exactly
// NumJoints elements.
func JointVectorFrom(values []float64) (JointVector, error) {
	var v JointVector
	if len(values) != NumJoints {
		return v, fmt.Errorf("joint vector needs %d values, got %d", NumJoints, len(values))
	}
	copy(v[:], values)
	return v, nil
}

// Finite reports whether every element is a finite number.
func (v JointVector) Finite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// FromMotors picks the commanded joints out of a full-robot motor array.
// Missing indices are left at zero.
func FromMotors(q []float64) JointVector {
	var v JointVector
	for j, idx := range motorIndices {
		if idx < len(q) {
			v[j] = q[idx]
		}
	}
	return v
}
