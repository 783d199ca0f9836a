package robot

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// TicksPerRevolution is the resolution of the bench servos' position encoder.
const TicksPerRevolution = 4096

// JointCalibration holds servo calibration data for a single joint.
type JointCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`    // 1 inverts the direction of rotation
	HomingOffset int `json:"homing_offset"` // raw position at zero radians
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Calibration holds calibration data for all joints, keyed by joint.
type Calibration map[Joint]JointCalibration

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	// Parse into a map with string keys first
	var raw map[string]JointCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse calibration JSON: %w", err)
	}

	cal := make(Calibration, len(raw))
	for name, jc := range raw {
		joint, ok := JointByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown joint %q in calibration", name)
		}
		cal[joint] = jc
	}

	return cal, nil
}

// Save writes the calibration as JSON keyed by joint name.
func (c Calibration) Save(path string) error {
	raw := make(map[string]JointCalibration, len(c))
	for joint, jc := range c {
		raw[joint.String()] = jc
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c JointCalibration) sign() float64 {
	if c.DriveMode == 1 {
		return -1
	}
	return 1
}

// Radians converts a raw servo position to a joint angle.
func (c JointCalibration) Radians(raw int) float64 {
	return c.sign() * float64(raw-c.HomingOffset) * 2 * math.Pi / TicksPerRevolution
}

// Raw converts a joint angle to a raw servo position, clamped to the calibrated
// range when one is set.
func (c JointCalibration) Raw(rad float64) int {
	raw := c.HomingOffset + int(math.Round(c.sign()*rad*TicksPerRevolution/(2*math.Pi)))
	if c.RangeMax > c.RangeMin {
		raw = min(max(raw, c.RangeMin), c.RangeMax)
	}
	return raw
}

// ServoIDs returns the servo IDs for all calibrated joints in joint order.
func (c Calibration) ServoIDs() []int {
	ids := make([]int, 0, len(c))
	for _, joint := range AllJoints() {
		if jc, ok := c[joint]; ok {
			ids = append(ids, jc.ID)
		}
	}
	return ids
}

// ByID returns joint and calibration for a given servo ID.
func (c Calibration) ByID(id int) (Joint, JointCalibration, bool) {
	for joint, jc := range c {
		if jc.ID == id {
			return joint, jc, true
		}
	}
	return 0, JointCalibration{}, false
}

// Complete reports whether every joint has calibration data.
func (c Calibration) Complete() bool {
	for _, joint := range AllJoints() {
		if _, ok := c[joint]; !ok {
			return false
		}
	}
	return true
}
