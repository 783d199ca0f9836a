// Package armseq drives a two-arm, waist-yaw manipulator through choreographed
// poses at a fixed control cadence.
//
// A choreography is a Program: an ordered list of Segments, each moving all nine
// joints from the current pose to a target over a fixed number of ticks. The
// Sequencer turns a Program into a stream of command frames, blending control
// authority in during the first Segment and out during the last.
//
// # Installation
//
//	go install github.com/gwillem/armseq/cmd/armseq@latest
//
// # Usage
//
// Check a choreography file without touching hardware:
//
//	armseq validate wave.yaml
//
// Run it against the robot's message bus:
//
//	armseq run --program wave.yaml nats://192.168.123.161:4222
//
// Or against a Feetech servo bench rig (calibrate it first with setup):
//
//	armseq setup
//	armseq run --program wave.yaml /dev/ttyACM0
//
// # Packages
//
//   - cmd/armseq: CLI with run, validate, setup and history commands
//   - pkg/robot: joint layout, servo bench arm, calibration and configuration
//   - pkg/motion: segments, programs, interpolation and authority ramps
//   - pkg/command: command frames, the emitter and the wire codec
//   - pkg/sequencer: the paced program runner
//   - pkg/transport: NATS, servo bench and loopback channels
//   - pkg/journal: SQLite run history
//   - pkg/api: HTTP status, interrupt and metrics endpoints
//   - pkg/logging: zap logger construction
package armseq
