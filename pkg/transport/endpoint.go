// Package transport connects the sequencer to a robot: it carries command
// frames out and joint state back in.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/gwillem/armseq/pkg/command"
	"github.com/gwillem/armseq/pkg/robot"
)

var (
	// ErrUnknownEndpoint is returned for an endpoint no transport understands.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrNoState is returned when no joint state arrived in time.
	ErrNoState = errors.New("no joint state received")
)

// Link is a bidirectional connection to a robot.
type Link interface {
	command.Sender
	// Pose returns the latest observed joint positions.
	Pose(ctx context.Context) (robot.JointVector, error)
	io.Closer
}

// Kind names a transport.
type Kind string

const (
	KindNATS  Kind = "nats"
	KindServo Kind = "servo"
	KindSim   Kind = "sim"
)

// Endpoint is a parsed endpoint argument.
type Endpoint struct {
	Kind    Kind
	Address string // broker URL or serial device
}

func (e Endpoint) String() string {
	if e.Address == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ":" + e.Address
}

// ParseEndpoint recognizes
//
//	nats://host:4222, tls://host:4222   message bus
//	serial:///dev/ttyUSB0, /dev/ttyUSB0  servo bench
//	sim                                  in-process loopback
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Endpoint{}, fmt.Errorf("%w: empty", ErrUnknownEndpoint)
	case s == "sim" || s == "sim://":
		return Endpoint{Kind: KindSim}, nil
	case strings.HasPrefix(s, "nats://"), strings.HasPrefix(s, "tls://"):
		return Endpoint{Kind: KindNATS, Address: s}, nil
	case strings.HasPrefix(s, "serial://"):
		dev := strings.TrimPrefix(s, "serial://")
		if dev == "" {
			return Endpoint{}, fmt.Errorf("%w: %q has no device", ErrUnknownEndpoint, s)
		}
		return Endpoint{Kind: KindServo, Address: dev}, nil
	case strings.HasPrefix(s, "/dev/"):
		return Endpoint{Kind: KindServo, Address: s}, nil
	}
	return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownEndpoint, s)
}

// Open parses endpoint and connects to it.
func Open(endpoint string, cfg robot.Config, logger *zap.Logger) (Link, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.Stringer("endpoint", ep))

	switch ep.Kind {
	case KindNATS:
		return DialNATS(ep.Address, cfg.Transport, logger)
	case KindServo:
		cal, err := robot.LoadCalibration(cfg.Servo.Calibration)
		if err != nil {
			return nil, fmt.Errorf("servo calibration: %w", err)
		}
		arm, err := robot.NewArm(ep.Address, cfg.Servo.BaudRate, cal)
		if err != nil {
			return nil, err
		}
		logger.Info("Servo bench connected", zap.String("port", ep.Address), zap.Int("baud", cfg.Servo.BaudRate))
		return NewServo(arm, logger), nil
	default:
		logger.Info("Using loopback link")
		return NewLoopback(robot.JointVector{}), nil
	}
}
