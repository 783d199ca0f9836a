package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gwillem/armseq/pkg/robot"
)

// drifting returns a new pose on every read, as an arm settling under gravity.
type drifting struct {
	reads int
}

func (d *drifting) Pose(ctx context.Context) (robot.JointVector, error) {
	d.reads++
	return robot.JointVector{float64(d.reads) / 10}, nil
}

func TestPrepareStart_SeedsAfterConfirm(t *testing.T) {
	src := &drifting{}
	var shown robot.JointVector
	initial, ok, err := prepareStart(context.Background(), src, func(current robot.JointVector) (bool, error) {
		shown = current
		return true, nil
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.1, shown[0])
	assert.Equal(t, 0.2, initial[0], "seed must be read after the prompt")
	assert.Equal(t, 2, src.reads)
}

func TestPrepareStart_NoConfirm(t *testing.T) {
	src := &drifting{}
	initial, ok, err := prepareStart(context.Background(), src, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.1, initial[0])
	assert.Equal(t, 1, src.reads)
}

func TestPrepareStart_Declined(t *testing.T) {
	src := &drifting{}
	_, ok, err := prepareStart(context.Background(), src, func(robot.JointVector) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, src.reads)
}

func TestPrepareStart_ConfirmError(t *testing.T) {
	errNoTTY := errors.New("open /dev/tty: no such device")
	src := &drifting{}
	_, ok, err := prepareStart(context.Background(), src, func(robot.JointVector) (bool, error) {
		return false, errNoTTY
	})
	assert.ErrorIs(t, err, errNoTTY)
	assert.False(t, ok)
}

type failingShutdown struct{}

func (failingShutdown) Shutdown(context.Context) error { return context.DeadlineExceeded }

func TestShutdownHTTP_LogsError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	shutdownHTTP(context.Background(), failingShutdown{}, zap.New(core))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Shutdown HTTP server", entry.Message)
	assert.Equal(t, context.DeadlineExceeded.Error(), entry.ContextMap()["error"])
}
