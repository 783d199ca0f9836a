package robot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestLoadConfigFrom_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armseq.yaml")
	yaml := `
control:
  tick: 2ms
  kp: 40
  weight_slot: true
transport:
  state_subject: rt.lowstate_hg
http:
  addr: 127.0.0.1:8089
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))

	t.Setenv("ARMSEQ_CONTROL_RELEASE_STEPS", "250")
	t.Setenv("ARMSEQ_LOG_LEVEL", "debug")

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Millisecond, cfg.Control.Tick)
	assert.Equal(t, 40.0, cfg.Control.Kp)
	assert.Equal(t, 1.5, cfg.Control.Kd, "unset keys keep defaults")
	assert.True(t, cfg.Control.WeightSlot)
	assert.Equal(t, 250, cfg.Control.ReleaseSteps)
	assert.Equal(t, "rt.lowstate_hg", cfg.Transport.StateSubject)
	assert.Equal(t, "rt.arm_sdk", cfg.Transport.CommandSubject)
	assert.Equal(t, "127.0.0.1:8089", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigFrom_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armseq.yaml")
	require.NoError(t, os.WriteFile(path, []byte("control:\n  release_steps: 0\n"), 0600))

	_, err := LoadConfigFrom(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release_steps")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"ARMSEQ_CONTROL_TICK":            "control.tick",
		"ARMSEQ_TRANSPORT_STATE_TIMEOUT": "transport.state_timeout",
		"ARMSEQ_JOURNAL_PATH":            "journal.path",
		"ARMSEQ_DEBUG":                   "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
