package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusmux/zeus/internal/zeus/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.MaxHeartbeatAge)
	assert.Equal(t, 2*time.Second, cfg.SweepInterval)
	assert.Equal(t, 3, cfg.AttemptsNotify)
	assert.Equal(t, 60*time.Second, cfg.ReresolveAfter)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/zeus.yaml"
	require.NoError(t, os.WriteFile(path, []byte("sweep_interval: 5s\nattempts_notify: 7\n"), 0o644))

	cfg, err := config.Load(dir, path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, 7, cfg.AttemptsNotify)
	assert.Equal(t, 30*time.Second, cfg.MaxHeartbeatAge, "unset keys keep their default")
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/zeus.yaml"
	require.NoError(t, os.WriteFile(path, []byte("sweep_interval: 5s\n"), 0o644))

	t.Setenv("ZEUS_SWEEP_INTERVAL", "9s")
	cfg, err := config.Load(dir, path)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, cfg.SweepInterval)
}

func TestLoad_MissingYAMLFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir, dir+"/does-not-exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.SweepInterval)
}

func TestLoad_StateDirDefaultsToArgument(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.StateDir)
}
