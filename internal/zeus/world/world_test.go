package world_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusmux/zeus/internal/zeus/config"
	"github.com/zeusmux/zeus/internal/zeus/registry"
	"github.com/zeusmux/zeus/internal/zeus/world"
)

func TestNew_WiresComponentsAgainstStateDir(t *testing.T) {
	stateDir := t.TempDir()
	cfg, err := config.Load(stateDir, "")
	require.NoError(t, err)

	w := world.New(cfg, world.Options{})
	assert.NotNil(t, w.Queue)
	assert.NotNil(t, w.Drain)
	assert.NotNil(t, w.Capabilities)
	assert.NotNil(t, w.Notifier)
	assert.Contains(t, w.MessageQueueDir, stateDir)
	assert.Contains(t, w.AgentBusDir, stateDir)
}

func TestNew_UsesInjectedRegistry(t *testing.T) {
	stateDir := t.TempDir()
	cfg, err := config.Load(stateDir, "")
	require.NoError(t, err)

	mem := registry.NewMemory()
	w := world.New(cfg, world.Options{Registry: mem})
	assert.Same(t, mem, w.Registry)
}
