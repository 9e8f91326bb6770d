package statedir_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zeusmux/zeus/internal/zeus/statedir"
)

func TestResolve_StateDirWins(t *testing.T) {
	t.Setenv("ZEUS_STATE_DIR", "/tmp/explicit-state")
	t.Setenv("ZEUS_HOME", "/tmp/explicit-home")
	assert.Equal(t, "/tmp/explicit-state", statedir.Resolve())
}

func TestResolve_HomeFallback(t *testing.T) {
	t.Setenv("ZEUS_STATE_DIR", "")
	t.Setenv("ZEUS_HOME", "/tmp/explicit-home")
	assert.Equal(t, "/tmp/explicit-home", statedir.Resolve())
}

func TestResolve_UserHomeDirFallback(t *testing.T) {
	t.Setenv("ZEUS_STATE_DIR", "")
	t.Setenv("ZEUS_HOME", "")
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home dir available")
	}
	assert.Equal(t, filepath.Join(home, ".zeus"), statedir.Resolve())
}

func TestMessageQueueAndAgentBus(t *testing.T) {
	assert.Equal(t, "/tmp/zeus/zeus-message-queue", statedir.MessageQueue("/tmp/zeus"))
	assert.Equal(t, "/tmp/zeus/zeus-agent-bus", statedir.AgentBus("/tmp/zeus"))
}
