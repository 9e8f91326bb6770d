// Package world collects the dispatcher process's singletons into one
// explicitly-constructed value, threaded into every operation instead
// of living as ambient package-level mutable state.
package world

import (
	"path/filepath"

	"github.com/zeusmux/zeus/internal/zeus/capability"
	"github.com/zeusmux/zeus/internal/zeus/config"
	"github.com/zeusmux/zeus/internal/zeus/drain"
	"github.com/zeusmux/zeus/internal/zeus/notifier"
	"github.com/zeusmux/zeus/internal/zeus/queue"
	"github.com/zeusmux/zeus/internal/zeus/registry"
	"github.com/zeusmux/zeus/internal/zeus/statedir"
)

// World is everything one dispatcher process needs, built once at
// startup and passed down explicitly.
type World struct {
	Config          config.Config
	MessageQueueDir string
	AgentBusDir     string
	Registry        registry.Registry
	Capabilities    *capability.Registry
	Notifier        *notifier.Notifier
	Queue           *queue.Queue
	Drain           *drain.Loop
}

// Options lets a caller override the registry implementation (a real
// discovery layer would inject its own); everything else is derived
// from cfg.
type Options struct {
	Registry registry.Registry
}

// New constructs a World from a loaded Config. If opts.Registry is
// nil, a File registry rooted at <state_dir>/zeus-agent-bus/agents.json
// is used.
func New(cfg config.Config, opts Options) *World {
	messageQueueDir := statedir.MessageQueue(cfg.StateDir)
	agentBusDir := statedir.AgentBus(cfg.StateDir)

	reg := opts.Registry
	if reg == nil {
		reg = registry.NewFile(filepath.Join(agentBusDir, "agents.json"))
	}

	caps := capability.New(agentBusDir, cfg.MaxHeartbeatAge.Seconds())
	notif := notifier.New(messageQueueDir, cfg.NotifyThrottle.Seconds(), notifier.NewLogSink())
	q := queue.New(messageQueueDir, agentBusDir, reg, caps, notif, cfg.ReresolveAfter, cfg.AttemptsNotify)
	loop := drain.New(messageQueueDir, agentBusDir, q, cfg.InflightLease, cfg.SweepInterval)

	return &World{
		Config:          cfg,
		MessageQueueDir: messageQueueDir,
		AgentBusDir:     agentBusDir,
		Registry:        reg,
		Capabilities:    caps,
		Notifier:        notif,
		Queue:           q,
		Drain:           loop,
	}
}
