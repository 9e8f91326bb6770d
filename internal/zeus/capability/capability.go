// Package capability implements the liveness registry: agent
// extensions publish periodic heartbeats here, and the dispatcher
// queries freshness to gate delivery.
package capability

import (
	"path/filepath"

	"github.com/zeusmux/zeus/internal/util/timefmt"
	"github.com/zeusmux/zeus/internal/util/sanitize"
	"github.com/zeusmux/zeus/internal/zeus/model"
	"github.com/zeusmux/zeus/internal/zeus/store"
)

// DefaultMaxHeartbeatAge is the default staleness threshold: a
// heartbeat older than this is treated as "not fresh".
const DefaultMaxHeartbeatAge = 30 // seconds

// DefaultHeartbeatInterval is how often a live extension re-publishes
// its heartbeat.
const DefaultHeartbeatInterval = 5 // seconds

// Registry reads and writes capability heartbeats under
// <agentBusDir>/caps/.
type Registry struct {
	agentBusDir    string
	maxHeartbeatAge float64
}

// New builds a Registry rooted at agentBusDir (zeus-agent-bus), gating
// freshness with maxHeartbeatAge seconds.
func New(agentBusDir string, maxHeartbeatAge float64) *Registry {
	if maxHeartbeatAge <= 0 {
		maxHeartbeatAge = DefaultMaxHeartbeatAge
	}
	return &Registry{agentBusDir: agentBusDir, maxHeartbeatAge: maxHeartbeatAge}
}

func (r *Registry) path(agentID string) string {
	return filepath.Join(r.agentBusDir, "caps", sanitize.AgentID(agentID)+".json")
}

// PublishHeartbeat atomically writes the capability record for
// agentID. Called by the extension side every HEARTBEAT_INTERVAL and
// best-effort on every runtime lifecycle event.
func (r *Registry) PublishHeartbeat(cap model.Capability) error {
	cap.UpdatedAt = timefmt.Now()
	return store.WriteJSONAtomic(r.path(cap.AgentID), cap)
}

// IsFresh reports whether agentID has a decodable, queue-bus-capable
// heartbeat no older than maxHeartbeatAge. Read errors (missing file,
// corrupt JSON) are treated as "not fresh" and never returned as an
// error — staleness gating must never throw.
func (r *Registry) IsFresh(agentID string) bool {
	var cap model.Capability
	if err := store.ReadJSON(r.path(agentID), &cap); err != nil {
		return false
	}
	if !cap.Supports.QueueBus {
		return false
	}
	return timefmt.Since(cap.UpdatedAt) <= r.maxHeartbeatAge
}

// Get returns the raw capability record for agentID, for diagnostics.
// ok is false if the record is missing or corrupt.
func (r *Registry) Get(agentID string) (model.Capability, bool) {
	var cap model.Capability
	if err := store.ReadJSON(r.path(agentID), &cap); err != nil {
		return model.Capability{}, false
	}
	return cap, true
}
