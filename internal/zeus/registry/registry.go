// Package registry defines the agent registry boundary the envelope
// queue uses to resolve target expressions into concrete agent ids.
// The discovery subsystem that actually tracks live agent processes
// is out of scope; this package provides the interface plus two
// concrete implementations: an in-memory one for tests and a
// JSON-file-backed one a real discovery layer can write to without
// either side needing a shared process.
package registry

import (
	"strings"
	"sync"

	"github.com/zeusmux/zeus/internal/zeus/store"
)

// AgentInfo is what the registry knows about one addressable agent.
type AgentInfo struct {
	AgentID   string `json:"agent_id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	ParentID  string `json:"parent_id,omitempty"`
	PhalanxID string `json:"phalanx_id,omitempty"`
}

// Registry resolves target expressions against known agents.
type Registry interface {
	LookupByID(id string) (AgentInfo, bool)
	LookupByName(name string) []AgentInfo
	ListPhalanx(phalanxID string) []AgentInfo
	ParentOf(agentID string) (string, bool)
}

// Memory is an in-process Registry, safe for concurrent use. It is the
// natural fit for tests and for a discovery layer embedded in the same
// process as the dispatcher.
type Memory struct {
	mu     sync.RWMutex
	agents map[string]AgentInfo
}

// NewMemory builds an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{agents: make(map[string]AgentInfo)}
}

// Put registers or replaces an agent's info.
func (m *Memory) Put(info AgentInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[info.AgentID] = info
}

// Remove deregisters an agent.
func (m *Memory) Remove(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.agents, agentID)
}

func (m *Memory) LookupByID(id string) (AgentInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.agents[id]
	return info, ok
}

func (m *Memory) LookupByName(name string) []AgentInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matches []AgentInfo
	lower := strings.ToLower(name)
	for _, info := range m.agents {
		if strings.ToLower(info.Name) == lower {
			matches = append(matches, info)
		}
	}
	return matches
}

func (m *Memory) ListPhalanx(phalanxID string) []AgentInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var members []AgentInfo
	for _, info := range m.agents {
		if info.PhalanxID == phalanxID {
			members = append(members, info)
		}
	}
	return members
}

func (m *Memory) ParentOf(agentID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.agents[agentID]
	if !ok || info.ParentID == "" {
		return "", false
	}
	return info.ParentID, true
}

// fileSnapshot is the on-disk shape a discovery layer writes.
type fileSnapshot struct {
	Agents []AgentInfo `json:"agents"`
}

// File is a Registry backed by a single JSON file, re-read on every
// query. It trades a small amount of read cost for requiring no IPC
// between the discovery layer and the dispatcher beyond a shared file,
// matching the bus's own filesystem-only philosophy.
type File struct {
	path string
}

// NewFile builds a File registry reading from path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) snapshot() fileSnapshot {
	var snap fileSnapshot
	if err := store.ReadJSON(f.path, &snap); err != nil {
		return fileSnapshot{}
	}
	return snap
}

func (f *File) LookupByID(id string) (AgentInfo, bool) {
	for _, info := range f.snapshot().Agents {
		if info.AgentID == id {
			return info, true
		}
	}
	return AgentInfo{}, false
}

func (f *File) LookupByName(name string) []AgentInfo {
	var matches []AgentInfo
	lower := strings.ToLower(name)
	for _, info := range f.snapshot().Agents {
		if strings.ToLower(info.Name) == lower {
			matches = append(matches, info)
		}
	}
	return matches
}

func (f *File) ListPhalanx(phalanxID string) []AgentInfo {
	var members []AgentInfo
	for _, info := range f.snapshot().Agents {
		if info.PhalanxID == phalanxID {
			members = append(members, info)
		}
	}
	return members
}

func (f *File) ParentOf(agentID string) (string, bool) {
	info, ok := f.LookupByID(agentID)
	if !ok || info.ParentID == "" {
		return "", false
	}
	return info.ParentID, true
}

var _ Registry = (*Memory)(nil)
var _ Registry = (*File)(nil)
