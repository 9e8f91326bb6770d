package registry_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusmux/zeus/internal/zeus/registry"
	"github.com/zeusmux/zeus/internal/zeus/store"
)

func TestMemory_LookupByID(t *testing.T) {
	m := registry.NewMemory()
	m.Put(registry.AgentInfo{AgentID: "bob", Name: "Bob"})

	info, ok := m.LookupByID("bob")
	require.True(t, ok)
	assert.Equal(t, "Bob", info.Name)

	_, ok = m.LookupByID("nobody")
	assert.False(t, ok)
}

func TestMemory_LookupByName_CaseInsensitive(t *testing.T) {
	m := registry.NewMemory()
	m.Put(registry.AgentInfo{AgentID: "bob", Name: "Bob"})

	matches := m.LookupByName("BOB")
	require.Len(t, matches, 1)
	assert.Equal(t, "bob", matches[0].AgentID)
}

func TestMemory_LookupByName_Ambiguous(t *testing.T) {
	m := registry.NewMemory()
	m.Put(registry.AgentInfo{AgentID: "bob1", Name: "Bob"})
	m.Put(registry.AgentInfo{AgentID: "bob2", Name: "Bob"})

	matches := m.LookupByName("bob")
	assert.Len(t, matches, 2)
}

func TestMemory_ListPhalanx(t *testing.T) {
	m := registry.NewMemory()
	m.Put(registry.AgentInfo{AgentID: "h1", PhalanxID: "x"})
	m.Put(registry.AgentInfo{AgentID: "h2", PhalanxID: "x"})
	m.Put(registry.AgentInfo{AgentID: "h3", PhalanxID: "y"})

	members := m.ListPhalanx("x")
	assert.Len(t, members, 2)
}

func TestMemory_ParentOf(t *testing.T) {
	m := registry.NewMemory()
	m.Put(registry.AgentInfo{AgentID: "h1", ParentID: "p1"})

	parent, ok := m.ParentOf("h1")
	require.True(t, ok)
	assert.Equal(t, "p1", parent)

	_, ok = m.ParentOf("unknown")
	assert.False(t, ok)
}

func TestFile_LookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.json")
	require.NoError(t, store.WriteJSONAtomic(path, map[string]any{
		"agents": []map[string]any{
			{"agent_id": "bob", "name": "Bob", "phalanx_id": "x"},
			{"agent_id": "carol", "name": "Carol", "phalanx_id": "x"},
		},
	}))

	f := registry.NewFile(path)
	info, ok := f.LookupByID("bob")
	require.True(t, ok)
	assert.Equal(t, "Bob", info.Name)

	members := f.ListPhalanx("x")
	assert.Len(t, members, 2)
}

func TestFile_MissingFileIsEmpty(t *testing.T) {
	f := registry.NewFile(filepath.Join(t.TempDir(), "missing.json"))
	_, ok := f.LookupByID("bob")
	assert.False(t, ok)
}
