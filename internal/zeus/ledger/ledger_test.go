package ledger_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusmux/zeus/internal/zeus/ledger"
)

func TestHas_EmptyIsFalse(t *testing.T) {
	l := ledger.New(t.TempDir(), "bob")
	has, err := l.Has("E1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAddThenHas(t *testing.T) {
	l := ledger.New(t.TempDir(), "bob")
	require.NoError(t, l.Add("E1"))
	has, err := l.Has("E1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestAdd_Idempotent(t *testing.T) {
	l := ledger.New(t.TempDir(), "bob")
	require.NoError(t, l.Add("E1"))
	require.NoError(t, l.Add("E1"))
	has, err := l.Has("E1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestLedger_SurvivesReload(t *testing.T) {
	dir := t.TempDir()
	l1 := ledger.New(dir, "bob")
	require.NoError(t, l1.Add("E1"))

	l2 := ledger.New(dir, "bob")
	has, err := l2.Has("E1")
	require.NoError(t, err)
	assert.True(t, has, "a fresh Ledger instance rooted at the same dir must see prior accepts")
}

func TestLedger_ConcurrentAdd_MonotoneSet(t *testing.T) {
	l := ledger.New(t.TempDir(), "bob")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.Add("E1")
		}(i)
	}
	wg.Wait()
	has, err := l.Has("E1")
	require.NoError(t, err)
	assert.True(t, has)
}
