package inbox_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusmux/zeus/internal/zeus/inbox"
	"github.com/zeusmux/zeus/internal/zeus/ledger"
	"github.com/zeusmux/zeus/internal/zeus/model"
	"github.com/zeusmux/zeus/internal/zeus/store"
)

type countingSubmitter struct {
	mu     sync.Mutex
	calls  map[string]int
	failID string
}

func newCountingSubmitter() *countingSubmitter {
	return &countingSubmitter{calls: make(map[string]int)}
}

func (s *countingSubmitter) Submit(ctx context.Context, item model.InboxItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == s.failID {
		return errors.New("runtime rejected submit")
	}
	s.calls[item.ID]++
	return nil
}

func (s *countingSubmitter) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func writeInboxItem(t *testing.T, agentBusDir, agentID, id string) {
	t.Helper()
	path := filepath.Join(agentBusDir, "inbox", agentID, "new", id+".json")
	require.NoError(t, store.WriteJSONAtomic(path, model.InboxItem{
		ID:      id,
		Message: "hello",
	}))
}

func TestPump_HappyPath(t *testing.T) {
	dir := t.TempDir()
	sub := newCountingSubmitter()
	led := ledger.New(dir, "bob")
	p := inbox.New(dir, "bob", sub, led, nil)

	writeInboxItem(t, dir, "bob", "E1")
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, 1, sub.count("E1"))
	assert.True(t, store.Exists(filepath.Join(dir, "receipts", "bob", "E1.json")))
	assert.False(t, store.Exists(filepath.Join(dir, "inbox", "bob", "new", "E1.json")))
	assert.False(t, store.Exists(filepath.Join(dir, "inbox", "bob", "processing", "E1.json")))
}

func TestPump_DuplicateSubmitIsNoOp(t *testing.T) {
	dir := t.TempDir()
	sub := newCountingSubmitter()
	led := ledger.New(dir, "bob")
	p := inbox.New(dir, "bob", sub, led, nil)

	writeInboxItem(t, dir, "bob", "E1")
	require.NoError(t, p.RunOnce(context.Background()))

	// Re-deliver the same id (e.g. a dispatcher retry that thought the
	// item was never written).
	writeInboxItem(t, dir, "bob", "E1")
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, 1, sub.count("E1"), "at-most-once submit")
	assert.True(t, store.Exists(filepath.Join(dir, "receipts", "bob", "E1.json")))
}

func TestPump_PoisonItemDeletedWithoutSubmit(t *testing.T) {
	dir := t.TempDir()
	sub := newCountingSubmitter()
	led := ledger.New(dir, "bob")
	p := inbox.New(dir, "bob", sub, led, nil)

	path := filepath.Join(dir, "inbox", "bob", "new", "E1.json")
	require.NoError(t, store.WriteJSONAtomic(path, map[string]string{"id": "E1"})) // missing message

	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, 0, sub.count("E1"))
	assert.False(t, store.Exists(path))
	assert.False(t, store.Exists(filepath.Join(dir, "receipts", "bob", "E1.json")))
}

func TestPump_SubmitFailureRequeuesForRetry(t *testing.T) {
	dir := t.TempDir()
	sub := newCountingSubmitter()
	sub.failID = "E1"
	led := ledger.New(dir, "bob")
	p := inbox.New(dir, "bob", sub, led, nil)

	writeInboxItem(t, dir, "bob", "E1")
	require.NoError(t, p.RunOnce(context.Background()))

	assert.True(t, store.Exists(filepath.Join(dir, "inbox", "bob", "new", "E1.json")))
	assert.False(t, store.Exists(filepath.Join(dir, "receipts", "bob", "E1.json")))

	sub.failID = ""
	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, 1, sub.count("E1"))
	assert.True(t, store.Exists(filepath.Join(dir, "receipts", "bob", "E1.json")))
}

func TestPump_CrashBetweenLedgerAndReceiptRecovers(t *testing.T) {
	dir := t.TempDir()
	sub := newCountingSubmitter()
	led := ledger.New(dir, "carol")

	// Simulate the crash: submit already happened (so the ledger has
	// the id), but the item is still sitting in processing/ because
	// the process died before the receipt was written.
	require.NoError(t, led.Add("E5"))
	path := filepath.Join(dir, "inbox", "carol", "processing", "E5.json")
	require.NoError(t, store.WriteJSONAtomic(path, model.InboxItem{ID: "E5", Message: "hi"}))

	p := inbox.New(dir, "carol", sub, led, nil)
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, 0, sub.count("E5"), "must not resubmit after a ledger-but-not-receipt crash")
	assert.True(t, store.Exists(filepath.Join(dir, "receipts", "carol", "E5.json")))
	assert.False(t, store.Exists(path))
}

type fakeSessionAccessor struct {
	id, file string
}

func (f fakeSessionAccessor) SessionID() string   { return f.id }
func (f fakeSessionAccessor) SessionFile() string { return f.file }

func TestPump_EnsureReceipt_PopulatesSessionFromAccessor(t *testing.T) {
	dir := t.TempDir()
	sub := newCountingSubmitter()
	led := ledger.New(dir, "bob")
	session := fakeSessionAccessor{id: "sess-123", file: "/tmp/sessions/sess-123.jsonl"}
	p := inbox.New(dir, "bob", sub, led, session)

	writeInboxItem(t, dir, "bob", "E1")
	require.NoError(t, p.RunOnce(context.Background()))

	var receipt model.Receipt
	require.NoError(t, store.ReadJSON(filepath.Join(dir, "receipts", "bob", "E1.json"), &receipt))
	assert.Equal(t, "sess-123", receipt.SessionID)
	assert.Equal(t, "/tmp/sessions/sess-123.jsonl", receipt.SessionPath)
}

func TestPump_Schedule_CoalescesOverlappingRequests(t *testing.T) {
	dir := t.TempDir()
	sub := newCountingSubmitter()
	led := ledger.New(dir, "bob")
	p := inbox.New(dir, "bob", sub, led, nil)

	writeInboxItem(t, dir, "bob", "E1")

	var wg sync.WaitGroup
	var fired int64
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			atomic.AddInt64(&fired, 1)
			p.Schedule(context.Background())
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return store.Exists(filepath.Join(dir, "receipts", "bob", "E1.json"))
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, sub.count("E1"))
}
