// Package ledger implements the per-agent processed-id set that
// guarantees at-most-once submit across restarts.
//
// Below CompactThreshold ids, the ledger behaves as a flat sorted-JSON
// rewrite on every accept. Above that threshold, new accepts are
// appended as single-line JSON records to a side log and periodically
// compacted back into the base snapshot; the public contract
// (Has/Add) is identical either way.
package ledger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/zeusmux/zeus/internal/util/sanitize"
	"github.com/zeusmux/zeus/internal/util/timefmt"
	"github.com/zeusmux/zeus/internal/zeus/model"
	"github.com/zeusmux/zeus/internal/zeus/store"
)

// CompactThreshold is the id count above which the ledger switches
// from whole-file rewrite to append-log-plus-compaction.
const CompactThreshold = 2000

// MaxAge is the age, in seconds, beyond which an id is eligible for
// pruning even if the ledger is under the count cap: ids are kept up
// to MaxCount or 30 days, whichever prunes first.
const MaxAge = 30 * 24 * 3600

// MaxCount is the count cap referenced by the same pruning rule.
const MaxCount = 10000

type idRecord struct {
	ID  string  `json:"id"`
	At  float64 `json:"at"`
}

// Ledger is a per-agent processed-id set backed by a base snapshot and
// an optional append log. One Ledger instance is meant to be owned
// exclusively by a single agent's extension process — it holds no
// file lock and relies on that exclusive ownership instead.
type Ledger struct {
	mu       sync.Mutex
	basePath string
	logPath  string

	loaded bool
	ids    map[string]float64 // id -> accepted_at, for age-based pruning
	logLen int
}

// New builds a Ledger for agentID rooted at agentBusDir
// (zeus-agent-bus/processed/<agent-id>.json, plus a sibling .log).
func New(agentBusDir, agentID string) *Ledger {
	clean := sanitize.AgentID(agentID)
	dir := filepath.Join(agentBusDir, "processed")
	return &Ledger{
		basePath: filepath.Join(dir, clean+".json"),
		logPath:  filepath.Join(dir, clean+".log"),
		ids:      make(map[string]float64),
	}
}

func (l *Ledger) ensureLoaded() error {
	if l.loaded {
		return nil
	}
	var snap model.Ledger
	if err := store.ReadJSON(l.basePath, &snap); err != nil && err != store.ErrNotFound {
		if err != store.ErrCorrupt {
			return err
		}
	}
	now := timefmt.Now()
	for _, id := range snap.IDs {
		l.ids[id] = now
	}
	if err := l.replayLog(); err != nil {
		return err
	}
	l.loaded = true
	return nil
}

func (l *Ledger) replayLog() error {
	f, err := os.Open(l.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	for scanner.Scan() {
		var rec idRecord
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			// A torn trailing line from a crash mid-append; ignore it,
			// the accept itself is re-derived from the next pump pass
			// via the processing/ recovery path.
			continue
		}
		l.ids[rec.ID] = rec.At
		count++
	}
	l.logLen = count
	return nil
}

// Has reports whether id has already been processed for this agent.
func (l *Ledger) Has(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(); err != nil {
		return false, err
	}
	_, ok := l.ids[id]
	return ok, nil
}

// Add records id as processed, persisting durably before returning.
// Callers must call Add before writing the receipt, so a crash
// between the two never leaves a receipt without a matching ledger
// entry.
func (l *Ledger) Add(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(); err != nil {
		return err
	}
	if _, ok := l.ids[id]; ok {
		return nil
	}
	at := timefmt.Now()
	l.ids[id] = at

	total := len(l.ids)
	if total <= CompactThreshold {
		return l.rewriteSnapshot()
	}
	if err := l.appendLog(id, at); err != nil {
		return err
	}
	l.logLen++
	if l.logLen >= CompactThreshold {
		return l.compact()
	}
	return nil
}

func (l *Ledger) rewriteSnapshot() error {
	ids := make([]string, 0, len(l.ids))
	for id := range l.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if err := store.WriteJSONAtomic(l.basePath, model.Ledger{UpdatedAt: timefmt.Now(), IDs: ids}); err != nil {
		return err
	}
	_ = store.Unlink(l.logPath)
	l.logLen = 0
	return nil
}

func (l *Ledger) appendLog(id string, at float64) error {
	if err := store.EnsureDir(filepath.Dir(l.logPath)); err != nil {
		return err
	}
	data, err := json.Marshal(idRecord{ID: id, At: at})
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

// compact collapses the append log and base snapshot into a single
// rewritten snapshot, applying the age/count prune policy.
func (l *Ledger) compact() error {
	now := timefmt.Now()
	ids := make([]string, 0, len(l.ids))
	type aged struct {
		id string
		at float64
	}
	pruned := make([]aged, 0, len(l.ids))
	for id, at := range l.ids {
		if now-at > MaxAge {
			delete(l.ids, id)
			continue
		}
		pruned = append(pruned, aged{id, at})
	}
	sort.Slice(pruned, func(i, j int) bool { return pruned[i].at > pruned[j].at })
	if len(pruned) > MaxCount {
		for _, p := range pruned[MaxCount:] {
			delete(l.ids, p.id)
		}
		pruned = pruned[:MaxCount]
	}
	for _, p := range pruned {
		ids = append(ids, p.id)
	}
	sort.Strings(ids)
	if err := store.WriteJSONAtomic(l.basePath, model.Ledger{UpdatedAt: now, IDs: ids}); err != nil {
		return err
	}
	_ = store.Unlink(l.logPath)
	l.logLen = 0
	return nil
}
