// Package inbox implements the extension-side half of the bus: the
// per-agent new/ -> processing/ claim, the processed-ledger check, the
// submit-to-runtime call, and the accepted-receipt emission. It is
// meant to run inside each agent process, one Pump per agent.
package inbox

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeusmux/zeus/internal/metrics"
	"github.com/zeusmux/zeus/internal/util/sanitize"
	"github.com/zeusmux/zeus/internal/util/timefmt"
	"github.com/zeusmux/zeus/internal/zeus/ledger"
	"github.com/zeusmux/zeus/internal/zeus/model"
	"github.com/zeusmux/zeus/internal/zeus/store"
)

// DefaultDebounce is how long the pump waits after being scheduled
// before it actually runs, coalescing bursts of wake events into one
// pass.
const DefaultDebounce = 50 * time.Millisecond

// Submitter is the host runtime boundary: handing a payload to the
// local agent's model conversation. An error means the submit did not
// take effect and the item must be retried.
type Submitter interface {
	Submit(ctx context.Context, item model.InboxItem) error
}

// SessionAccessor reports the host runtime's current session identity,
// so an accepted receipt can record which session accepted the
// message. A nil SessionAccessor (or a nil *Pump.session) leaves the
// receipt's session fields empty.
type SessionAccessor interface {
	SessionID() string
	SessionFile() string
}

// Outcome classifies one per-file processing step, for logging and
// metrics.
type Outcome string

const (
	OutcomeSubmitted Outcome = "submitted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomePoison    Outcome = "poison"
	OutcomeRetry     Outcome = "retry"
)

// Pump is the cooperative, single-threaded-within-a-process inbox
// drain worker for one agent. Overlapping Schedule calls coalesce:
// at most one pump runs at a time, and a request arriving mid-run
// triggers exactly one more pass after the current one finishes
// (state machine {Idle, Running, RunningWithPending} per design, here
// a mutex-guarded pair of bools plays the same role).
type Pump struct {
	agentID       string
	newDir        string
	processingDir string
	receiptsDir   string
	ledger        *ledger.Ledger
	submitter     Submitter
	session       SessionAccessor
	debounce      time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	running bool
	pending bool
}

// New builds a Pump for agentID rooted at agentBusDir
// (zeus-agent-bus). submitter is the host runtime's submit function;
// led is that agent's processed ledger, owned exclusively by this
// Pump's process; session, which may be nil, reports the session
// identity to stamp onto accepted receipts.
func New(agentBusDir, agentID string, submitter Submitter, led *ledger.Ledger, session SessionAccessor) *Pump {
	clean := sanitize.AgentID(agentID)
	inboxDir := filepath.Join(agentBusDir, "inbox", clean)
	return &Pump{
		agentID:       agentID,
		newDir:        filepath.Join(inboxDir, "new"),
		processingDir: filepath.Join(inboxDir, "processing"),
		receiptsDir:   filepath.Join(agentBusDir, "receipts", clean),
		ledger:        led,
		submitter:     submitter,
		session:       session,
		debounce:      DefaultDebounce,
		logger:        slog.With("component", "inbox", "agent_id", agentID),
	}
}

// NewDir returns the new/ directory this pump drains, for callers
// that need to attach a filesystem watcher to it.
func (p *Pump) NewDir() string {
	return p.newDir
}

// Schedule requests a pump pass, debounced and coalesced. It returns
// immediately; the actual pass runs on its own goroutine.
func (p *Pump) Schedule(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.pending = true
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.runLoop(ctx)
}

func (p *Pump) runLoop(ctx context.Context) {
	timer := time.NewTimer(p.debounce)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}

	for {
		if err := p.RunOnce(ctx); err != nil {
			p.logger.Warn("pump pass failed", "error", err)
		}

		p.mu.Lock()
		if p.pending && ctx.Err() == nil {
			p.pending = false
			p.mu.Unlock()
			continue
		}
		p.running = false
		p.pending = false
		p.mu.Unlock()
		return
	}
}

// RunOnce runs exactly one pump pass synchronously: recover stuck
// claims in processing/, then drain new/. Schedule's goroutine calls
// it for each pass; tests call it directly to skip the debounce.
func (p *Pump) RunOnce(ctx context.Context) error {
	if err := p.recoverStuck(ctx); err != nil {
		return err
	}
	return p.drainNew(ctx)
}

// recoverStuck handles crash recovery: a prior pump may have died
// between claiming an item into processing/ and finishing it.
func (p *Pump) recoverStuck(ctx context.Context) error {
	names, err := store.ListSorted(p.processingDir, ".json")
	if err != nil {
		return err
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return nil
		}
		p.processFile(ctx, filepath.Join(p.processingDir, name), name)
	}
	return nil
}

// drainNew claims everything currently in new/ into processing/ and
// processes each claimed item.
func (p *Pump) drainNew(ctx context.Context) error {
	names, err := store.ListSorted(p.newDir, ".json")
	if err != nil {
		return err
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return nil
		}
		src := filepath.Join(p.newDir, name)
		dst := filepath.Join(p.processingDir, name)
		ok, err := store.ClaimMove(src, dst)
		if err != nil {
			p.logger.Warn("claim failed", "file", name, "error", err)
			continue
		}
		if !ok {
			continue // another claimant (or recoverStuck) already took it
		}
		p.processFile(ctx, dst, name)
	}
	return nil
}

// processFile implements the per-file processing step.
func (p *Pump) processFile(ctx context.Context, path, originalName string) Outcome {
	item, err := store.ReadInboxItem(path)
	if err != nil || !item.Valid() {
		p.logger.Warn("poison inbox item", "file", originalName)
		_ = store.Unlink(path)
		metrics.PumpOutcomesTotal.WithLabelValues(string(OutcomePoison)).Inc()
		return OutcomePoison
	}

	has, err := p.ledger.Has(item.ID)
	if err != nil {
		p.logger.Warn("ledger read failed, leaving for retry", "id", item.ID, "error", err)
		return OutcomeRetry
	}
	if has {
		if err := p.ensureReceipt(item); err != nil {
			p.logger.Warn("receipt re-emit failed", "id", item.ID, "error", err)
			return OutcomeRetry
		}
		_ = store.Unlink(path)
		metrics.PumpOutcomesTotal.WithLabelValues(string(OutcomeDuplicate)).Inc()
		return OutcomeDuplicate
	}

	if err := p.submitter.Submit(ctx, item); err != nil {
		p.logger.Warn("submit failed, returning to new/ for retry", "id", item.ID, "error", err)
		if _, moveErr := store.ClaimMove(path, filepath.Join(p.newDir, originalName)); moveErr != nil {
			p.logger.Warn("failed to return item to new/", "id", item.ID, "error", moveErr)
		}
		metrics.PumpOutcomesTotal.WithLabelValues(string(OutcomeRetry)).Inc()
		return OutcomeRetry
	}

	// Ledger write precedes receipt write precedes processing-file
	// delete: a crash between any two of these steps converges
	// correctly on the next pump pass.
	if err := p.ledger.Add(item.ID); err != nil {
		p.logger.Error("ledger write failed after successful submit", "id", item.ID, "error", err)
		return OutcomeRetry
	}
	if err := p.ensureReceipt(item); err != nil {
		p.logger.Error("receipt write failed after ledger write", "id", item.ID, "error", err)
		return OutcomeRetry
	}
	_ = store.Unlink(path)
	metrics.PumpOutcomesTotal.WithLabelValues(string(OutcomeSubmitted)).Inc()
	return OutcomeSubmitted
}

// ensureReceipt writes the accepted receipt for item if it does not
// already exist; re-emission is idempotent, which is what makes the
// duplicate path in processFile safe.
func (p *Pump) ensureReceipt(item model.InboxItem) error {
	path := filepath.Join(p.receiptsDir, item.ID+".json")
	if store.Exists(path) {
		return nil
	}
	receipt := model.Receipt{
		ID:         item.ID,
		Status:     model.ReceiptStatusAccepted,
		AcceptedAt: timefmt.Now(),
		AgentID:    p.agentID,
	}
	if p.session != nil {
		receipt.SessionID = p.session.SessionID()
		receipt.SessionPath = p.session.SessionFile()
	}
	return store.WriteJSONAtomic(path, receipt)
}
