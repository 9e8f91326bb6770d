// Package drain implements the dispatcher's long-running drain loop:
// a cooperative, single-flight IDLE/SWEEP state machine woken by
// filesystem-change notifications on the queue and receipt trees,
// with a sweep-timer fallback that guarantees progress even when no
// watcher can be installed.
package drain

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/zeusmux/zeus/internal/metrics"
	"github.com/zeusmux/zeus/internal/util/timefmt"
	"github.com/zeusmux/zeus/internal/zeus/queue"
	"github.com/zeusmux/zeus/internal/zeus/store"
)

// DefaultSweepInterval is the wake period when no filesystem
// notification has arrived.
const DefaultSweepInterval = 2 * time.Second

// DefaultInflightLease bounds how long an envelope may sit in
// inflight/ before a sweep assumes its claimant died and reclaims it.
const DefaultInflightLease = 120 * time.Second

// DefaultDebounce coalesces bursts of wake signals into a single
// sweep.
const DefaultDebounce = 50 * time.Millisecond

// Loop is one dispatcher process's drain task. Exactly one sweep runs
// at a time: a dispatcher process never has more than one DispatchOnce
// call in flight concurrently.
type Loop struct {
	messageQueueDir string
	agentBusDir     string
	q               *queue.Queue
	inflightLease   float64
	sweepInterval   time.Duration
	debounce        time.Duration
	logger          *slog.Logger

	mu       sync.Mutex
	sweeping bool
	pending  bool
	wake     chan struct{}
}

// New builds a Loop. inflightLease <= 0 and sweepInterval <= 0 use
// their package defaults.
func New(messageQueueDir, agentBusDir string, q *queue.Queue, inflightLease, sweepInterval time.Duration) *Loop {
	if inflightLease <= 0 {
		inflightLease = DefaultInflightLease
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Loop{
		messageQueueDir: messageQueueDir,
		agentBusDir:     agentBusDir,
		q:               q,
		inflightLease:   inflightLease.Seconds(),
		sweepInterval:   sweepInterval,
		debounce:        DefaultDebounce,
		logger:          slog.With("component", "drain"),
		wake:            make(chan struct{}, 1),
	}
}

// Run executes startup recovery, then drives the IDLE/SWEEP loop until
// ctx is cancelled. Shutdown is cooperative: a DispatchOnce call in
// progress is allowed to finish before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("startup recovery")
	if err := l.startupRecovery(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.watch(ctx) })
	g.Go(func() error { return l.sweepTimer(ctx) })
	g.Go(func() error { return l.sweepOnWake(ctx) })
	return g.Wait()
}

// Wake requests an immediate sweep, coalesced with any pending one.
// Exported so callers outside the watch goroutines (e.g. a CLI
// "nudge" command) can trigger a pass without waiting for the timer.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// watch installs filesystem-change notifications on the envelope
// queue's new/ directory and the receipts tree, translating events
// into wakes. Watcher failures are logged and swallowed: the sweep
// timer alone still guarantees progress even with no watcher at all.
func (l *Loop) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.logger.Warn("filesystem watcher unavailable, relying on sweep timer only", "error", err)
		<-ctx.Done()
		return nil
	}
	defer watcher.Close()

	newDir := filepath.Join(l.messageQueueDir, "new")
	receiptsDir := filepath.Join(l.agentBusDir, "receipts")
	if err := store.EnsureDir(newDir); err == nil {
		if err := watcher.Add(newDir); err != nil {
			l.logger.Warn("failed to watch new/", "error", err)
		}
	}
	if err := store.EnsureDir(receiptsDir); err == nil {
		if err := watcher.Add(receiptsDir); err != nil {
			l.logger.Warn("failed to watch receipts/", "error", err)
		}
	}
	l.addExistingReceiptDirs(watcher, receiptsDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// A newly created per-recipient receipts/<id>/ directory needs
			// its own watch to see writes inside it.
			if ev.Op&fsnotify.Create != 0 && filepath.Dir(ev.Name) == receiptsDir {
				_ = watcher.Add(ev.Name)
			}
			l.Wake()
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("watcher error", "error", werr)
		}
	}
}

func (l *Loop) addExistingReceiptDirs(watcher *fsnotify.Watcher, receiptsDir string) {
	names, err := store.ListSorted(receiptsDir, "")
	if err != nil {
		return
	}
	for _, name := range names {
		_ = watcher.Add(filepath.Join(receiptsDir, name))
	}
}

// sweepTimer fires Wake on the fixed fallback cadence.
func (l *Loop) sweepTimer(ctx context.Context) error {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Wake()
		}
	}
}

// sweepOnWake is the debounced consumer of the wake channel: it waits
// for a signal, holds briefly to coalesce a burst, then runs exactly
// one sweep, repeating until ctx is cancelled.
func (l *Loop) sweepOnWake(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}

		timer := time.NewTimer(l.debounce)
		drainWakes := true
		for drainWakes {
			select {
			case <-l.wake:
			case <-timer.C:
				drainWakes = false
			case <-ctx.Done():
				timer.Stop()
				return nil
			}
		}

		if err := l.Sweep(ctx); err != nil {
			l.logger.Warn("sweep failed", "error", err)
		}
	}
}

// startupRecovery runs once before the loop enters IDLE: it reclaims
// every inflight/ envelope regardless of lease age (a prior
// dispatcher may have crashed mid-pass), then performs one normal
// sweep.
func (l *Loop) startupRecovery() error {
	if err := l.reclaimInflight(true); err != nil {
		return err
	}
	return l.Sweep(context.Background())
}

// Sweep runs one full SWEEP pass: reclaim stale inflight claims, then
// dispatch every due envelope in new/.
func (l *Loop) Sweep(ctx context.Context) error {
	l.mu.Lock()
	if l.sweeping {
		l.mu.Unlock()
		return nil
	}
	l.sweeping = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.sweeping = false
		l.mu.Unlock()
	}()

	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	if err := l.reclaimInflight(false); err != nil {
		return err
	}

	newDir := filepath.Join(l.messageQueueDir, "new")
	names, err := store.ListSorted(newDir, ".json")
	if err != nil {
		return err
	}

	now := timefmt.Now()
	for _, name := range names {
		if ctx.Err() != nil {
			return nil
		}
		path := filepath.Join(newDir, name)
		inflightPath := filepath.Join(l.messageQueueDir, "inflight", name)

		// Claim unconditionally before inspecting the file, mirroring
		// inbox.Pump.drainNew: a file that fails to parse must still be
		// claimed so DispatchOnce's poison handling actually runs on it,
		// rather than being skipped forever from new/.
		ok, err := store.ClaimMove(path, inflightPath)
		if err != nil {
			l.logger.Warn("claim failed", "file", name, "error", err)
			continue
		}
		if !ok {
			continue // lost the race to another dispatcher
		}

		env, err := store.ReadEnvelope(inflightPath)
		if err == nil && env.NextAttemptAt > now {
			if _, moveErr := store.ClaimMove(inflightPath, path); moveErr != nil {
				l.logger.Warn("failed to return not-yet-due envelope to new/", "file", name, "error", moveErr)
			}
			continue
		}

		if _, err := l.q.DispatchOnce(inflightPath); err != nil {
			l.logger.Warn("dispatch failed", "file", name, "error", err)
		}
	}
	return nil
}

// reclaimInflight moves every envelope in inflight/ back to new/ that
// has been there longer than the lease (or unconditionally, for
// startup recovery).
func (l *Loop) reclaimInflight(all bool) error {
	inflightDir := filepath.Join(l.messageQueueDir, "inflight")
	names, err := store.ListSorted(inflightDir, ".json")
	if err != nil {
		return err
	}
	now := timefmt.Now()
	for _, name := range names {
		path := filepath.Join(inflightDir, name)
		if !all {
			env, err := store.ReadEnvelope(path)
			if err != nil {
				continue
			}
			if now-env.UpdatedAt < l.inflightLease {
				continue
			}
		}
		newPath := filepath.Join(l.messageQueueDir, "new", name)
		if _, err := store.ClaimMove(path, newPath); err != nil {
			l.logger.Warn("failed to reclaim inflight envelope", "file", name, "error", err)
		}
	}
	return nil
}
