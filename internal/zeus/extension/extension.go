// Package extension implements the §6 extension boundary: the glue
// that runs inside an agent process, reacting to runtime lifecycle
// events by publishing a heartbeat and scheduling an inbox pump, and
// exposing the runtime's sendUserMessage call as the inbox.Submitter
// the pump drives.
package extension

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/zeusmux/zeus/internal/zeus/capability"
	"github.com/zeusmux/zeus/internal/zeus/inbox"
	"github.com/zeusmux/zeus/internal/zeus/ledger"
	"github.com/zeusmux/zeus/internal/zeus/model"
)

// Event is a runtime lifecycle event the host fires into the
// extension.
type Event string

const (
	EventSessionStart  Event = "session_start"
	EventSessionSwitch Event = "session_switch"
	EventSessionFork   Event = "session_fork"
	EventSessionTree   Event = "session_tree"
	EventTurnEnd       Event = "turn_end"
)

// RuntimeContext exposes the session accessors that event handlers
// need as string accessors on event context.
type RuntimeContext interface {
	SessionFile() string
	SessionID() string
	Cwd() string
}

// Runtime is the host agent runtime's boundary: delivering a payload
// into the model conversation.
type Runtime interface {
	SendUserMessage(ctx context.Context, text string, deliverAs model.DeliverAs) error
}

// Extension is one instance per live agent process, wiring the
// capability registry, the inbox pump, and the host runtime together.
type Extension struct {
	agentID  string
	role     string
	caps     *capability.Registry
	pump     *inbox.Pump
	runtime  Runtime
	inboxDir string
	logger   *slog.Logger

	rcMu sync.Mutex
	rc   RuntimeContext

	watchOnce sync.Once
	watcher   *fsnotify.Watcher
}

// New builds an Extension for agentID. agentBusDir is the shared
// zeus-agent-bus root; role is one of hippeus|polemarch|hoplite.
func New(agentBusDir, agentID, role string, runtime Runtime, caps *capability.Registry, led *ledger.Ledger) *Extension {
	e := &Extension{
		agentID: agentID,
		role:    role,
		caps:    caps,
		runtime: runtime,
		logger:  slog.With("component", "extension", "agent_id", agentID),
	}
	e.pump = inbox.New(agentBusDir, agentID, submitFunc(e.submit), led, e)
	return e
}

type submitFunc func(ctx context.Context, item model.InboxItem) error

func (f submitFunc) Submit(ctx context.Context, item model.InboxItem) error {
	return f(ctx, item)
}

func (e *Extension) submit(ctx context.Context, item model.InboxItem) error {
	return e.runtime.SendUserMessage(ctx, item.Message, item.DeliverAs)
}

// On handles a runtime lifecycle event: remember the current session
// (session_switch/session_fork may have changed it), re-publish the
// heartbeat best-effort, make sure the filesystem watcher is running,
// and schedule a pump pass.
func (e *Extension) On(ctx context.Context, event Event, rc RuntimeContext) {
	e.rcMu.Lock()
	e.rc = rc
	e.rcMu.Unlock()

	e.publishHeartbeat(rc)
	e.ensureWatcher(ctx)
	e.pump.Schedule(ctx)
}

// SessionID and SessionFile implement inbox.SessionAccessor: they give
// the pump, which runs asynchronously after On returns, visibility
// into whichever session most recently fired an event.
func (e *Extension) SessionID() string {
	e.rcMu.Lock()
	defer e.rcMu.Unlock()
	if e.rc == nil {
		return ""
	}
	return e.rc.SessionID()
}

func (e *Extension) SessionFile() string {
	e.rcMu.Lock()
	defer e.rcMu.Unlock()
	if e.rc == nil {
		return ""
	}
	return e.rc.SessionFile()
}

func (e *Extension) publishHeartbeat(rc RuntimeContext) {
	cap := model.Capability{
		AgentID:  e.agentID,
		Role:     e.role,
		Supports: model.CapabilitySupports{QueueBus: true, ReceiptV1: true},
		Extension: model.ExtensionInfo{
			Name:    "zeus-extension",
			Version: "1",
		},
	}
	if rc != nil {
		cap.SessionID = rc.SessionID()
		cap.SessionPath = rc.SessionFile()
		cap.Cwd = rc.Cwd()
	}
	if err := e.caps.PublishHeartbeat(cap); err != nil {
		e.logger.Warn("heartbeat publish failed", "error", err)
	}
}

// ensureWatcher starts the fsnotify watcher on the inbox directory
// exactly once; failure (e.g. unsupported filesystem) is logged and
// otherwise ignored, since the sweep-timer fallback via turn_end
// guarantees progress regardless.
func (e *Extension) ensureWatcher(ctx context.Context) {
	e.watchOnce.Do(func() {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			e.logger.Warn("filesystem watcher unavailable, relying on sweep fallback", "error", err)
			return
		}
		if err := w.Add(e.pump.NewDir()); err != nil {
			e.logger.Warn("failed to watch inbox dir, relying on sweep fallback", "error", err)
			_ = w.Close()
			return
		}
		e.watcher = w
		go e.watchLoop(ctx)
	})
}

func (e *Extension) watchLoop(ctx context.Context) {
	defer e.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			e.pump.Schedule(ctx)
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			e.logger.Warn("filesystem watcher error", "error", err)
		}
	}
}

// RunOnceForTest exposes a synchronous pump pass for tests that don't
// want to wait on the debounce timer. Runtime events, turn_end
// included, go through On and Schedule instead.
func (e *Extension) RunOnceForTest(ctx context.Context) error {
	return e.pump.RunOnce(ctx)
}
