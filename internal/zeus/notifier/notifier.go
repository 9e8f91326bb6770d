// Package notifier implements the dispatcher's operator-visible
// notification surface: one notification per envelope per blocking
// reason, throttled to once per NOTIFY_THROTTLE. Throttle state is
// persisted to disk so it survives a dispatcher restart rather than
// being lost on process exit.
package notifier

import (
	"log/slog"
	"path/filepath"

	"github.com/zeusmux/zeus/internal/util/sanitize"
	"github.com/zeusmux/zeus/internal/util/timefmt"
	"github.com/zeusmux/zeus/internal/zeus/store"
)

// DefaultThrottle is the minimum interval between repeat notifications
// for the same (envelope, reason) pair.
const DefaultThrottle = 60 // seconds

// Level mirrors the dispatcher boundary's Notify(level, text) shape.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Sink is where a rendered notification actually goes (log line,
// dashboard feed, etc). The default Sink just logs.
type Sink interface {
	Notify(level Level, text string)
}

// LogSink renders notifications through slog.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink builds a Sink that logs through slog.
func NewLogSink() *LogSink {
	return &LogSink{logger: slog.With("component", "notifier")}
}

func (s *LogSink) Notify(level Level, text string) {
	switch level {
	case LevelError:
		s.logger.Error(text)
	case LevelWarn:
		s.logger.Warn(text)
	default:
		s.logger.Info(text)
	}
}

type throttleState struct {
	LastNotifiedAt float64 `json:"last_notified_at"`
}

// Notifier gates repeat notifications per (envelope, reason) and
// persists the gate under STATE_DIR/zeus-message-queue/notify-state/.
type Notifier struct {
	stateDir string
	throttle float64
	sink     Sink
}

// New builds a Notifier. messageQueueDir is the dispatcher's queue
// root (zeus-message-queue); throttleSeconds <= 0 uses DefaultThrottle.
func New(messageQueueDir string, throttleSeconds float64, sink Sink) *Notifier {
	if throttleSeconds <= 0 {
		throttleSeconds = DefaultThrottle
	}
	if sink == nil {
		sink = NewLogSink()
	}
	return &Notifier{
		stateDir: filepath.Join(messageQueueDir, "notify-state"),
		throttle: throttleSeconds,
		sink:     sink,
	}
}

func (n *Notifier) path(envelopeID, reason string) string {
	return filepath.Join(n.stateDir, sanitize.AgentID(envelopeID)+"."+sanitize.AgentID(reason)+".json")
}

// NotifyBlocking surfaces a blocking reason for envelopeID, throttled
// to once per n.throttle seconds for the same (envelope, reason) pair.
// The first occurrence of a pair always fires. forceVisible marks a
// structurally-impossible reason: it is reported at error level, and
// its repeats are throttled like any other.
func (n *Notifier) NotifyBlocking(envelopeID, reason, text string, forceVisible bool) {
	path := n.path(envelopeID, reason)
	now := timefmt.Now()

	var state throttleState
	firstTime := false
	if err := store.ReadJSON(path, &state); err != nil {
		firstTime = true
	}

	if !firstTime && now-state.LastNotifiedAt < n.throttle {
		return
	}

	level := LevelWarn
	if forceVisible {
		level = LevelError
	}
	n.sink.Notify(level, text)

	_ = store.WriteJSONAtomic(path, throttleState{LastNotifiedAt: now})
}

// NotifyPoison surfaces a poison-payload drop. This always fires,
// exactly once per id, since a poison message is deleted immediately
// and there is no retry loop to throttle against.
func (n *Notifier) NotifyPoison(id, reason string) {
	path := filepath.Join(n.stateDir, sanitize.AgentID(id)+".poison.json")
	if store.Exists(path) {
		return
	}
	n.sink.Notify(LevelError, "poison message dropped: "+id+": "+reason)
	_ = store.WriteJSONAtomic(path, throttleState{LastNotifiedAt: timefmt.Now()})
}
