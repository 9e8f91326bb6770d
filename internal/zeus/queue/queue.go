// Package queue implements the dispatcher-side envelope queue:
// Enqueue, recipient resolution, and the per-pass dispatch decision
// that fans an envelope out into per-recipient inbox items and
// ACK-gates on receipts.
package queue

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeusmux/zeus/internal/metrics"
	"github.com/zeusmux/zeus/internal/util/sanitize"
	"github.com/zeusmux/zeus/internal/util/timefmt"
	"github.com/zeusmux/zeus/internal/zeus/capability"
	"github.com/zeusmux/zeus/internal/zeus/errkind"
	"github.com/zeusmux/zeus/internal/zeus/ident"
	"github.com/zeusmux/zeus/internal/zeus/model"
	"github.com/zeusmux/zeus/internal/zeus/notifier"
	"github.com/zeusmux/zeus/internal/zeus/registry"
	"github.com/zeusmux/zeus/internal/zeus/retry"
	"github.com/zeusmux/zeus/internal/zeus/store"
)

// Decision is the outcome of a single DispatchOnce call.
type Decision string

const (
	DecisionComplete Decision = "complete"
	DecisionRetry    Decision = "retry"
)

// Queue is the dispatcher's view of the envelope queue and its
// collaborators.
type Queue struct {
	messageQueueDir string
	agentBusDir     string
	registry        registry.Registry
	caps            *capability.Registry
	notifier        *notifier.Notifier
	reresolveAfter  float64
	attemptsNotify  int
}

// New builds a Queue. messageQueueDir and agentBusDir are the two
// state roots for the envelope queue and the per-agent inbox/receipt
// trees; reg is the agent registry supplied by the discovery layer.
// reresolveAfter <= 0 and attemptsNotify <= 0 use their package
// defaults from the retry package.
func New(messageQueueDir, agentBusDir string, reg registry.Registry, caps *capability.Registry, notif *notifier.Notifier, reresolveAfter time.Duration, attemptsNotify int) *Queue {
	if reresolveAfter <= 0 {
		reresolveAfter = retry.ReresolveAfter
	}
	if attemptsNotify <= 0 {
		attemptsNotify = retry.AttemptsNotify
	}
	return &Queue{
		messageQueueDir: messageQueueDir,
		agentBusDir:     agentBusDir,
		registry:        reg,
		caps:            caps,
		notifier:        notif,
		reresolveAfter:  reresolveAfter.Seconds(),
		attemptsNotify:  attemptsNotify,
	}
}

// Enqueue builds and durably writes a new envelope to new/, returning
// its id. It never blocks on delivery and never contacts recipients.
func (q *Queue) Enqueue(sourceAgentID, sourceName, sourceRole, target, message string, deliverAs model.DeliverAs) (string, error) {
	id := ident.Generate()
	now := timefmt.Now()
	env := model.Envelope{
		ID:            id,
		SourceAgentID: sourceAgentID,
		SourceName:    sourceName,
		SourceRole:    sourceRole,
		Target:        target,
		Message:       message,
		DeliverAs:     deliverAs,
		CreatedAt:     now,
		UpdatedAt:     now,
		NextAttemptAt: now,
	}
	path := filepath.Join(q.messageQueueDir, "new", id+".json")
	if err := store.WriteEnvelope(path, env); err != nil {
		return "", err
	}
	return id, nil
}

// ResolveRecipients maps env.Target to a concrete set of recipients.
// The returned error, when non-nil, wraps one of errkind.UnknownRecipient,
// errkind.AmbiguousRecipient, errkind.MissingParent or
// errkind.MissingPhalanx.
func (q *Queue) ResolveRecipients(env model.Envelope) ([]model.RecipientRef, error) {
	target := strings.TrimSpace(env.Target)
	switch {
	case strings.HasPrefix(target, "agent:"):
		return q.lookupByID(strings.TrimPrefix(target, "agent:"))
	case strings.HasPrefix(target, "hoplite:"):
		return q.lookupByID(strings.TrimPrefix(target, "hoplite:"))
	case strings.HasPrefix(target, "name:"):
		return q.lookupByName(strings.TrimPrefix(target, "name:"))
	case target == "polemarch":
		parentID, ok := q.registry.ParentOf(env.SourceAgentID)
		if !ok {
			return nil, errkind.Wrap(errkind.MissingParent, env.SourceAgentID)
		}
		return q.lookupByID(parentID)
	case target == "phalanx":
		source, ok := q.registry.LookupByID(env.SourceAgentID)
		if !ok || source.PhalanxID == "" {
			return nil, errkind.Wrap(errkind.MissingPhalanx, env.SourceAgentID)
		}
		members := q.registry.ListPhalanx(source.PhalanxID)
		var refs []model.RecipientRef
		for _, m := range members {
			if m.AgentID == env.SourceAgentID {
				continue
			}
			refs = append(refs, model.RecipientRef{AgentID: m.AgentID, Name: m.Name, Role: m.Role})
		}
		if len(refs) == 0 {
			return nil, errkind.Wrap(errkind.UnknownRecipient, "phalanx has no other members")
		}
		return refs, nil
	default:
		return q.lookupByName(target)
	}
}

func (q *Queue) lookupByID(id string) ([]model.RecipientRef, error) {
	info, ok := q.registry.LookupByID(id)
	if !ok {
		return nil, errkind.Wrap(errkind.UnknownRecipient, id)
	}
	return []model.RecipientRef{{AgentID: info.AgentID, Name: info.Name, Role: info.Role}}, nil
}

func (q *Queue) lookupByName(name string) ([]model.RecipientRef, error) {
	matches := q.registry.LookupByName(name)
	if len(matches) == 0 {
		return nil, errkind.Wrap(errkind.UnknownRecipient, name)
	}
	if len(matches) > 1 {
		return nil, errkind.Wrap(errkind.AmbiguousRecipient, name)
	}
	m := matches[0]
	return []model.RecipientRef{{AgentID: m.AgentID, Name: m.Name, Role: m.Role}}, nil
}

func (q *Queue) inboxItemPath(recipientID, id string) string {
	return filepath.Join(q.agentBusDir, "inbox", sanitize.AgentID(recipientID), "new", id+".json")
}

func (q *Queue) receiptPath(recipientID, id string) string {
	return filepath.Join(q.agentBusDir, "receipts", sanitize.AgentID(recipientID), id+".json")
}

func (q *Queue) dedupMarkerPath(recipientID, id string) string {
	return filepath.Join(q.messageQueueDir, "receipts-seen", sanitize.AgentID(recipientID), id)
}

// DispatchOnce is called by the drain loop under an exclusive claim
// (the envelope file is at inflightPath, having already been moved
// into inflight/ by the caller). It resolves recipients, fans out
// inbox items, checks receipts, and either removes the envelope
// (COMPLETE) or reschedules it back into new/ (RETRY).
func (q *Queue) DispatchOnce(inflightPath string) (Decision, error) {
	env, err := store.ReadEnvelope(inflightPath)
	if err != nil || !env.Valid() {
		id := strings.TrimSuffix(filepath.Base(inflightPath), ".json")
		q.notifier.NotifyPoison(id, "unparseable or missing required fields")
		_ = store.Unlink(inflightPath)
		metrics.DispatchOutcomesTotal.WithLabelValues("poison").Inc()
		return DecisionComplete, nil
	}

	recipients, resolveErr := q.recipientsFor(env)
	if resolveErr != nil {
		return q.retryEnvelope(inflightPath, env, resolveErr, nil)
	}
	env.RecipientsResolved = recipients

	states := make([]model.RecipientState, 0, len(recipients))
	allDone := true
	for _, r := range recipients {
		state := q.dispatchToRecipient(env, r)
		states = append(states, state)
		if !state.Done {
			allDone = false
		}
	}

	if allDone {
		_ = store.Unlink(inflightPath)
		metrics.DispatchOutcomesTotal.WithLabelValues("complete").Inc()
		return DecisionComplete, nil
	}

	return q.retryEnvelope(inflightPath, env, nil, states)
}

// dispatchToRecipient implements the four-step per-recipient check:
// dedup marker, receipt, capability freshness, then inbox-item write.
func (q *Queue) dispatchToRecipient(env model.Envelope, r model.RecipientRef) model.RecipientState {
	dedupPath := q.dedupMarkerPath(r.AgentID, env.ID)
	if store.Exists(dedupPath) {
		return model.RecipientState{AgentID: r.AgentID, Done: true}
	}

	receiptPath := q.receiptPath(r.AgentID, env.ID)
	if store.Exists(receiptPath) {
		_ = store.WriteJSONAtomic(dedupPath, struct{}{})
		return model.RecipientState{AgentID: r.AgentID, Done: true}
	}

	if !q.caps.IsFresh(r.AgentID) {
		q.notifier.NotifyBlocking(env.ID, "StaleCapability",
			fmt.Sprintf("recipient %s has no fresh capability heartbeat", r.AgentID), false)
		metrics.RecipientBlockedTotal.WithLabelValues("StaleCapability").Inc()
		return model.RecipientState{AgentID: r.AgentID, Done: false, Reason: "StaleCapability"}
	}

	itemPath := q.inboxItemPath(r.AgentID, env.ID)
	if !store.Exists(itemPath) {
		item := model.InboxItem{
			ID:            env.ID,
			Message:       env.Message,
			DeliverAs:     env.DeliverAs,
			SourceName:    env.SourceName,
			SourceAgentID: env.SourceAgentID,
			SourceRole:    env.SourceRole,
			CreatedAt:     env.CreatedAt,
		}
		if err := store.WriteInboxItem(itemPath, item); err != nil {
			return model.RecipientState{AgentID: r.AgentID, Done: false, Reason: "IO"}
		}
	}
	return model.RecipientState{AgentID: r.AgentID, Done: false, Reason: "AwaitingReceipt"}
}

func (q *Queue) recipientsFor(env model.Envelope) ([]model.RecipientRef, error) {
	queuedFor := timefmt.Since(env.CreatedAt)
	if len(env.RecipientsResolved) > 0 && queuedFor < q.reresolveAfter {
		return env.RecipientsResolved, nil
	}
	return q.ResolveRecipients(env)
}

// retryEnvelope advances retry bookkeeping and moves the envelope back
// to new/. resolveErr, when set, means recipient resolution itself
// failed (an envelope-wide blocking reason); states, when set, carries
// per-recipient blocking reasons from a partially successful fan-out.
func (q *Queue) retryEnvelope(inflightPath string, env model.Envelope, resolveErr error, states []model.RecipientState) (Decision, error) {
	env.Attempts++
	env.UpdatedAt = timefmt.Now()
	delay := retry.Delay(env.Attempts - 1)
	env.NextAttemptAt = env.UpdatedAt + delay.Seconds()

	reason, text, forceVisible := blockingReason(env, resolveErr, states)
	if env.Attempts >= q.attemptsNotify || forceVisible {
		q.notifier.NotifyBlocking(env.ID, reason, text, forceVisible)
	}

	newPath := filepath.Join(q.messageQueueDir, "new", env.ID+".json")
	if err := store.WriteEnvelope(inflightPath, env); err != nil {
		return DecisionRetry, err
	}
	if _, err := store.ClaimMove(inflightPath, newPath); err != nil {
		return DecisionRetry, err
	}
	metrics.DispatchOutcomesTotal.WithLabelValues("retry").Inc()
	return DecisionRetry, nil
}

func blockingReason(env model.Envelope, resolveErr error, states []model.RecipientState) (reason, text string, forceVisible bool) {
	if resolveErr != nil {
		switch {
		case errkind.Is(resolveErr, errkind.AmbiguousRecipient):
			reason = "AmbiguousRecipient"
		case errkind.Is(resolveErr, errkind.MissingParent):
			reason = "MissingParent"
		case errkind.Is(resolveErr, errkind.MissingPhalanx):
			reason = "MissingPhalanx"
		default:
			reason = "UnknownRecipient"
		}
		return reason, fmt.Sprintf("envelope %s blocked resolving %q: %v", env.ID, env.Target, resolveErr), true
	}
	for _, s := range states {
		if !s.Done {
			return s.Reason, fmt.Sprintf("envelope %s blocked on %s: %s", env.ID, s.AgentID, s.Reason), false
		}
	}
	return "Unknown", fmt.Sprintf("envelope %s retrying for an unspecified reason", env.ID), false
}
