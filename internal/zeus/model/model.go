// Package model defines the wire types persisted to disk by the bus.
// Every type here round-trips through encoding/json; fields are tagged
// exactly as they appear on disk so the schema survives being read by
// future, possibly differently-versioned, readers (unknown fields are
// ignored on decode; missing required fields make the record poison).
package model

// DeliverAs is the recipient-side hint choosing between interrupting
// the current turn and queueing after it.
type DeliverAs string

const (
	DeliverSteer    DeliverAs = "steer"
	DeliverFollowUp DeliverAs = "followUp"
)

// RecipientRef is a resolved recipient, cached on an Envelope once
// resolution has run so retries see a stable recipient set.
type RecipientRef struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

// RecipientState tracks per-recipient dispatch progress within a
// single DispatchOnce call; it is not persisted on its own but is
// returned by queue.DispatchOnce for logging and notification.
type RecipientState struct {
	AgentID string
	Done    bool
	Reason  string // blocking reason kind name, empty when Done
}

// Envelope is one durable send request, living at
// zeus-message-queue/{new,inflight}/<id>.json.
type Envelope struct {
	ID                string         `json:"id"`
	SourceAgentID     string         `json:"source_agent_id"`
	SourceName        string         `json:"source_name"`
	SourceRole        string         `json:"source_role"`
	Target            string         `json:"target"`
	Message           string         `json:"message"`
	DeliverAs         DeliverAs      `json:"deliver_as"`
	CreatedAt         float64        `json:"created_at"`
	UpdatedAt         float64        `json:"updated_at"`
	Attempts          int            `json:"attempts"`
	NextAttemptAt     float64        `json:"next_attempt_at"`
	RecipientsResolved []RecipientRef `json:"recipients_resolved,omitempty"`

	// MessageEncoding is set to "zstd" when Message is stored
	// compressed at rest; empty means plain UTF-8.
	MessageEncoding string `json:"message_encoding,omitempty"`
}

// Valid reports whether the envelope has the minimum required fields
// to be processed; a false result means the record is poison.
func (e *Envelope) Valid() bool {
	if e == nil || e.ID == "" {
		return false
	}
	return trimmedNonEmpty(e.Message)
}

// InboxItem is the per-recipient materialised copy of an envelope,
// living at zeus-agent-bus/inbox/<agent-id>/{new,processing}/<id>.json.
type InboxItem struct {
	ID              string    `json:"id"`
	Message         string    `json:"message"`
	DeliverAs       DeliverAs `json:"deliver_as"`
	SourceName      string    `json:"source_name"`
	SourceAgentID   string    `json:"source_agent_id"`
	SourceRole      string    `json:"source_role"`
	CreatedAt       float64   `json:"created_at"`
	MessageEncoding string    `json:"message_encoding,omitempty"`
}

// Valid reports whether the inbox item has the minimum required
// fields; a false result means the record is poison.
func (i *InboxItem) Valid() bool {
	if i == nil || i.ID == "" {
		return false
	}
	return trimmedNonEmpty(i.Message)
}

// Receipt is the extension's durable acknowledgement that a message id
// was handed to the local agent runtime.
type Receipt struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	AcceptedAt  float64 `json:"accepted_at"`
	AgentID     string  `json:"agent_id"`
	SessionID   string  `json:"session_id"`
	SessionPath string  `json:"session_path"`
}

const ReceiptStatusAccepted = "accepted"

// Capability is the liveness record an agent's extension publishes
// periodically.
type Capability struct {
	AgentID     string             `json:"agent_id"`
	Role        string             `json:"role"`
	SessionID   string             `json:"session_id"`
	SessionPath string             `json:"session_path"`
	Cwd         string             `json:"cwd"`
	UpdatedAt   float64            `json:"updated_at"`
	Supports    CapabilitySupports `json:"supports"`
	Extension   ExtensionInfo      `json:"extension"`
}

type CapabilitySupports struct {
	QueueBus  bool `json:"queue_bus"`
	ReceiptV1 bool `json:"receipt_v1"`
}

type ExtensionInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Ledger is the per-agent durable set of processed message ids, living
// at zeus-agent-bus/processed/<agent-id>.json.
type Ledger struct {
	UpdatedAt float64  `json:"updated_at"`
	IDs       []string `json:"ids"`
}

func trimmedNonEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	return false
}
