// Package errkind defines the closed set of error kinds the bus
// reasons about. These are kinds, not Go error types: every fallible
// operation that corresponds to a named failure mode wraps one of
// these sentinels so callers can classify with errors.Is instead of
// string-matching or type-switching on concrete error structs.
package errkind

import "errors"

var (
	// Poison marks an unparseable envelope or inbox file: missing
	// required fields, invalid JSON, or an empty trimmed message.
	Poison = errors.New("poison")

	// UnknownRecipient marks a target expression that resolved to no
	// agent.
	UnknownRecipient = errors.New("unknown recipient")

	// AmbiguousRecipient marks a display-name lookup that matched more
	// than one live agent.
	AmbiguousRecipient = errors.New("ambiguous recipient")

	// MissingParent marks a "polemarch" target whose sender has no
	// ZEUS_PARENT_ID.
	MissingParent = errors.New("missing parent")

	// MissingPhalanx marks a "phalanx" target whose sender has no
	// phalanx membership.
	MissingPhalanx = errors.New("missing phalanx")

	// StaleCapability marks a recipient whose heartbeat is absent or
	// older than the configured max age.
	StaleCapability = errors.New("stale capability")

	// SubmitFailed marks a host-runtime submit call that returned an
	// error; the inbox item is returned to new/ for retry.
	SubmitFailed = errors.New("submit failed")

	// IO marks a transient filesystem failure. Everywhere except
	// process startup, IO is caught and converted into "retry next
	// pass" rather than propagated.
	IO = errors.New("io error")
)

// Error wraps one of the sentinel kinds above with a human-readable
// reason, preserving errors.Is compatibility via Unwrap.
type Error struct {
	Kind   error
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Wrap builds an *Error for the given kind and reason.
func Wrap(kind error, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Is reports whether err (or anything it wraps) is of the given kind.
func Is(err error, kind error) bool {
	return errors.Is(err, kind)
}
