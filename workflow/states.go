package workflow

import "github.com/goliatone/go-commercebot/core"

// State names one position in the order lifecycle. Only idle and
// awaiting-confirmation survive between webhook deliveries; the other
// states exist inside a single engine operation and show up in logs.
type State string

const (
	StateIdle                 State = "idle"
	StateOrderInitiated       State = "order_initiated"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateConfirming           State = "confirming"
	StateConfirmed            State = "confirmed"
)

// StateOf derives the durable state of a conversation from its session.
func StateOf(session *core.Session) State {
	if session == nil || session.PendingOrderID == 0 {
		return StateIdle
	}
	return StateAwaitingConfirmation
}
