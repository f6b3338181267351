package fiscal

// DocumentState represents the lifecycle state of an emitted document.
// A document is created in Emitted; the state only advances forward and
// never returns to Emitted.
type DocumentState string

const (
	DocumentStateEmitted       DocumentState = "emitted"
	DocumentStatePartiallyPaid DocumentState = "partially_paid"
	DocumentStatePaid          DocumentState = "paid"
	DocumentStateCancelled     DocumentState = "cancelled"
	DocumentStateExpired       DocumentState = "expired"
)

// transitions is the complete state transition table. Anything not listed
// here is rejected with INVALID_TRANSITION.
var transitions = map[DocumentState][]DocumentState{
	DocumentStateEmitted:       {DocumentStatePartiallyPaid, DocumentStatePaid, DocumentStateCancelled, DocumentStateExpired},
	DocumentStatePartiallyPaid: {DocumentStatePaid, DocumentStateCancelled},
	DocumentStatePaid:          {},
	DocumentStateCancelled:     {},
	DocumentStateExpired:       {},
}

// Validate checks that the state is known
func (s DocumentState) Validate() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo returns true if the transition table permits moving to
// the target state
func (s DocumentState) CanTransitionTo(target DocumentState) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible
func (s DocumentState) IsTerminal() bool {
	return len(transitions[s]) == 0
}
