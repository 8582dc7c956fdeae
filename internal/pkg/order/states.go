package order

// State is the authoritative lifecycle state of an invoice.
type State string

const (
	StateProcessingPayment State = "ProcessingPayment"
	StateSettled           State = "Settled"
	StateFulfilled         State = "Fulfilled"
	StateFailed            State = "Failed"
	StateExpired           State = "Expired"
	StateCanceled          State = "Canceled"
)

// transitions is the exhaustive chart of allowed state changes. Settled is a
// transient midpoint between payment confirmation and fulfillment; the failure
// states only ever follow ProcessingPayment.
var transitions = map[State][]State{
	StateProcessingPayment: {StateSettled, StateFailed, StateExpired, StateCanceled},
	StateSettled:           {StateFulfilled},
	StateFulfilled:         {},
	StateFailed:            {},
	StateExpired:           {},
	StateCanceled:          {},
}

// Allowed reports whether the transition from one state to another is legal.
// Callers log and skip disallowed transitions instead of applying them.
func Allowed(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further rail event changes the state.
func (s State) Terminal() bool {
	switch s {
	case StateFulfilled, StateFailed, StateExpired, StateCanceled:
		return true
	}
	return false
}

// Deletable reports whether a new checkout for the same email may replace
// the invoice. Fulfilled invoices are retained and keep blocking checkouts.
func (s State) Deletable() bool {
	switch s {
	case StateFailed, StateExpired, StateCanceled:
		return true
	}
	return false
}
