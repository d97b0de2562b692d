package engine

import "es-maker-bot/internal/market"

// Phase tracks one passive order through its lifecycle. The executor is
// authoritative: transitions into and out of LIVE come from position and
// monitored-limit reconciliation, not from acknowledgements.
type Phase string

const (
	PhasePendingPlace  Phase = "PENDING_PLACE"
	PhaseLive          Phase = "LIVE"
	PhasePendingCancel Phase = "PENDING_CANCEL"
)

// orderState is one side's resting-order slot. The engine holds at most one
// per side; a nil slot means NONE.
type orderState struct {
	clientID  uint64
	side      market.Side
	price     float64
	qty       int
	placedTMS int64
	phase     Phase

	// pendingModify is set while a MODIFY is awaiting reconciliation;
	// prevPrice is the resting price it would fail back to. modifyAttempts
	// counts failed modifies only: a confirmed re-price resets it.
	pendingModify  bool
	prevPrice      float64
	modifyAttempts int

	// missedMonitor counts successive M reports that did not include this
	// order's price; two misses mean the order died on the venue side.
	missedMonitor int

	// invalidSinceTMS is when the entry gates first went false while the
	// order was resting, 0 while they hold.
	invalidSinceTMS int64
}

func (o *orderState) working() bool {
	return o != nil && o.phase != PhasePendingCancel
}
