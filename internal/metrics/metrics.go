package metrics

type Counter interface {
	Inc()
}

// Metrics carries the counters the hot path increments. Nothing in the
// pipeline raises; every failure mode lands in one of these.
type Metrics struct {
	FramesMalformed Counter
	FramesDropped   Counter
	ModelSkips      Counter
	GateRejections  Counter
	OrdersPlaced    Counter
	OrdersModified  Counter
	OrdersCancelled Counter
	RegimeTrips     Counter
	Flattens        Counter
	SendFailures    Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		FramesMalformed: n,
		FramesDropped:   n,
		ModelSkips:      n,
		GateRejections:  n,
		OrdersPlaced:    n,
		OrdersModified:  n,
		OrdersCancelled: n,
		RegimeTrips:     n,
		Flattens:        n,
		SendFailures:    n,
	}
}
