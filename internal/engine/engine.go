package engine

import (
	"math"

	"es-maker-bot/internal/config"
	"es-maker-bot/internal/exec"
	"es-maker-bot/internal/market"
	"es-maker-bot/internal/metrics"
	"es-maker-bot/internal/micro"
	"es-maker-bot/internal/model"

	"go.uber.org/zap"
)

// Engine is the decision core. It consumes normalized events for the lead
// instrument, keeps the pricing models and microstructure features current,
// runs the layered filter chain on every update and drives the passive
// order lifecycle through the sink. All methods must be called from a
// single goroutine; time is event time (t_ms), never the wall clock.
type Engine struct {
	cfg        config.EngineConfig
	leadSymbol string
	log        *zap.Logger
	met        *metrics.Metrics
	sink       exec.Sink

	kalman  *model.Kalman
	ridge   *model.Ridge
	obi     *micro.OBI
	iceberg *micro.Iceberg
	regime  *micro.Regime

	lastDom *market.DomSnapshot
	lastOBI float64

	spreadKF float64
	fairKF   float64
	haveKF   bool
	spreadRD float64
	fairRD   float64
	haveRD   bool

	position float64
	clientID uint64

	buy  *orderState
	sell *orderState

	tripped     bool
	flattenSent bool

	nowMS        int64
	leadSeenTMS  int64
	staleAfterMS int64

	kfSkips int
	rdSkips int
}

type Deps struct {
	Kalman  *model.Kalman
	Ridge   *model.Ridge
	OBI     *micro.OBI
	Iceberg *micro.Iceberg
	Regime  *micro.Regime
	Sink    exec.Sink
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

func New(cfg config.EngineConfig, leadSymbol string, deps Deps) *Engine {
	met := deps.Metrics
	if met == nil {
		met = metrics.NewNoop()
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		leadSymbol: leadSymbol,
		log:        log,
		met:        met,
		sink:       deps.Sink,
		kalman:     deps.Kalman,
		ridge:      deps.Ridge,
		obi:        deps.OBI,
		iceberg:    deps.Iceberg,
		regime:     deps.Regime,
	}
}

// SetStaleAfterMS arms the lead-instrument staleness guard; 0 disables it.
func (e *Engine) SetStaleAfterMS(ms int64) {
	e.staleAfterMS = ms
}

// RestoreClientID seeds the id counter from a persisted snapshot so ids
// stay monotonic across restarts.
func (e *Engine) RestoreClientID(last uint64) {
	if last > e.clientID {
		e.clientID = last
	}
}

// ClientID returns the last assigned client order id.
func (e *Engine) ClientID() uint64 { return e.clientID }

// Position returns the executor-reported signed position.
func (e *Engine) Position() float64 { return e.position }

// OnTick ingests one tick event: regime sample, model updates, then the
// decision pipeline.
func (e *Engine) OnTick(tick market.TickEvent) {
	if tick.BTC > 0 {
		e.regime.OnPrice(tick.BTC, tick.TMS)
		e.checkRegime()
	}

	fairKF, spreadKF, okKF := e.kalman.Update(tick)
	if okKF {
		e.fairKF, e.spreadKF, e.haveKF = fairKF, spreadKF, true
	}
	fairRD, spreadRD, okRD := e.ridge.Update(tick)
	if okRD {
		e.fairRD, e.spreadRD, e.haveRD = fairRD, spreadRD, true
	}
	e.countModelSkips()

	e.evaluate(tick.TMS)
}

// OnDom ingests a lead-instrument depth snapshot and re-runs the pipeline.
func (e *Engine) OnDom(dom market.DomSnapshot) {
	e.leadSeenTMS = maxInt64(e.leadSeenTMS, dom.TMS)
	e.lastDom = &dom
	e.iceberg.OnDom(dom)
	e.lastOBI = e.obi.Calc(dom)
	e.evaluate(dom.TMS)
}

// OnTrade feeds a lead-instrument print to the iceberg detector. Decisions
// happen in OnTick/OnDom only.
func (e *Engine) OnTrade(trade market.TradeEvent) {
	e.leadSeenTMS = maxInt64(e.leadSeenTMS, trade.TMS)
	e.iceberg.OnTrade(trade)
}

// OnHeartbeat refreshes the lead liveness watermark.
func (e *Engine) OnHeartbeat(symbol string, tms int64) {
	if symbol == e.leadSymbol {
		e.leadSeenTMS = maxInt64(e.leadSeenTMS, tms)
	}
}

// OnPosition adopts the executor-reported position. A step toward a working
// order's side means that order filled.
func (e *Engine) OnPosition(symbol string, volume float64) {
	if symbol != e.leadSymbol {
		return
	}
	delta := volume - e.position
	e.position = volume
	if delta > 0 && e.buy.working() {
		e.log.Info("buy order filled", zap.Uint64("client_id", e.buy.clientID), zap.Float64("position", volume))
		e.buy = nil
	}
	if delta < 0 && e.sell.working() {
		e.log.Info("sell order filled", zap.Uint64("client_id", e.sell.clientID), zap.Float64("position", volume))
		e.sell = nil
	}
	if e.tripped && e.position != 0 && !e.flattenSent {
		e.flatten()
	}
}

// OnMonitoredLimit reconciles against the venue-observed active limit
// price. 0 means no active limit.
func (e *Engine) OnMonitoredLimit(symbol string, price float64) {
	if symbol != e.leadSymbol {
		return
	}
	for _, slot := range []**orderState{&e.buy, &e.sell} {
		o := *slot
		if o == nil {
			continue
		}
		if price > 0 && math.Abs(price-o.price) < e.cfg.TickSize/2 {
			if o.phase == PhasePendingPlace {
				o.phase = PhaseLive
			}
			o.missedMonitor = 0
			o.pendingModify = false
			o.prevPrice = 0
			o.modifyAttempts = 0
			continue
		}
		if o.pendingModify && o.prevPrice > 0 && price > 0 && math.Abs(price-o.prevPrice) < e.cfg.TickSize/2 {
			// The venue still shows the pre-modify price: the modify failed
			// but the order is alive. Revert and count the failure.
			o.pendingModify = false
			o.price = o.prevPrice
			o.prevPrice = 0
			o.modifyAttempts++
			o.missedMonitor = 0
			e.log.Warn("modify not applied, order still at prior price",
				zap.Uint64("client_id", o.clientID),
				zap.Float64("price", o.price),
				zap.Int("failed_modifies", o.modifyAttempts),
			)
			continue
		}
		if o.phase == PhasePendingCancel {
			*slot = nil
			continue
		}
		o.missedMonitor++
		if o.missedMonitor >= 2 {
			e.log.Info("order no longer monitored, assuming external cancel",
				zap.Uint64("client_id", o.clientID), zap.Float64("price", o.price))
			*slot = nil
		}
	}
}

func (e *Engine) evaluate(now int64) {
	e.nowMS = maxInt64(e.nowMS, now)
	e.manageOrders(now)
	e.tryEnter(now)
}

func (e *Engine) manageOrders(now int64) {
	for _, slot := range []**orderState{&e.buy, &e.sell} {
		o := *slot
		if o == nil {
			continue
		}
		if o.phase == PhasePendingCancel {
			// Lazy fallback when no M/position confirmation ever arrives.
			if now-o.placedTMS > 2*e.cfg.CancelTimeoutMS {
				*slot = nil
			}
			continue
		}
		if now-o.placedTMS > e.cfg.CancelTimeoutMS {
			e.cancelOrder(o, "timeout", now)
			continue
		}
		if reason := e.gateFailure(o.side, o.price); reason != "" {
			if o.invalidSinceTMS == 0 {
				o.invalidSinceTMS = now
			} else if now-o.invalidSinceTMS >= e.cfg.InvalidationMS {
				e.cancelOrder(o, "invalidated_"+reason, now)
				continue
			}
		} else {
			o.invalidSinceTMS = 0
		}
		if o.phase == PhaseLive && !o.pendingModify {
			e.maybeReprice(o, now)
		}
	}
}

func (e *Engine) maybeReprice(o *orderState, now int64) {
	want, ok := e.entryPrice(o.side)
	if !ok {
		return
	}
	if math.Abs(want-o.price) < e.cfg.RepriceHysteresisTicks*e.cfg.TickSize {
		return
	}
	if o.modifyAttempts >= e.cfg.MaxModifyRetries {
		e.cancelOrder(o, "reprice_fallback", now)
		return
	}
	old := o.price
	o.price = want
	o.prevPrice = old
	o.pendingModify = true
	e.met.OrdersModified.Inc()
	e.sink.Send(exec.OrderCommand{
		Op:       exec.OpModify,
		Side:     o.side,
		Price:    want,
		OldPrice: old,
		ClientID: o.clientID,
		Reason:   "reprice",
	})
}

func (e *Engine) tryEnter(now int64) {
	side, ok := e.signalSide()
	if !ok {
		return
	}
	if !e.warm() {
		return
	}
	slot := e.slot(side)
	if *slot != nil {
		return
	}
	price, ok := e.entryPrice(side)
	if !ok {
		return
	}
	if reason := e.gateFailure(side, price); reason != "" {
		e.met.GateRejections.Inc()
		e.log.Debug("entry rejected", zap.String("side", string(side)), zap.String("gate", reason))
		return
	}

	e.clientID++
	o := &orderState{
		clientID:  e.clientID,
		side:      side,
		price:     price,
		qty:       e.cfg.OrderQty,
		placedTMS: now,
		phase:     PhasePendingPlace,
	}
	*slot = o
	e.met.OrdersPlaced.Inc()
	e.sink.Send(exec.OrderCommand{
		Op:       exec.OpPlace,
		Side:     side,
		Price:    price,
		Quantity: o.qty,
		ClientID: o.clientID,
		Reason:   "maker_entry",
	})
	e.log.Info("passive entry placed",
		zap.String("side", string(side)),
		zap.Float64("price", price),
		zap.Float64("spread", e.spreadKF),
		zap.Float64("obi", e.lastOBI),
		zap.Uint64("client_id", o.clientID),
	)
}

// signalSide applies the spread gate: the candidate side exists when the
// Kalman spread reaches the threshold, with the boundary included.
func (e *Engine) signalSide() (market.Side, bool) {
	if !e.haveKF {
		return market.SideUnknown, false
	}
	s := e.spreadKF / e.cfg.TickSize
	switch {
	case s >= e.cfg.BaseSpreadThresholdTicks:
		return market.SideBuy, true
	case s <= -e.cfg.BaseSpreadThresholdTicks:
		return market.SideSell, true
	}
	return market.SideUnknown, false
}

func (e *Engine) warm() bool {
	return e.kalman.Updates() >= e.cfg.WarmupUpdates && e.ridge.Updates() >= e.cfg.WarmupUpdates
}

// gateFailure runs the filter chain after warm-up, starting with the spread
// gate, for a fixed side and entry price. It returns the name of the first
// failing gate, or "".
func (e *Engine) gateFailure(side market.Side, price float64) string {
	if s, ok := e.signalSide(); !ok || s != side {
		return "spread"
	}
	if e.cfg.RequireRidgeAgreement && !e.ridgeAgrees() {
		return "corroboration"
	}
	if e.regime.State() == micro.RegimeTripped {
		return "regime"
	}
	if e.staleAfterMS > 0 && e.leadSeenTMS > 0 && e.nowMS-e.leadSeenTMS > e.staleAfterMS {
		return "stale_feed"
	}
	if e.iceberg.BlockedNear(side.Opposite(), price, e.icebergMinHidden()) {
		return "iceberg"
	}
	if side == market.SideBuy && e.lastOBI < e.cfg.MinOBILong {
		return "obi"
	}
	if side == market.SideSell && e.lastOBI > -e.cfg.MinOBIShort {
		return "obi"
	}
	if e.lastDom == nil {
		return "no_depth"
	}
	if e.lastDom.SizeAt(side, price) > e.cfg.MaxQueueSize {
		return "queue"
	}
	return ""
}

func (e *Engine) ridgeAgrees() bool {
	if !e.haveRD {
		return false
	}
	if e.spreadKF > 0 && e.spreadRD <= 0 {
		return false
	}
	if e.spreadKF < 0 && e.spreadRD >= 0 {
		return false
	}
	rdTicks := math.Abs(e.spreadRD) / e.cfg.TickSize
	return rdTicks >= 0.5*e.cfg.BaseSpreadThresholdTicks
}

// entryPrice joins the touch on the signal side; when the dislocation is
// large (beyond twice the threshold, measured on the raw point spread) it
// steps one bucket away to wait for the pullback instead.
func (e *Engine) entryPrice(side market.Side) (float64, bool) {
	if e.lastDom == nil {
		return 0, false
	}
	improve := math.Abs(e.spreadKF) > 2*e.cfg.BaseSpreadThresholdTicks
	if side == market.SideBuy {
		if e.lastDom.BestBid <= 0 {
			return 0, false
		}
		price := e.lastDom.BestBid
		if improve {
			price -= e.cfg.TickSize
		}
		return price, true
	}
	if e.lastDom.BestAsk <= 0 {
		return 0, false
	}
	price := e.lastDom.BestAsk
	if improve {
		price += e.cfg.TickSize
	}
	return price, true
}

func (e *Engine) cancelOrder(o *orderState, reason string, now int64) {
	o.phase = PhasePendingCancel
	e.met.OrdersCancelled.Inc()
	e.sink.Send(exec.OrderCommand{
		Op:       exec.OpCancel,
		Side:     o.side,
		Price:    o.price,
		ClientID: o.clientID,
		Reason:   reason,
	})
	// The executor only understands CANCEL_ALL, so a cancel takes the other
	// side's resting order with it.
	other := e.sell
	if o.side == market.SideSell {
		other = e.buy
	}
	if other.working() {
		other.phase = PhasePendingCancel
	}
	e.log.Info("order cancel requested",
		zap.Uint64("client_id", o.clientID),
		zap.String("reason", reason),
		zap.Int64("age_ms", now-o.placedTMS),
	)
}

func (e *Engine) checkRegime() {
	switch e.regime.State() {
	case micro.RegimeTripped:
		if !e.tripped {
			e.tripped = true
			e.met.RegimeTrips.Inc()
			e.log.Warn("regime tripped", zap.Float64("vol_ratio", e.regime.Ratio()))
			if e.position != 0 && !e.flattenSent {
				e.flatten()
			}
		}
	case micro.RegimeOK:
		if e.tripped {
			e.tripped = false
			e.flattenSent = false
			e.log.Info("regime restored", zap.Float64("vol_ratio", e.regime.Ratio()))
		}
	}
}

func (e *Engine) flatten() {
	e.flattenSent = true
	e.met.Flattens.Inc()
	e.sink.Send(exec.OrderCommand{Op: exec.OpCloseAll, Reason: "regime_flatten"})
	e.log.Warn("flatten emitted", zap.Float64("position", e.position))
}

func (e *Engine) slot(side market.Side) **orderState {
	if side == market.SideSell {
		return &e.sell
	}
	return &e.buy
}

func (e *Engine) icebergMinHidden() float64 {
	return e.iceberg.MinHidden()
}

// OrderInfo is a value copy of one side's resting-order slot.
type OrderInfo struct {
	ClientID uint64
	Side     market.Side
	Price    float64
	Phase    Phase
}

// Status is a value snapshot of the engine for telemetry and status reads.
type Status struct {
	FairKF   float64
	SpreadKF float64
	FairRD   float64
	SpreadRD float64
	OBI      float64
	VolRatio float64
	Regime   micro.RegimeState
	Position float64
	Warm     bool
	Buy      *OrderInfo
	Sell     *OrderInfo
}

// Status returns a snapshot of the engine's latest feature outputs and
// order register. Safe to hand out: everything is copied.
func (e *Engine) Status() Status {
	st := Status{
		FairKF:   e.fairKF,
		SpreadKF: e.spreadKF,
		FairRD:   e.fairRD,
		SpreadRD: e.spreadRD,
		OBI:      e.lastOBI,
		VolRatio: e.regime.Ratio(),
		Regime:   e.regime.State(),
		Position: e.position,
		Warm:     e.warm(),
	}
	if e.buy != nil {
		st.Buy = &OrderInfo{ClientID: e.buy.clientID, Side: e.buy.side, Price: e.buy.price, Phase: e.buy.phase}
	}
	if e.sell != nil {
		st.Sell = &OrderInfo{ClientID: e.sell.clientID, Side: e.sell.side, Price: e.sell.price, Phase: e.sell.phase}
	}
	return st
}

func (e *Engine) countModelSkips() {
	if s := e.kalman.Skips(); s > e.kfSkips {
		e.met.ModelSkips.Inc()
		e.kfSkips = s
	}
	if s := e.ridge.Skips(); s > e.rdSkips {
		e.met.ModelSkips.Inc()
		e.rdSkips = s
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
