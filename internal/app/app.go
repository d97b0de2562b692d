package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"es-maker-bot/internal/alerts"
	"es-maker-bot/internal/config"
	"es-maker-bot/internal/engine"
	"es-maker-bot/internal/exec"
	"es-maker-bot/internal/feed"
	"es-maker-bot/internal/journal"
	"es-maker-bot/internal/market"
	"es-maker-bot/internal/metrics"
	"es-maker-bot/internal/micro"
	"es-maker-bot/internal/model"
	"es-maker-bot/internal/state"
	"es-maker-bot/internal/state/sqlite"
	"es-maker-bot/internal/timescale"

	"go.uber.org/zap"
)

const (
	drainDeadline    = 2 * time.Second
	snapshotInterval = time.Second
)

type App struct {
	cfg        *config.Config
	log        *zap.Logger
	store      *sqlite.Store
	queue      *feed.Queue
	udp        *feed.UDPListener
	ws         *feed.WSListener
	normalizer *feed.Normalizer
	engine     *engine.Engine
	sink       *exec.UDPSink
	met        *metrics.Metrics
	prom       *metrics.Prometheus
	timescale  *timescale.Writer
	journal    *journal.Writer
	alerts     *alerts.Telegram

	lastSignalSnap time.Time
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	met := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		met = prom.Metrics
	}

	udpSink, err := exec.NewUDPSink(cfg.Exec.UDPAddr, met.SendFailures, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	tsWriter, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		log.Warn("timescale writer disabled", zap.Error(err))
	}

	var journalWriter *journal.Writer
	if cfg.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			log.Warn("journal directory create failed", zap.Error(err))
		} else if journalWriter, err = journal.NewWriter(cfg.Journal.Path); err != nil {
			log.Warn("journal disabled", zap.Error(err))
		}
	}

	alertsClient := alerts.NewTelegram(cfg.Telegram, log)

	obiCfg := micro.OBIConfig{Depth: cfg.Engine.OBIDepth, Decay: cfg.Engine.OBIDecay}
	icebergCfg := micro.IcebergConfig{
		WindowS:   cfg.Iceberg.WindowS,
		MinHidden: cfg.Iceberg.MinHidden,
		KRatio:    cfg.Iceberg.KRatio,
		BandTicks: cfg.Iceberg.BandTicks,
		TickSize:  cfg.Engine.TickSize,
	}
	regimeCfg := micro.RegimeConfig{
		SampleHz: cfg.Regime.SampleHz,
		ShortN:   cfg.Regime.ShortN,
		LongN:    cfg.Regime.LongN,
		Trip:     cfg.Regime.Trip,
		Reset:    cfg.Regime.Reset,
		CoolOffS: cfg.Regime.CoolOffS,
	}
	kalmanCfg := model.KalmanConfig{
		InitP0: cfg.Kalman.InitP0,
		QBeta:  cfg.Kalman.QBeta,
		QAlpha: cfg.Kalman.QAlpha,
		RObs:   cfg.Kalman.RObs,
	}
	ridgeCfg := model.RidgeConfig{
		Lambda: cfg.Ridge.Lambda,
		Alpha:  cfg.Ridge.Alpha,
		InitP0: cfg.Ridge.InitP0,
	}

	app := &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		sink:      udpSink,
		met:       met,
		prom:      prom,
		timescale: tsWriter,
		journal:   journalWriter,
		alerts:    alertsClient,
	}

	eng := engine.New(cfg.Engine, cfg.Feed.LeadSymbol, engine.Deps{
		Kalman:  model.NewKalman(kalmanCfg),
		Ridge:   model.NewRidge(ridgeCfg),
		OBI:     micro.NewOBI(obiCfg),
		Iceberg: micro.NewIceberg(icebergCfg),
		Regime:  micro.NewRegime(regimeCfg),
		Sink:    app.recordingSink(),
		Metrics: met,
		Log:     log,
	})
	eng.SetStaleAfterMS(cfg.Feed.StaleAfter.Milliseconds())
	app.engine = eng

	queue := feed.NewQueue(cfg.Feed.QueueSize, met.FramesDropped)
	app.queue = queue
	app.udp = feed.NewUDPListener(cfg.Feed.UDPAddr, queue, met.FramesMalformed, log)
	if cfg.Feed.WSURL != "" {
		app.ws = feed.NewWSListener(cfg.Feed.WSURL, cfg.Feed.ReconnectDelay, queue, met.FramesMalformed, log)
	}

	symbols := feed.Symbols{
		Lead: cfg.Feed.LeadSymbol,
		NQ:   cfg.Feed.NQSymbol,
		YM:   cfg.Feed.YMSymbol,
		BTC:  cfg.Feed.BTCSymbol,
	}
	app.normalizer = feed.NewNormalizer(feed.NewCache(), app.journalingHandler(eng), symbols)

	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if snap, ok, err := state.LoadEngineSnapshot(ctx, a.store); err != nil {
		a.log.Warn("engine snapshot load failed", zap.Error(err))
	} else if ok {
		a.engine.RestoreClientID(snap.LastClientID)
		a.log.Info("engine snapshot restored",
			zap.Uint64("last_client_id", snap.LastClientID),
			zap.Float64("position", snap.Position),
		)
	}

	a.timescale.Start(ctx)
	a.startMetricsServer(ctx)

	go func() {
		if err := a.udp.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.Error("udp listener failed", zap.Error(err))
		}
	}()
	if a.ws != nil {
		go func() {
			if err := a.ws.Run(ctx); err != nil && ctx.Err() == nil {
				a.log.Error("ws listener failed", zap.Error(err))
			}
		}()
	}
	go func() {
		<-ctx.Done()
		a.queue.Close()
	}()

	a.log.Info("engine loop started",
		zap.String("lead", a.cfg.Feed.LeadSymbol),
		zap.String("feed", a.cfg.Feed.UDPAddr),
		zap.String("exec", a.cfg.Exec.UDPAddr),
	)

	for {
		frame, ok := a.queue.Pop()
		if !ok {
			break
		}
		a.normalizer.Handle(frame)
		a.maybeSnapshotSignal()
		if ctx.Err() != nil {
			break
		}
	}

	a.drain()

	if a.cfg.Exec.FlattenOnExit {
		a.sink.Send(exec.OrderCommand{Op: exec.OpCloseAll, Reason: "shutdown"})
	}
	a.saveSnapshot()
	return ctx.Err()
}

// drain processes whatever arrived between shutdown and queue close, with a
// hard deadline so exit never hangs on a burst.
func (a *App) drain() {
	deadline := time.Now().Add(drainDeadline)
	for time.Now().Before(deadline) {
		frame, ok := a.queue.TryPop()
		if !ok {
			return
		}
		a.normalizer.Handle(frame)
	}
}

func (a *App) saveSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap := state.EngineSnapshot{
		LastClientID: a.engine.ClientID(),
		Position:     a.engine.Position(),
		UpdatedAtMS:  time.Now().UnixMilli(),
	}
	if err := state.SaveEngineSnapshot(ctx, a.store, snap); err != nil {
		a.log.Warn("engine snapshot save failed", zap.Error(err))
	}
}

func (a *App) startMetricsServer(ctx context.Context) {
	if a.prom == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

// recordingSink forwards commands to the UDP executor and mirrors them into
// telemetry and operator alerts.
func (a *App) recordingSink() exec.Sink {
	return exec.SinkFunc(func(cmd exec.OrderCommand) {
		a.sink.Send(cmd)
		a.timescale.EnqueueOrder(timescale.OrderEvent{
			Time:     time.Now().UTC(),
			Op:       string(cmd.Op),
			Side:     string(cmd.Side),
			Price:    cmd.Price,
			ClientID: int64(cmd.ClientID),
			Reason:   cmd.Reason,
		})
		if cmd.Op == exec.OpCloseAll {
			go a.notify("flatten emitted: " + cmd.Reason)
		}
	})
}

func (a *App) notify(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.alerts.Send(ctx, message); err != nil {
		a.log.Warn("alert send failed", zap.Error(err))
	}
}

func (a *App) maybeSnapshotSignal() {
	if a.timescale == nil {
		return
	}
	now := time.Now()
	if now.Sub(a.lastSignalSnap) < snapshotInterval {
		return
	}
	a.lastSignalSnap = now
	st := a.engine.Status()
	a.timescale.EnqueueSignal(timescale.SignalSnapshot{
		Time:        now.UTC(),
		ES:          a.normalizer.Cache().LastPrice(a.cfg.Feed.LeadSymbol),
		FairKF:      st.FairKF,
		SpreadKF:    st.SpreadKF,
		FairRidge:   st.FairRD,
		SpreadRidge: st.SpreadRD,
		OBI:         st.OBI,
		VolRatio:    st.VolRatio,
		Regime:      string(st.Regime),
		Position:    st.Position,
		Warm:        st.Warm,
	})
}

// journalingHandler tees normalized events into the msgpack journal before
// the engine sees them. Journal failures never touch the hot path outcome.
func (a *App) journalingHandler(inner feed.Handler) feed.Handler {
	if a.journal == nil {
		return inner
	}
	return &journalingHandler{inner: inner, journal: a.journal, log: a.log}
}

type journalingHandler struct {
	inner   feed.Handler
	journal *journal.Writer
	log     *zap.Logger
	failed  bool
}

func (h *journalingHandler) append(rec journal.Record) {
	if err := h.journal.Append(rec); err != nil && !h.failed {
		h.failed = true
		h.log.Warn("journal append failed", zap.Error(err))
	}
}

func (h *journalingHandler) OnTick(tick market.TickEvent) {
	h.append(journal.Record{Kind: journal.KindTick, TMS: tick.TMS, Tick: &tick})
	h.inner.OnTick(tick)
}

func (h *journalingHandler) OnDom(dom market.DomSnapshot) {
	h.append(journal.Record{Kind: journal.KindDom, TMS: dom.TMS, Dom: &dom})
	h.inner.OnDom(dom)
}

func (h *journalingHandler) OnTrade(trade market.TradeEvent) {
	h.append(journal.Record{Kind: journal.KindTrade, TMS: trade.TMS, Trade: &trade})
	h.inner.OnTrade(trade)
}

func (h *journalingHandler) OnPosition(symbol string, volume float64) {
	h.inner.OnPosition(symbol, volume)
}

func (h *journalingHandler) OnMonitoredLimit(symbol string, price float64) {
	h.inner.OnMonitoredLimit(symbol, price)
}

func (h *journalingHandler) OnHeartbeat(symbol string, tms int64) {
	h.inner.OnHeartbeat(symbol, tms)
}

func (a *App) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn("journal close failed", zap.Error(err))
		}
	}
	if err := a.timescale.Close(); err != nil {
		a.log.Warn("timescale close failed", zap.Error(err))
	}
	if err := a.sink.Close(); err != nil {
		a.log.Warn("sink close failed", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", zap.Error(err))
	}
}
