package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"es-maker-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// SignalSnapshot is one row of decision-pipeline telemetry: both model
// outputs plus the feature values the gates saw.
type SignalSnapshot struct {
	Time        time.Time
	ES          float64
	FairKF      float64
	SpreadKF    float64
	FairRidge   float64
	SpreadRidge float64
	OBI         float64
	VolRatio    float64
	Regime      string
	Position    float64
	Warm        bool
}

// OrderEvent is one emitted order command.
type OrderEvent struct {
	Time     time.Time
	Op       string
	Side     string
	Price    float64
	ClientID int64
	Reason   string
}

// Writer streams telemetry into TimescaleDB off the hot path. Queues are
// bounded; overflow drops the row and bumps a counter.
type Writer struct {
	db         *sql.DB
	log        *zap.Logger
	schema     string
	signals    chan SignalSnapshot
	orders     chan OrderEvent
	started    atomic.Bool
	dropSignal atomic.Uint64
	dropOrder  atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:      db,
		log:     log,
		schema:  schema,
		signals: make(chan SignalSnapshot, queueSize),
		orders:  make(chan OrderEvent, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueSignal(snap SignalSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.signals <- snap:
	default:
		if w.dropSignal.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale signal queue full")
		}
	}
}

func (w *Writer) EnqueueOrder(event OrderEvent) {
	if w == nil {
		return
	}
	select {
	case w.orders <- event:
	default:
		if w.dropOrder.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale order queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-w.signals:
			w.writeSignal(ctx, snap)
		case event := <-w.orders:
			w.writeOrder(ctx, event)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		es DOUBLE PRECISION NOT NULL,
		fair_kf DOUBLE PRECISION NOT NULL,
		spread_kf DOUBLE PRECISION NOT NULL,
		fair_ridge DOUBLE PRECISION NOT NULL,
		spread_ridge DOUBLE PRECISION NOT NULL,
		obi DOUBLE PRECISION NOT NULL,
		vol_ratio DOUBLE PRECISION NOT NULL,
		regime TEXT NOT NULL,
		position DOUBLE PRECISION NOT NULL,
		warm BOOLEAN NOT NULL
	)`, w.table("signal_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		op TEXT NOT NULL,
		side TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		client_id BIGINT NOT NULL,
		reason TEXT NOT NULL
	)`, w.table("order_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	for _, table := range []string{"signal_snapshots", "order_events"} {
		query := fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(table))
		if err := w.exec(ctx, query); err != nil && w.log != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", table), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeSignal(ctx context.Context, snap SignalSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, es, fair_kf, spread_kf, fair_ridge, spread_ridge, obi, vol_ratio, regime, position, warm
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, w.table("signal_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		snap.ES,
		snap.FairKF,
		snap.SpreadKF,
		snap.FairRidge,
		snap.SpreadRidge,
		snap.OBI,
		snap.VolRatio,
		snap.Regime,
		snap.Position,
		snap.Warm,
	); err != nil && w.log != nil {
		w.log.Warn("timescale signal insert failed", zap.Error(err))
	}
}

func (w *Writer) writeOrder(ctx context.Context, event OrderEvent) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, op, side, price, client_id, reason
	) VALUES ($1,$2,$3,$4,$5,$6)`, w.table("order_events"))
	if _, err := w.db.ExecContext(ctx, query,
		event.Time,
		event.Op,
		event.Side,
		event.Price,
		event.ClientID,
		event.Reason,
	); err != nil && w.log != nil {
		w.log.Warn("timescale order insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
