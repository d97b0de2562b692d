package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Feed      FeedConfig      `yaml:"feed"`
	Exec      ExecConfig      `yaml:"exec"`
	Engine    EngineConfig    `yaml:"engine"`
	Kalman    KalmanConfig    `yaml:"kalman"`
	Ridge     RidgeConfig     `yaml:"ridge"`
	Iceberg   IcebergConfig   `yaml:"iceberg"`
	Regime    RegimeConfig    `yaml:"regime"`
	State     StateConfig     `yaml:"state"`
	Journal   JournalConfig   `yaml:"journal"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type FeedConfig struct {
	UDPAddr        string        `yaml:"udp_addr"`
	WSURL          string        `yaml:"ws_url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	QueueSize      int           `yaml:"queue_size"`
	LeadSymbol     string        `yaml:"lead_symbol"`
	NQSymbol       string        `yaml:"nq_symbol"`
	YMSymbol       string        `yaml:"ym_symbol"`
	BTCSymbol      string        `yaml:"btc_symbol"`
	StaleAfter     time.Duration `yaml:"stale_after"`
}

type ExecConfig struct {
	UDPAddr       string `yaml:"udp_addr"`
	FlattenOnExit bool   `yaml:"flatten_on_exit"`
}

type EngineConfig struct {
	TickSize                 float64 `yaml:"tick_size"`
	BaseSpreadThresholdTicks float64 `yaml:"base_spread_threshold_ticks"`
	RequireRidgeAgreement    bool    `yaml:"require_ridge_agreement"`
	MinOBILong               float64 `yaml:"min_obi_long"`
	MinOBIShort              float64 `yaml:"min_obi_short"`
	OBIDepth                 int     `yaml:"obi_depth"`
	OBIDecay                 float64 `yaml:"obi_decay"`
	MaxQueueSize             float64 `yaml:"max_queue_size"`
	CancelTimeoutMS          int64   `yaml:"cancel_timeout_ms"`
	RepriceHysteresisTicks   float64 `yaml:"reprice_hysteresis_ticks"`
	InvalidationMS           int64   `yaml:"invalidation_ms"`
	WarmupUpdates            int     `yaml:"warmup_updates"`
	MaxModifyRetries         int     `yaml:"max_modify_retries"`
	OrderQty                 int     `yaml:"order_qty"`
}

type KalmanConfig struct {
	InitP0 float64 `yaml:"init_p0"`
	QBeta  float64 `yaml:"q_beta"`
	QAlpha float64 `yaml:"q_alpha"`
	RObs   float64 `yaml:"r_obs"`
}

type RidgeConfig struct {
	Lambda float64 `yaml:"lambda"`
	Alpha  float64 `yaml:"alpha"`
	InitP0 float64 `yaml:"init_p0"`
}

type IcebergConfig struct {
	WindowS   float64 `yaml:"window_s"`
	MinHidden float64 `yaml:"min_hidden"`
	KRatio    float64 `yaml:"k_ratio"`
	BandTicks int     `yaml:"band_ticks"`
}

type RegimeConfig struct {
	SampleHz float64 `yaml:"sample_hz"`
	ShortN   int     `yaml:"short_n"`
	LongN    int     `yaml:"long_n"`
	Trip     float64 `yaml:"trip"`
	Reset    float64 `yaml:"reset"`
	CoolOffS float64 `yaml:"cool_off_s"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Feed.UDPAddr == "" {
		cfg.Feed.UDPAddr = "0.0.0.0:5555"
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = 3 * time.Second
	}
	if cfg.Feed.QueueSize == 0 {
		cfg.Feed.QueueSize = 8192
	}
	if cfg.Feed.LeadSymbol == "" {
		cfg.Feed.LeadSymbol = "ES"
	}
	if cfg.Feed.NQSymbol == "" {
		cfg.Feed.NQSymbol = "NQ"
	}
	if cfg.Feed.YMSymbol == "" {
		cfg.Feed.YMSymbol = "YM"
	}
	if cfg.Feed.BTCSymbol == "" {
		cfg.Feed.BTCSymbol = "BTC"
	}
	if cfg.Feed.StaleAfter == 0 {
		cfg.Feed.StaleAfter = 5 * time.Second
	}
	if cfg.Exec.UDPAddr == "" {
		cfg.Exec.UDPAddr = "127.0.0.1:6666"
	}
	if cfg.Engine.TickSize == 0 {
		cfg.Engine.TickSize = 0.25
	}
	if cfg.Engine.BaseSpreadThresholdTicks == 0 {
		cfg.Engine.BaseSpreadThresholdTicks = 0.5
	}
	if cfg.Engine.MinOBILong == 0 {
		cfg.Engine.MinOBILong = 0.1
	}
	if cfg.Engine.MinOBIShort == 0 {
		cfg.Engine.MinOBIShort = 0.1
	}
	if cfg.Engine.OBIDepth == 0 {
		cfg.Engine.OBIDepth = 10
	}
	if cfg.Engine.OBIDecay == 0 {
		cfg.Engine.OBIDecay = 0.5
	}
	if cfg.Engine.MaxQueueSize == 0 {
		cfg.Engine.MaxQueueSize = 300
	}
	if cfg.Engine.CancelTimeoutMS == 0 {
		cfg.Engine.CancelTimeoutMS = 3000
	}
	if cfg.Engine.RepriceHysteresisTicks == 0 {
		cfg.Engine.RepriceHysteresisTicks = 1
	}
	if cfg.Engine.InvalidationMS == 0 {
		cfg.Engine.InvalidationMS = 500
	}
	if cfg.Engine.WarmupUpdates == 0 {
		cfg.Engine.WarmupUpdates = 200
	}
	if cfg.Engine.MaxModifyRetries == 0 {
		cfg.Engine.MaxModifyRetries = 3
	}
	if cfg.Engine.OrderQty == 0 {
		cfg.Engine.OrderQty = 1
	}
	if cfg.Kalman.InitP0 == 0 {
		cfg.Kalman.InitP0 = 100.0
	}
	if cfg.Kalman.QBeta == 0 {
		cfg.Kalman.QBeta = 1e-12
	}
	if cfg.Kalman.QAlpha == 0 {
		cfg.Kalman.QAlpha = 1e-6
	}
	if cfg.Kalman.RObs == 0 {
		cfg.Kalman.RObs = 100.0
	}
	if cfg.Ridge.Lambda == 0 {
		cfg.Ridge.Lambda = 0.995
	}
	if cfg.Ridge.Alpha == 0 {
		cfg.Ridge.Alpha = 1e-4
	}
	if cfg.Ridge.InitP0 == 0 {
		cfg.Ridge.InitP0 = 100.0
	}
	if cfg.Iceberg.WindowS == 0 {
		cfg.Iceberg.WindowS = 5
	}
	if cfg.Iceberg.MinHidden == 0 {
		cfg.Iceberg.MinHidden = 200
	}
	if cfg.Iceberg.KRatio == 0 {
		cfg.Iceberg.KRatio = 1.5
	}
	if cfg.Iceberg.BandTicks == 0 {
		cfg.Iceberg.BandTicks = 3
	}
	if cfg.Regime.SampleHz == 0 {
		cfg.Regime.SampleHz = 1
	}
	if cfg.Regime.ShortN == 0 {
		cfg.Regime.ShortN = 60
	}
	if cfg.Regime.LongN == 0 {
		cfg.Regime.LongN = 600
	}
	if cfg.Regime.Trip == 0 {
		cfg.Regime.Trip = 3.0
	}
	if cfg.Regime.Reset == 0 {
		cfg.Regime.Reset = 2.0
	}
	if cfg.Regime.CoolOffS == 0 {
		cfg.Regime.CoolOffS = 30
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/es-maker-bot.db"
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = "data/events.journal"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = "127.0.0.1:9091"
	}
}

func validate(cfg *Config) error {
	if cfg.Engine.TickSize <= 0 {
		return errors.New("engine.tick_size must be > 0")
	}
	if cfg.Engine.BaseSpreadThresholdTicks < 0 {
		return errors.New("engine.base_spread_threshold_ticks must be >= 0")
	}
	if cfg.Engine.OBIDecay <= 0 || cfg.Engine.OBIDecay > 1 {
		return errors.New("engine.obi_decay must be in (0, 1]")
	}
	if cfg.Engine.OBIDepth <= 0 {
		return errors.New("engine.obi_depth must be > 0")
	}
	if cfg.Engine.MinOBILong < -1 || cfg.Engine.MinOBILong > 1 {
		return errors.New("engine.min_obi_long must be in [-1, 1]")
	}
	if cfg.Engine.MinOBIShort < -1 || cfg.Engine.MinOBIShort > 1 {
		return errors.New("engine.min_obi_short must be in [-1, 1]")
	}
	if cfg.Engine.MaxQueueSize < 0 {
		return errors.New("engine.max_queue_size must be >= 0")
	}
	if cfg.Engine.CancelTimeoutMS <= 0 {
		return errors.New("engine.cancel_timeout_ms must be > 0")
	}
	if cfg.Engine.WarmupUpdates < 0 {
		return errors.New("engine.warmup_updates must be >= 0")
	}
	if cfg.Engine.OrderQty <= 0 {
		return errors.New("engine.order_qty must be > 0")
	}
	if cfg.Kalman.InitP0 <= 0 || cfg.Kalman.QBeta <= 0 || cfg.Kalman.QAlpha <= 0 || cfg.Kalman.RObs <= 0 {
		return errors.New("kalman parameters must be > 0")
	}
	if cfg.Ridge.Lambda < 0.99 || cfg.Ridge.Lambda > 0.999 {
		return fmt.Errorf("ridge.lambda %v outside [0.99, 0.999]", cfg.Ridge.Lambda)
	}
	if cfg.Ridge.Alpha < 1e-5 || cfg.Ridge.Alpha > 1e-2 {
		return fmt.Errorf("ridge.alpha %v outside [1e-5, 1e-2]", cfg.Ridge.Alpha)
	}
	if cfg.Iceberg.WindowS <= 0 {
		return errors.New("iceberg.window_s must be > 0")
	}
	if cfg.Iceberg.KRatio <= 0 {
		return errors.New("iceberg.k_ratio must be > 0")
	}
	if cfg.Iceberg.BandTicks <= 0 {
		return errors.New("iceberg.band_ticks must be > 0")
	}
	if cfg.Regime.SampleHz <= 0 || cfg.Regime.SampleHz > 1 {
		return errors.New("regime.sample_hz must be in (0, 1]")
	}
	if cfg.Regime.ShortN < 2 {
		return errors.New("regime.short_n must be >= 2")
	}
	if cfg.Regime.LongN <= cfg.Regime.ShortN {
		return errors.New("regime.long_n must be > regime.short_n")
	}
	if cfg.Regime.Trip <= cfg.Regime.Reset {
		return errors.New("regime.trip must be > regime.reset")
	}
	if cfg.Regime.Reset <= 0 {
		return errors.New("regime.reset must be > 0")
	}
	if cfg.Regime.CoolOffS < 0 {
		return errors.New("regime.cool_off_s must be >= 0")
	}
	if cfg.Timescale.Enabled && cfg.Timescale.DSN == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}
