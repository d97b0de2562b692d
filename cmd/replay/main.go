package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"es-maker-bot/internal/config"
	"es-maker-bot/internal/engine"
	"es-maker-bot/internal/exec"
	"es-maker-bot/internal/feed"
	"es-maker-bot/internal/journal"
	"es-maker-bot/internal/logging"
	"es-maker-bot/internal/metrics"
	"es-maker-bot/internal/micro"
	"es-maker-bot/internal/model"
)

// replay feeds recorded market data through the full decision pipeline
// without touching an executor: commands are printed instead of sent.
// Input is either a text file of raw ASCII frames (one per line) or a
// msgpack journal written by the bot.
func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	framesPath := flag.String("frames", "", "text file of raw frames, one per line")
	journalPath := flag.String("journal", "", "msgpack event journal")
	statusEvery := flag.Int("status-every", 1000, "print engine status every N events")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	eng := buildEngine(cfg)

	switch {
	case *framesPath != "":
		if err := replayFrames(cfg, eng, *framesPath, *statusEvery); err != nil {
			fatal(err)
		}
	case *journalPath != "":
		if err := replayJournal(eng, *journalPath, *statusEvery); err != nil {
			fatal(err)
		}
	default:
		fatal(errors.New("either -frames or -journal is required"))
	}

	printStatus(eng)
}

func buildEngine(cfg *config.Config) *engine.Engine {
	sink := exec.SinkFunc(func(cmd exec.OrderCommand) {
		wire, err := cmd.Wire()
		if err != nil {
			fmt.Printf("CMD <unencodable %s>: %v\n", cmd.Op, err)
			return
		}
		fmt.Printf("CMD %-24s id=%d reason=%s\n", wire, cmd.ClientID, cmd.Reason)
	})
	return engine.New(cfg.Engine, cfg.Feed.LeadSymbol, engine.Deps{
		Kalman: model.NewKalman(model.KalmanConfig{
			InitP0: cfg.Kalman.InitP0,
			QBeta:  cfg.Kalman.QBeta,
			QAlpha: cfg.Kalman.QAlpha,
			RObs:   cfg.Kalman.RObs,
		}),
		Ridge: model.NewRidge(model.RidgeConfig{
			Lambda: cfg.Ridge.Lambda,
			Alpha:  cfg.Ridge.Alpha,
			InitP0: cfg.Ridge.InitP0,
		}),
		OBI: micro.NewOBI(micro.OBIConfig{Depth: cfg.Engine.OBIDepth, Decay: cfg.Engine.OBIDecay}),
		Iceberg: micro.NewIceberg(micro.IcebergConfig{
			WindowS:   cfg.Iceberg.WindowS,
			MinHidden: cfg.Iceberg.MinHidden,
			KRatio:    cfg.Iceberg.KRatio,
			BandTicks: cfg.Iceberg.BandTicks,
			TickSize:  cfg.Engine.TickSize,
		}),
		Regime: micro.NewRegime(micro.RegimeConfig{
			SampleHz: cfg.Regime.SampleHz,
			ShortN:   cfg.Regime.ShortN,
			LongN:    cfg.Regime.LongN,
			Trip:     cfg.Regime.Trip,
			Reset:    cfg.Regime.Reset,
			CoolOffS: cfg.Regime.CoolOffS,
		}),
		Sink:    sink,
		Metrics: metrics.NewNoop(),
	})
}

func replayFrames(cfg *config.Config, eng *engine.Engine, path string, statusEvery int) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	symbols := feed.Symbols{
		Lead: cfg.Feed.LeadSymbol,
		NQ:   cfg.Feed.NQSymbol,
		YM:   cfg.Feed.YMSymbol,
		BTC:  cfg.Feed.BTCSymbol,
	}
	normalizer := feed.NewNormalizer(feed.NewCache(), eng, symbols)

	count := 0
	malformed := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		frame, err := feed.Parse(scanner.Text())
		if err != nil {
			malformed++
			continue
		}
		normalizer.Handle(frame)
		count++
		if statusEvery > 0 && count%statusEvery == 0 {
			printStatus(eng)
		}
	}
	fmt.Printf("replayed %d frames (%d malformed)\n", count, malformed)
	return scanner.Err()
}

func replayJournal(eng *engine.Engine, path string, statusEvery int) error {
	reader, err := journal.NewReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	count := 0
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch {
		case rec.Tick != nil:
			eng.OnTick(*rec.Tick)
		case rec.Dom != nil:
			eng.OnDom(*rec.Dom)
		case rec.Trade != nil:
			eng.OnTrade(*rec.Trade)
		}
		count++
		if statusEvery > 0 && count%statusEvery == 0 {
			printStatus(eng)
		}
	}
	fmt.Printf("replayed %d journal records\n", count)
	return nil
}

func printStatus(eng *engine.Engine) {
	st := eng.Status()
	fmt.Printf("status fair_kf=%.4f spread_kf=%+.4f fair_rd=%.4f spread_rd=%+.4f obi=%+.3f regime=%s ratio=%.2f pos=%.0f warm=%t\n",
		st.FairKF, st.SpreadKF, st.FairRD, st.SpreadRD, st.OBI, st.Regime, st.VolRatio, st.Position, st.Warm)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
