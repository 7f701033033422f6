package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"odin/src/config"
	"odin/src/feed"
	"odin/src/jobs"
	"odin/src/market"
	"odin/src/server"
	"odin/src/sim"
	"odin/src/storage"
	"odin/src/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("odin ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "backtest":
		err = cmdBacktest(os.Args[2:])
	case "serve":
		err = cmdServe(os.Args[2:])
	case "strategies":
		err = cmdStrategies()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: odin <command> [flags]

commands:
  backtest    run one simulation and print the result
  serve       start the HTTP API
  strategies  list available strategies`)
}

// dataSource builds the configured candle provider.
func dataSource(cfg *config.Config) server.MarketData {
	if cfg.Backtest.DataSource == "rest" {
		return feed.NewClient(cfg.Market.HTTPURL, 10*time.Second)
	}
	return feed.NewSynthetic(cfg.Backtest.Seed)
}

// ==================== backtest ====================

func cmdBacktest(args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	var (
		strategyID = fs.String("strategy", "momentum_v1", "strategy id (see `odin strategies`)")
		startStr   = fs.String("start", "", "window start, RFC3339 or 2006-01-02 (default: 60 days ago)")
		endStr     = fs.String("end", "", "window end (default: now)")
		capital    = fs.Float64("capital", 0, "initial capital (default: from config)")
		timeframe  = fs.String("timeframe", "", "candle timeframe (default: from config)")
		csvPath    = fs.String("csv", "", "load candles from a CSV file instead of the data source")
		exportPath = fs.String("export", "", "write the full result as JSON to this path")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *capital <= 0 {
		*capital = cfg.Backtest.InitialCapital
	}
	if *timeframe == "" {
		*timeframe = cfg.Market.Timeframe
	}

	end := time.Now()
	if *endStr != "" {
		if end, err = parseDate(*endStr); err != nil {
			return fmt.Errorf("-end: %w", err)
		}
	}
	start := end.AddDate(0, 0, -60)
	if *startStr != "" {
		if start, err = parseDate(*startStr); err != nil {
			return fmt.Errorf("-start: %w", err)
		}
	}

	policy, err := strategy.New(*strategyID)
	if err != nil {
		return err
	}

	var series market.Series
	if *csvPath != "" {
		series, err = storage.LoadCandlesCSV(*csvPath)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		series, err = dataSource(cfg).Candles(ctx, cfg.Market.Symbol, *timeframe, start, end)
	}
	if err != nil {
		return err
	}

	engine := sim.New(sim.Config{
		Symbol:        cfg.Market.Symbol,
		Annualization: market.AnnualizationFactor(*timeframe),
	})
	result, err := engine.Run(context.Background(), policy, series, *capital)
	if err != nil {
		return err
	}

	printResult(policy, result)

	if *exportPath != "" {
		b, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(*exportPath, b, 0o644); err != nil {
			return err
		}
		log.Printf("result written to %s", *exportPath)
	}
	return nil
}

func printResult(policy strategy.Policy, r *sim.Result) {
	s := r.Summary
	fmt.Printf("strategy:        %s\n", policy.Name())
	fmt.Printf("initial capital: %.2f\n", s.InitialCapital)
	fmt.Printf("final capital:   %.2f\n", s.FinalCapital)
	fmt.Printf("total return:    %.2f%%\n", s.TotalReturnPct)
	fmt.Printf("trades:          %d (%d wins, %.1f%% win rate)\n", s.TotalTrades, s.WinningTrades, s.WinRatePct)
	fmt.Printf("total pnl:       %.2f\n", s.TotalPnL)
	fmt.Printf("max drawdown:    %.2f%%\n", s.MaxDrawdownPct)
	fmt.Printf("sharpe:          %.3f\n", r.Statistics.SharpeRatio)
	fmt.Printf("profit factor:   %.3f\n", r.Statistics.ProfitFactor)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// ==================== serve ====================

// resultSink appends finished jobs to the rotating result log.
type resultSink struct {
	logger *storage.ResultLogger
}

func (s resultSink) JobFinished(job jobs.Job) {
	if err := s.logger.Append(job); err != nil {
		log.Printf("result log append failed: %v", err)
	}
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "listen address (default: from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		return err
	}

	logger := storage.NewResultLogger(storage.LogConfig{
		DataDir:     cfg.App.DataDir,
		Filename:    "results.jsonl",
		RotateDaily: true,
	})
	defer logger.Close()

	data := dataSource(cfg)
	store := jobs.NewStore(data, cfg.Market.Symbol, resultSink{logger})
	defer store.Close()

	srv := server.New(server.Config{
		Addr:      cfg.Server.Addr,
		Symbol:    cfg.Market.Symbol,
		Timeframe: cfg.Market.Timeframe,
	}, data, store)

	// In rest mode keep a websocket ticker stream open so live snapshots
	// carry the last exchange tick.
	if cfg.Backtest.DataSource == "rest" {
		stream := feed.NewStream(cfg.Market.WSURL, nil)
		if err := stream.Subscribe([]string{cfg.Market.Symbol}); err != nil {
			log.Printf("live ticker stream unavailable: %v", err)
		} else {
			defer stream.Close()
			srv.AttachLive(stream)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("serving %s (%s, source=%s, data dir=%s)",
		cfg.Market.Symbol, cfg.Market.Timeframe, cfg.Backtest.DataSource, filepath.Clean(cfg.App.DataDir))
	return srv.Run(ctx)
}

// ==================== strategies ====================

func cmdStrategies() error {
	for _, info := range strategy.List() {
		fmt.Printf("%-24s %s\n", info.ID, info.Name)
		fmt.Printf("    %s\n", info.Description)
	}
	return nil
}
