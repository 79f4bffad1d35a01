package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"signalml/internal/backtest"
	"signalml/internal/cfg"
	"signalml/internal/ml"
	"signalml/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		symbol          = flag.String("symbol", "BTCUSDT", "Trading symbol")
		timeframe       = flag.String("timeframe", "5m", "Candle timeframe")
		horizon         = flag.String("horizon", "15m", "Prediction horizon")
		dataPath        = flag.String("data-path", "./data/training", "Training export directory")
		modelPath       = flag.String("model", cfg.DefaultBundlePath, "Path to the model bundle")
		days            = flag.Int("days", 7, "Trailing window in days (0 keeps everything)")
		feeBps          = flag.Float64("fee-bps", 7.5, "Taker fee in basis points")
		slippageBps     = flag.Float64("slippage-bps", 5, "Slippage in basis points")
		fundingBps      = flag.Float64("funding-bps", 1, "Funding cost in basis points")
		assertPrecision = flag.Float64("assert-precision", 0.8, "Minimum acceptable weighted precision")
		synthetic       = flag.Bool("synthetic", false, "Use a synthetic dataset instead of a file")
		resultsPath     = flag.String("results-path", cfg.DefaultResultsPath, "Results output directory")
		historyPath     = flag.String("history-path", "", "Optional store directory for run history")
		logLevel        = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fmt.Println("=== Backtest Configuration ===")
	fmt.Printf("Symbol: %s  Timeframe: %s  Horizon: %s\n", *symbol, *timeframe, *horizon)
	fmt.Printf("Model: %s\n", *modelPath)
	fmt.Printf("Window: %d days\n", *days)
	fmt.Printf("Costs: fee %.1f bps, slippage %.1f bps, funding %.1f bps\n", *feeBps, *slippageBps, *fundingBps)
	fmt.Printf("Precision bar: %.2f\n", *assertPrecision)
	fmt.Println("==============================")

	ds := resolveDataset(*dataPath, *symbol, *timeframe, *horizon, *synthetic)
	ds = ds.TrailingDays(*days)
	if len(ds.Rows) == 0 {
		log.Fatal().Msg("no rows in the selected window")
	}

	var store *storage.Store
	if *historyPath != "" {
		store, err = storage.New(*historyPath)
		if err != nil {
			log.Warn().Err(err).Msg("history store unavailable, continuing without it")
		} else {
			defer store.Close()
		}
	}

	registry := ml.NewRegistry(0, nil)
	predictor := ml.NewPredictor(nil)
	costs := backtest.Costs{FeeBps: *feeBps, SlippageBps: *slippageBps, FundingBps: *fundingBps}

	summary, err := backtest.Run(registry, predictor, *modelPath, ds, costs)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}

	reporter := backtest.NewReporter(*resultsPath, store)
	if _, err := reporter.Write(summary); err != nil {
		log.Error().Err(err).Msg("failed to write report")
	}
	reporter.PrintSummary(summary)

	if err := summary.CheckPrecision(*assertPrecision); err != nil {
		var regression *backtest.PrecisionRegressionError
		if errors.As(err, &regression) {
			log.Error().
				Float64("precision", regression.Precision).
				Float64("threshold", regression.Threshold).
				Msg("model failed its acceptance bar, do not promote")
		}
		os.Exit(1)
	}

	log.Info().Float64("precision", summary.Precision).Msg("backtest passed the acceptance bar")
}

// resolveDataset loads the conventional export for the run, falling
// back to the deterministic synthetic dataset when asked to or when no
// file exists.
func resolveDataset(dataPath, symbol, timeframe, horizon string, forceSynthetic bool) *backtest.Dataset {
	if !forceSynthetic {
		path := backtest.DatasetPath(dataPath, symbol, timeframe, horizon)
		if _, err := os.Stat(path); err == nil {
			ds, err := backtest.LoadCSV(path)
			if err != nil {
				log.Fatal().Err(err).Str("file", path).Msg("failed to load dataset")
			}
			return ds
		}
		log.Warn().Str("path", path).Msg("dataset file missing, generating synthetic data")
	}

	minutes := 15.0
	if d, err := parseHorizonMinutes(horizon); err == nil {
		minutes = d
	}
	return backtest.Synthetic(symbol, timeframe, minutes, 2000)
}

func parseHorizonMinutes(horizon string) (float64, error) {
	var n float64
	var unit string
	if _, err := fmt.Sscanf(horizon, "%f%s", &n, &unit); err != nil {
		return 0, err
	}
	switch unit {
	case "m":
		return n, nil
	case "h":
		return n * 60, nil
	default:
		return 0, fmt.Errorf("unknown horizon unit %q", unit)
	}
}
