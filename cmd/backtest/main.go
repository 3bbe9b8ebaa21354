package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/meridianquant/meridian/internal/backtest"
	bterrors "github.com/meridianquant/meridian/internal/backtest/errors"
	"github.com/meridianquant/meridian/internal/config"
	"github.com/meridianquant/meridian/internal/indicator"
	"github.com/meridianquant/meridian/internal/market"
	"github.com/meridianquant/meridian/internal/marketdata"
	"github.com/meridianquant/meridian/internal/marketdata/sqlite"
	"github.com/meridianquant/meridian/internal/strategy"
)

var (
	dataFile       = flag.String("data", "", "Path to CSV file with historical data")
	symbol         = flag.String("symbol", "", "Trading symbol (defaults to configured symbol)")
	interval       = flag.String("interval", "", "Candle interval (defaults to configured interval)")
	initialCapital = flag.Float64("capital", 0, "Initial capital (overrides environment)")
	commission     = flag.Float64("commission", -1, "Commission rate (e.g., 0.001 for 0.1%)")
	slippage       = flag.Float64("slippage", -1, "Slippage rate (e.g., 0.0005 for 0.05%)")

	// Strategy parameters
	strategyName = flag.String("strategy", "ma", "Strategy: ma or ichimoku")
	fastMA       = flag.Int("fast-ma", 0, "Fast MA period (ma strategy)")
	slowMA       = flag.Int("slow-ma", 0, "Slow MA period (ma strategy)")
	quantity     = flag.Float64("quantity", 0, "Order quantity")

	// Data options
	generateSample = flag.Bool("generate-sample", false, "Generate deterministic sample data instead of loading from file")
	sampleCandles  = flag.Int("sample-candles", 1000, "Number of candles to generate for sample data")
	basePrice      = flag.Float64("base-price", 50000, "Base price for generated data")
	dbPath         = flag.String("db", "", "SQLite path; when set, load from or save generated data into it")

	// Output options
	verbose = flag.Bool("verbose", false, "Show detailed trade log")
)

func main() {
	flag.Parse()
	godotenv.Load()

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cfg)

	series, err := loadSeries(cfg)
	if err != nil {
		return err
	}
	if series.Len() == 0 {
		return fmt.Errorf("%w: loaded series for %s is empty", bterrors.ErrNoMarketData, cfg.Symbols[0])
	}

	start := series.Candles[0].Timestamp
	end := series.Candles[series.Len()-1].Timestamp
	log.Printf("Loaded %d candles for %s (%s to %s)",
		series.Len(), series.Symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))

	strat, err := buildStrategy(cfg)
	if err != nil {
		return err
	}

	engine := backtest.New(cfg.Backtest, series, strat)

	tradeCount := 0
	engine.SetOnTrade(func(trade *backtest.Trade) {
		tradeCount++
		if *verbose {
			log.Printf("[Trade #%d] %s: $%s -> $%s = $%s [%s]",
				tradeCount,
				trade.Side,
				trade.EntryPrice.StringFixed(2),
				trade.ExitPrice.StringFixed(2),
				trade.PnL.StringFixed(2),
				trade.ExitReason,
			)
		}
	})

	log.Println("Running backtest...")
	started := time.Now()
	result, err := engine.Run()
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}
	log.Printf("Completed in %s", time.Since(started).Round(time.Millisecond))

	reporter := backtest.NewReporter()
	fmt.Println(reporter.GenerateReport(result))

	if *verbose && len(result.Trades) > 0 {
		fmt.Println(reporter.GenerateTradeLog(result))
	}

	return nil
}

// applyFlags overlays explicitly set flags on the environment config.
func applyFlags(cfg *config.AppConfig) {
	if *symbol != "" {
		cfg.Symbols = []string{*symbol}
	}
	if *interval != "" {
		cfg.Interval = *interval
	}
	if *initialCapital > 0 {
		cfg.Backtest.InitialCapital = decimal.NewFromFloat(*initialCapital)
	}
	if *commission >= 0 {
		cfg.Backtest.Commission = decimal.NewFromFloat(*commission)
	}
	if *slippage >= 0 {
		cfg.Backtest.Slippage = decimal.NewFromFloat(*slippage)
	}
	if *fastMA > 0 {
		cfg.Strategy.FastMAPeriod = *fastMA
	}
	if *slowMA > 0 {
		cfg.Strategy.SlowMAPeriod = *slowMA
	}
	if *quantity > 0 {
		cfg.Strategy.Quantity = decimal.NewFromFloat(*quantity)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
}

func loadSeries(cfg *config.AppConfig) (*market.Series, error) {
	sym := cfg.Symbols[0]

	switch {
	case *generateSample:
		log.Println("Generating sample data...")
		start := time.Now().Add(-time.Duration(*sampleCandles) * time.Hour).Truncate(time.Hour)
		series := marketdata.GenerateSeries(sym, cfg.Interval, start, *sampleCandles, *basePrice)
		if *dbPath != "" {
			if err := saveSeries(cfg.DatabasePath, series); err != nil {
				return nil, err
			}
		}
		return series, nil

	case *dataFile != "":
		return marketdata.NewLoader().LoadCSV(*dataFile, sym, cfg.Interval)

	case *dbPath != "":
		store, err := sqlite.Open(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Candles(context.Background(), sym, cfg.Interval)

	default:
		return nil, fmt.Errorf("one of -data, -db or -generate-sample is required")
	}
}

func saveSeries(path string, series *market.Series) error {
	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveSeries(context.Background(), series); err != nil {
		return fmt.Errorf("failed to save generated data: %w", err)
	}
	log.Printf("Saved %d candles to %s", series.Len(), path)
	return nil
}

func buildStrategy(cfg *config.AppConfig) (strategy.Strategy, error) {
	cache := indicator.NewCache()

	switch *strategyName {
	case "ma":
		strat := strategy.NewMACrossover(cfg.Strategy.FastMAPeriod, cfg.Strategy.SlowMAPeriod, cfg.Strategy.Quantity)
		strat.SetCache(cache)
		return strat, nil
	case "ichimoku":
		params := indicator.IchimokuParams{
			TenkanPeriod:  cfg.Strategy.TenkanPeriod,
			KijunPeriod:   cfg.Strategy.KijunPeriod,
			SenkouBPeriod: cfg.Strategy.SenkouBPeriod,
			Displacement:  cfg.Strategy.Displacement,
		}
		strat := strategy.NewIchimokuCloud(params, cfg.Strategy.Quantity)
		strat.SetCache(cache)
		return strat, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (want ma or ichimoku)", *strategyName)
	}
}
