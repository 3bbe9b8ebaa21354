package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"

	"github.com/meridianquant/meridian/internal/backtest"
	"github.com/meridianquant/meridian/internal/config"
	"github.com/meridianquant/meridian/internal/indicator"
	"github.com/meridianquant/meridian/internal/marketdata"
	"github.com/meridianquant/meridian/internal/marketdata/sqlite"
	"github.com/meridianquant/meridian/internal/strategy"
	"github.com/meridianquant/meridian/internal/sweep"
	"github.com/meridianquant/meridian/internal/telemetry"
)

var (
	symbols  = flag.String("symbols", "", "Comma-separated symbols (defaults to configured symbols)")
	interval = flag.String("interval", "", "Candle interval (defaults to configured interval)")
	dbPath   = flag.String("db", "", "SQLite candle store path")
	workers  = flag.Int("workers", 0, "Worker count (defaults to configured value)")
	topN     = flag.Int("top", 10, "Number of best cells to print")

	maGrid       = flag.String("ma-grid", "5:20,9:21,10:30,20:50", "MA crossover fast:slow pairs")
	withIchimoku = flag.Bool("ichimoku", true, "Include the Ichimoku strategy in the sweep")

	generateSample = flag.Bool("generate-sample", false, "Generate and store sample data before sweeping")
	sampleCandles  = flag.Int("sample-candles", 2000, "Candles per symbol when generating sample data")

	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	if *generateSample {
		if err := generateSampleData(ctx, store, cfg); err != nil {
			return err
		}
	}

	strategies, err := buildStrategies(cfg)
	if err != nil {
		return err
	}

	grid := sweep.Grid{
		Symbols:    cfg.Symbols,
		Interval:   cfg.Interval,
		Strategies: strategies,
		Configs:    []backtest.Config{cfg.Backtest},
	}
	cells := grid.Cells()

	metrics := telemetry.NewMetrics()
	if addr := firstNonEmpty(*metricsAddr, cfg.TelemetryAddr); addr != "" {
		serveMetrics(addr, metrics)
	}

	bar := progressbar.NewOptions(len(cells),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Sweeping parameter grid..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))

	runner := sweep.NewRunner(store,
		sweep.WithWorkers(cfg.SweepWorkers),
		sweep.WithMetrics(metrics),
		sweep.WithOnOutcome(func(sweep.Outcome) { bar.Add(1) }),
	)

	log.Printf("Running %d cells on %d workers...", len(cells), cfg.SweepWorkers)
	started := time.Now()
	outcomes, runErr := runner.Run(ctx, cells)
	bar.Finish()
	fmt.Println()
	log.Printf("Sweep finished in %s", time.Since(started).Round(time.Millisecond))

	printSummary(outcomes)

	return runErr
}

func applyFlags(cfg *config.AppConfig) {
	if *symbols != "" {
		cfg.Symbols = splitList(*symbols)
	}
	if *interval != "" {
		cfg.Interval = *interval
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *workers > 0 {
		cfg.SweepWorkers = *workers
	}
}

func generateSampleData(ctx context.Context, store *sqlite.Store, cfg *config.AppConfig) error {
	start := time.Now().Add(-time.Duration(*sampleCandles) * time.Hour).Truncate(time.Hour)
	for i, symbol := range cfg.Symbols {
		series := marketdata.GenerateSeries(symbol, cfg.Interval, start, *sampleCandles, 50000/float64(i+1))
		if err := store.SaveSeries(ctx, series); err != nil {
			return fmt.Errorf("failed to store sample data for %s: %w", symbol, err)
		}
	}
	log.Printf("Generated %d candles for %d symbols", *sampleCandles, len(cfg.Symbols))
	return nil
}

// buildStrategies expands the MA grid plus the optional Ichimoku variant.
// All strategies share one indicator cache; per-series results are reused
// across cells.
func buildStrategies(cfg *config.AppConfig) ([]strategy.Strategy, error) {
	cache := indicator.NewCache()
	var strategies []strategy.Strategy

	for _, pair := range splitList(*maGrid) {
		fast, slow, err := parsePair(pair)
		if err != nil {
			return nil, err
		}
		strat := strategy.NewMACrossover(fast, slow, cfg.Strategy.Quantity)
		strat.SetCache(cache)
		strategies = append(strategies, strat)
	}

	if *withIchimoku {
		params := indicator.IchimokuParams{
			TenkanPeriod:  cfg.Strategy.TenkanPeriod,
			KijunPeriod:   cfg.Strategy.KijunPeriod,
			SenkouBPeriod: cfg.Strategy.SenkouBPeriod,
			Displacement:  cfg.Strategy.Displacement,
		}
		strat := strategy.NewIchimokuCloud(params, cfg.Strategy.Quantity)
		strat.SetCache(cache)
		strategies = append(strategies, strat)
	}

	if len(strategies) == 0 {
		return nil, fmt.Errorf("no strategies configured")
	}
	return strategies, nil
}

func parsePair(pair string) (int, int, error) {
	parts := strings.SplitN(pair, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid MA pair %q (want fast:slow)", pair)
	}
	fast, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid fast period in %q: %w", pair, err)
	}
	slow, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid slow period in %q: %w", pair, err)
	}
	return fast, slow, nil
}

func printSummary(outcomes []sweep.Outcome) {
	var succeeded []sweep.Outcome
	var failed int
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failed++
			continue
		}
		succeeded = append(succeeded, outcome)
	}

	sort.SliceStable(succeeded, func(i, j int) bool {
		return succeeded[i].Result.TotalReturn.GreaterThan(succeeded[j].Result.TotalReturn)
	})

	fmt.Println(titleStyle.Render("SWEEP RESULTS"))
	fmt.Printf("%d cells, %d succeeded, %d failed\n\n", len(outcomes), len(succeeded), failed)

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-10s %-22s %10s %8s %10s %8s %8s",
		"SYMBOL", "STRATEGY", "RETURN", "TRADES", "WIN RATE", "MAX DD", "SHARPE")))

	limit := *topN
	if limit > len(succeeded) {
		limit = len(succeeded)
	}
	for _, outcome := range succeeded[:limit] {
		r := outcome.Result
		fmt.Printf("%-10s %-22s %9.2f%% %8d %9.2f%% %7.2f%% %8.4f\n",
			r.Symbol,
			r.Strategy,
			asPct(r.TotalReturn),
			r.TotalTrades,
			asPct(r.WinRate),
			asPct(r.MaxDrawdown),
			r.SharpeRatio.InexactFloat64(),
		)
	}

	if failed > 0 {
		fmt.Println()
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				fmt.Printf("failed: %s %s: %v\n", outcome.Cell.Symbol, outcome.Cell.Strategy.Name(), outcome.Err)
			}
		}
	}
}

func serveMetrics(addr string, metrics *telemetry.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("Serving metrics on %s/metrics", addr)
}

func asPct(fraction decimal.Decimal) float64 {
	return fraction.Mul(decimal.NewFromInt(100)).InexactFloat64()
}

func splitList(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
