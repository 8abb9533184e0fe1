// Command batch runs one valuation cycle and prints the allocated portfolio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/di"
	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	"github.com/danghungithp/chungquyen-VN/internal/usecase"
	"github.com/danghungithp/chungquyen-VN/pkg/config"
	"github.com/danghungithp/chungquyen-VN/pkg/logger"
	"github.com/danghungithp/chungquyen-VN/pkg/util"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	investment := flag.String("investment", "", "total investment (defaults to batch.total_investment)")
	symbols := flag.String("symbols", "", "comma-separated symbols (defaults to the gateway universe)")
	mode := flag.String("mode", "live", "live | snapshots | download | download-trades")
	day := flag.String("date", "", "trading day for download-trades, YYYY-MM-DD")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	p, cleanup, err := di.InitializePipeline(cfg)
	if err != nil {
		log.Fatalf("pipeline initialization failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, p, *mode, *investment, *symbols, *day)
	cancel()
	cleanup()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, p *di.Pipeline, mode, investment, symbols, day string) int {
	var universe []string
	if symbols != "" {
		universe = strings.Split(symbols, ",")
	}

	switch mode {
	case "download", "download-trades":
		return download(ctx, p, mode, universe, day)
	case "live", "snapshots":
	default:
		p.Log.Error("unknown mode", logger.String("mode", mode))
		return 2
	}

	if investment == "" {
		investment = cfg.Batch.TotalInvestment
	}
	total, err := usecase.ParseInvestment(investment)
	if err != nil {
		p.Log.Error("invalid total investment", logger.Error(err))
		return 2
	}
	amount, _ := total.Float64()

	var (
		pf     *models.Portfolio
		report *models.BatchReport
	)
	if mode == "snapshots" {
		pf, report, err = p.Runner.AnalyzeSnapshots(ctx, amount)
	} else {
		pf, report, err = p.Runner.RunBatch(ctx, universe, amount)
	}
	if report != nil {
		printFailures(os.Stdout, report)
	}
	if err != nil {
		if errors.Is(err, models.ErrAllocationUndefined) {
			p.Log.Warn("no portfolio allocated", logger.Error(err))
			return 1
		}
		p.Log.Error("batch failed", logger.Error(err))
		return 1
	}
	printPortfolio(os.Stdout, pf)

	if cfg.FX.Quote != "" && cfg.FX.Quote != cfg.FX.Base {
		v, err := p.FX.Value(ctx, pf, cfg.FX.Base, cfg.FX.Quote)
		if err != nil {
			p.Log.Warn("fx valuation unavailable", logger.Error(err))
		} else {
			fmt.Fprintf(os.Stdout, "\nValue in %s: %s (rate %s)\n", v.Quote, v.Amount.StringFixed(2), v.Rate)
		}
	}
	return 0
}

func download(ctx context.Context, p *di.Pipeline, mode string, universe []string, day string) int {
	if p.Collector == nil {
		p.Log.Error("downloads need a storage backend")
		return 2
	}
	var (
		rep *usecase.DownloadReport
		err error
	)
	if mode == "download" {
		rep, err = p.Collector.DownloadSnapshots(ctx, universe)
	} else {
		d := util.StartOfDay(time.Now())
		if day != "" {
			if d, err = util.ParseDate(day); err != nil {
				p.Log.Error("invalid date", logger.Error(err))
				return 2
			}
		}
		rep, err = p.Collector.DownloadTrades(ctx, universe, d)
	}
	if err != nil {
		p.Log.Error("download failed", logger.Error(err))
		return 1
	}
	fmt.Fprintf(os.Stdout, "saved %d, skipped %d\n", rep.Saved, len(rep.Skipped))
	return 0
}

func printPortfolio(w io.Writer, pf *models.Portfolio) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SYMBOL\tMARKET\tMC PRICE\tBS PRICE\tDELTA\tEDGE\tKELLY\tACTION\tPROFIT\tCAPITAL\t")
	for _, e := range pf.Entries {
		r := e.Result
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%s\t%.4f\t%.2f\t\n",
			e.Symbol, r.MarketPrice, r.MonteCarloPrice, r.ClosedFormPrice, r.Delta,
			r.Edge, r.SizingFraction, r.Action, r.ExpectedProfit, e.Capital)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\nTotal: %.2f %s over %d warrants\n", pf.AllocatedTotal(), pf.Currency, len(pf.Entries))
}

func printFailures(w io.Writer, r *models.BatchReport) {
	fmt.Fprintf(w, "run %s: %d evaluated, %d failed\n", r.RunID, r.Succeeded, r.Failed)
	kinds := make([]string, 0, len(r.Failures))
	for k := range r.Failures {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-22s %d\n", k, r.Failures[k])
	}
}
