package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"StockSentinel/internal/analyzer"
	"StockSentinel/internal/config"
	"StockSentinel/internal/coordinator"
	"StockSentinel/internal/model"
	"StockSentinel/internal/notifier"
	"StockSentinel/internal/orchestrator"
	"StockSentinel/internal/provider"
	"StockSentinel/internal/scheduler"
	"StockSentinel/internal/store"
)

var (
	flagConfig    string
	flagCodes     []string
	flagWorkers   int
	flagForce     bool
	flagFetchOnly bool
	flagNoNotify  bool
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	root := &cobra.Command{
		Use:   "sentinel",
		Short: "Multi-source A-share daily data pipeline",
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "configs/config.yaml", "path to config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and exit",
		RunE:  runOnce,
	}
	runCmd.Flags().StringSliceVar(&flagCodes, "codes", nil, "instrument codes, overriding the configured universe")
	runCmd.Flags().IntVar(&flagWorkers, "workers", 0, "worker count, overriding the configured value")
	runCmd.Flags().BoolVar(&flagForce, "force", false, "refetch even when today's data is already stored")
	runCmd.Flags().BoolVar(&flagFetchOnly, "fetch-only", false, "persist raw records without enrichment or scoring")
	runCmd.Flags().BoolVar(&flagNoNotify, "no-notify", false, "suppress webhook notifications")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on the configured cron schedule",
		RunE:  runScheduled,
	}

	root.AddCommand(runCmd, scheduleCmd)
	if err := root.Execute(); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
}

// pipeline holds the wired application.
type pipeline struct {
	cfg   *config.Config
	store *store.Store
	orch  *orchestrator.Orchestrator
	note  notifier.Notifier
	codes []string
}

func buildPipeline() (*pipeline, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if len(flagCodes) > 0 {
		cfg.Stocks = flagCodes
	}
	if flagWorkers > 0 {
		cfg.Pipeline.Workers = flagWorkers
	}
	if flagFetchOnly {
		cfg.Pipeline.FetchOnly = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database.SQLitePath)
	if err != nil {
		return nil, err
	}

	daily, realtime := provider.Build(provider.Options{
		TushareToken: cfg.DataSource.TushareToken,
		Proxy:        cfg.Proxy,
	})
	coord := coordinator.New(daily, realtime, coordinator.DefaultRetryPolicy())

	var note notifier.Notifier = notifier.Noop{}
	if cfg.Webhook.URL != "" && !flagNoNotify {
		note = notifier.NewWebhookNotifier(cfg.Webhook.URL, cfg.Proxy)
	}

	orch := orchestrator.New(coord, st, analyzer.Noop{}, orchestrator.Options{
		Workers:      cfg.Pipeline.Workers,
		LookbackDays: cfg.Pipeline.LookbackDays,
		ContextSize:  cfg.Pipeline.ContextSize,
		Force:        flagForce,
		FetchOnly:    cfg.Pipeline.FetchOnly,
		StaggerMax:   2 * time.Second,
	})
	orch.OnResult = func(actx *model.AnalysisContext, _ *analyzer.Verdict) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := note.SendWithRetry(ctx, notifier.FormatInstrumentReport(actx), 3); err != nil {
			log.Printf("[ERROR] [%s] send report: %v", actx.Code, err)
		}
	}

	return &pipeline{cfg: cfg, store: st, orch: orch, note: note, codes: cfg.Stocks}, nil
}

// execute runs one full pipeline pass and reports the summary. Instrument
// failures are summary entries, not run errors.
func (p *pipeline) execute(ctx context.Context) {
	summary := p.orch.Run(ctx, p.codes)

	text := notifier.FormatRunSummary(summary.Total, summary.Done, summary.Failed, summary.Errors, summary.Elapsed)
	sendCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := p.note.SendWithRetry(sendCtx, text, 3); err != nil {
		log.Printf("[ERROR] send run summary: %v", err)
	}
}

func runOnce(_ *cobra.Command, _ []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	log.Println("[INFO] StockSentinel starting single run")
	p.execute(ctx)
	return nil
}

func runScheduled(_ *cobra.Command, _ []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	sched := scheduler.New()
	if err := sched.RegisterDaily(p.cfg.Schedule.DailyCron, func() {
		p.execute(ctx)
	}); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing pipeline now")
		go p.execute(ctx)
	}

	log.Println("[INFO] StockSentinel is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Println("[INFO] shutdown signal received, stopping...")
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
