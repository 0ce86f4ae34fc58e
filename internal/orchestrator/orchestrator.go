// Package orchestrator runs the per-instrument pipeline (fetch, persist,
// enrich, score) across a bounded worker pool. One instrument failing never
// stops the run; every outcome is accounted for in the final summary.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"StockSentinel/internal/analyzer"
	"StockSentinel/internal/calculator"
	"StockSentinel/internal/model"
	"StockSentinel/internal/trend"
)

// Task statuses, in pipeline order.
const (
	StatusPending   = "pending"
	StatusFetching  = "fetching"
	StatusPersisted = "persisted"
	StatusEnriching = "enriching"
	StatusDone      = "done"
	StatusFailed    = "failed"
)

// DefaultWorkers bounds pipeline concurrency so a large universe does not
// hammer the upstream sources.
const DefaultWorkers = 3

// Fetcher is the failover fetch surface the pipeline pulls data through.
type Fetcher interface {
	FetchDaily(ctx context.Context, code string, start, end time.Time) ([]model.DailyRecord, string, error)
	FetchRealtime(ctx context.Context, code string) (*model.RealtimeQuote, string, error)
	FetchChips(ctx context.Context, code string) (*model.ChipDistribution, string, error)
}

// Store is the durable record surface the pipeline persists through.
type Store interface {
	UpsertDaily(records []model.DailyRecord) (int, error)
	HasData(code string, day time.Time) (bool, error)
	Context(code string, lookback int) ([]model.DailyRecord, error)
}

// Task tracks one instrument through the pipeline.
type Task struct {
	Code   string
	Name   string
	Status string
	Source string // provider that served the daily history
	Err    error
}

// Summary is the end-of-run accounting.
type Summary struct {
	Total   int
	Done    int
	Failed  int
	Errors  map[string]string // code -> failure reason
	Elapsed time.Duration
}

// Options tunes a run. Zero values fall back to defaults.
type Options struct {
	Workers      int
	LookbackDays int  // daily-history fetch window
	ContextSize  int  // records handed to scoring and reporting
	Force        bool // refetch even when the target day is already stored
	FetchOnly    bool // persist raw records and stop, no enrichment pass
	StaggerMax   time.Duration
	Names        map[string]string // code -> display name
}

func (o *Options) withDefaults() {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.LookbackDays <= 0 {
		o.LookbackDays = 60
	}
	if o.ContextSize <= 0 {
		o.ContextSize = 30
	}
}

// Orchestrator coordinates the worker pool. OnResult, when set, receives
// every successfully analyzed instrument; it is called from worker
// goroutines and must be safe for concurrent use.
type Orchestrator struct {
	fetcher  Fetcher
	store    Store
	analyzer analyzer.Analyzer
	opts     Options

	OnResult func(actx *model.AnalysisContext, verdict *analyzer.Verdict)
}

func New(f Fetcher, s Store, a analyzer.Analyzer, opts Options) *Orchestrator {
	opts.withDefaults()
	if a == nil {
		a = analyzer.Noop{}
	}
	return &Orchestrator{fetcher: f, store: s, analyzer: a, opts: opts}
}

// Run pushes every code through the pipeline with bounded concurrency and
// returns the summary. A run-level error occurs only when the context is
// cancelled before all tasks finish; per-instrument failures are reported
// in the summary, not as an error.
func (o *Orchestrator) Run(ctx context.Context, codes []string) Summary {
	start := time.Now()
	summary := Summary{Total: len(codes), Errors: make(map[string]string)}
	if len(codes) == 0 {
		return summary
	}

	log.Printf("[INFO] starting run: %d instruments, %d workers", len(codes), o.opts.Workers)

	queue := make(chan string)
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		processed = make(map[string]bool, len(codes))
	)

	for w := 0; w < o.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for code := range queue {
				task := o.runTask(ctx, code)
				mu.Lock()
				processed[code] = true
				if task.Status == StatusDone {
					summary.Done++
				} else {
					summary.Failed++
					if task.Err != nil {
						summary.Errors[code] = task.Err.Error()
					} else {
						summary.Errors[code] = task.Status
					}
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, code := range codes {
		select {
		case queue <- code:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	// Codes never handed to a worker after cancellation count as failed.
	mu.Lock()
	if ctx.Err() != nil {
		for _, code := range codes {
			if !processed[code] {
				summary.Failed++
				summary.Errors[code] = ctx.Err().Error()
			}
		}
	}
	summary.Elapsed = time.Since(start)
	mu.Unlock()

	log.Printf("[INFO] run finished: %d done, %d failed, %.1fs",
		summary.Done, summary.Failed, summary.Elapsed.Seconds())
	return summary
}

// runTask executes the full pipeline for one instrument. A panic anywhere
// in the task is converted into a task failure so the pool keeps running.
func (o *Orchestrator) runTask(ctx context.Context, code string) (task *Task) {
	task = &Task{Code: code, Name: o.opts.Names[code], Status: StatusPending}
	defer func() {
		if r := recover(); r != nil {
			task.Status = StatusFailed
			task.Err = fmt.Errorf("panic: %v", r)
			log.Printf("[ERROR] [%s] task panicked: %v", code, r)
		}
	}()

	if err := o.stagger(ctx); err != nil {
		task.Status = StatusFailed
		task.Err = err
		return task
	}

	if err := o.fetchAndPersist(ctx, task); err != nil {
		task.Status = StatusFailed
		task.Err = err
		log.Printf("[ERROR] [%s] fetch failed: %v", code, err)
		return task
	}

	if o.opts.FetchOnly {
		task.Status = StatusDone
		return task
	}

	if err := o.enrichAndScore(ctx, task); err != nil {
		task.Status = StatusFailed
		task.Err = err
		log.Printf("[ERROR] [%s] analysis failed: %v", code, err)
		return task
	}

	task.Status = StatusDone
	return task
}

// fetchAndPersist pulls the daily window through the failover chain and
// upserts it. When the target day is already stored the fetch is skipped,
// which is what lets an interrupted run resume without repeating work.
func (o *Orchestrator) fetchAndPersist(ctx context.Context, task *Task) error {
	end := today()
	start := end.AddDate(0, 0, -o.opts.LookbackDays)

	if !o.opts.Force {
		has, err := o.store.HasData(task.Code, end)
		if err != nil {
			return fmt.Errorf("resume check: %w", err)
		}
		if has {
			log.Printf("[INFO] [%s] already stored for %s, skipping fetch",
				task.Code, end.Format(model.DateLayout))
			task.Status = StatusPersisted
			return nil
		}
	}

	task.Status = StatusFetching
	records, source, err := o.fetcher.FetchDaily(ctx, task.Code, start, end)
	if err != nil {
		return err
	}
	task.Source = source

	n, err := o.store.UpsertDaily(records)
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	log.Printf("[INFO] [%s] persisted %d records from %s", task.Code, n, source)
	task.Status = StatusPersisted
	return nil
}

// enrichAndScore recomputes derived fields over the stored history, writes
// them back, assembles the context and hands it to the analyzer. Realtime
// quote and chip distribution are best effort.
func (o *Orchestrator) enrichAndScore(ctx context.Context, task *Task) error {
	task.Status = StatusEnriching

	// Load more than the reporting window so MA20 has a full run-up.
	history, err := o.store.Context(task.Code, o.opts.ContextSize+calculator.WindowMA20)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		return fmt.Errorf("no stored history")
	}

	calculator.Enrich(history)
	if _, err := o.store.UpsertDaily(history); err != nil {
		return fmt.Errorf("persist derived fields: %w", err)
	}

	if len(history) > o.opts.ContextSize {
		history = history[len(history)-o.opts.ContextSize:]
	}

	actx := &model.AnalysisContext{
		Code:    task.Code,
		Name:    task.Name,
		Records: history,
	}

	if quote, source, err := o.fetcher.FetchRealtime(ctx, task.Code); err == nil {
		actx.Quote = quote
		if actx.Name == "" {
			actx.Name = quote.Name
		}
		log.Printf("[INFO] [%s] realtime quote from %s", task.Code, source)
	} else {
		log.Printf("[WARN] [%s] realtime quote unavailable: %v", task.Code, err)
	}
	if chips, _, err := o.fetcher.FetchChips(ctx, task.Code); err == nil {
		actx.Chips = chips
	} else {
		log.Printf("[WARN] [%s] chip distribution unavailable: %v", task.Code, err)
	}

	actx.Trend = trend.Evaluate(actx.Records, actx.Quote)

	verdict, err := o.analyzer.Analyze(ctx, actx)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	if o.OnResult != nil {
		o.OnResult(actx, verdict)
	}
	return nil
}

// stagger sleeps a random fraction of StaggerMax so workers do not hit the
// upstream sources in lockstep.
func (o *Orchestrator) stagger(ctx context.Context) error {
	if o.opts.StaggerMax <= 0 {
		return nil
	}
	d := time.Duration(rand.Int63n(int64(o.opts.StaggerMax)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
