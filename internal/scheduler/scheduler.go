package scheduler

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the daily pipeline on a cron spec. Specs use the
// six-field form with seconds, e.g. "0 30 17 * * 1-5" for 17:30 on
// weekdays after the market close.
type Scheduler struct {
	cron *cron.Cron
}

func New() *Scheduler {
	return &Scheduler{cron: cron.New(cron.WithSeconds())}
}

// RegisterDaily registers job under spec. Overlapping runs are skipped
// rather than stacked.
func (s *Scheduler) RegisterDaily(spec string, job func()) error {
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cron.FuncJob(job))
	if _, err := s.cron.AddJob(spec, wrapped); err != nil {
		return fmt.Errorf("register daily job %q: %w", spec, err)
	}
	log.Printf("[INFO] daily job registered: %s", spec)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("[INFO] scheduler stopped")
}
