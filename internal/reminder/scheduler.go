package reminder

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a Job on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	job     *Job
	timeout time.Duration
}

// NewScheduler parses spec (standard five-field cron) in loc.
func NewScheduler(spec string, loc *time.Location, job *Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		job:     job,
		timeout: 10 * time.Minute,
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.job.Run(ctx); err != nil {
		log.Printf("[ERROR] reminder run failed: %v", err)
		return
	}
	log.Printf("[INFO] reminder run finished in %s", time.Since(start).Round(time.Millisecond))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running job, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
