package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/mohammad-safakhou/casewatch/internal/ingest"
	"github.com/mohammad-safakhou/casewatch/internal/quota"
)

// Runner is the part of the pipeline the scheduler drives.
type Runner interface {
	Run(ctx context.Context, collection string) ([]ingest.RunReport, error)
}

// Scheduler checks the cron expression once per tick and starts a run when one is due. It also
// sweeps expired sessions.
type Scheduler struct {
	runner   Runner
	expr     *cronexpr.Expression
	sessions *quota.Registry
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   *log.Logger

	mu   sync.Mutex
	next time.Time
	stop chan struct{}
	done chan struct{}
}

// NewScheduler parses spec (standard five-field cron or @-shorthand).
func NewScheduler(spec string, runner Runner, sessions *quota.Registry, logger *log.Logger) (*Scheduler, error) {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	s := &Scheduler{
		runner:   runner,
		expr:     expr,
		sessions: sessions,
		interval: time.Minute,
		timeout:  30 * time.Minute,
		now:      time.Now,
		logger:   logger,
	}
	s.next = expr.Next(s.now())
	return s, nil
}

// Next is the next time a run is due.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Scheduler) Start() {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ticker := time.NewTicker(s.interval)
	s.logger.Printf("next ingestion run at %s", s.Next().Format(time.RFC3339))
	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight tick.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
}

func (s *Scheduler) tick() {
	if s.sessions != nil {
		if n := s.sessions.Sweep(); n > 0 {
			s.logger.Printf("swept %d expired sessions", n)
		}
	}
	now := s.now()
	s.mu.Lock()
	due := !s.next.IsZero() && !now.Before(s.next)
	if due {
		s.next = s.expr.Next(now)
	}
	s.mu.Unlock()
	if !due {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	reports, err := s.runner.Run(ctx, "")
	switch {
	case errors.Is(err, ingest.ErrRunInProgress):
		s.logger.Printf("skipping run: %v", err)
	case err != nil:
		s.logger.Printf("run failed: %v", err)
	default:
		for _, r := range reports {
			if r.Err != nil {
				s.logger.Printf("collection %s failed: %v", r.Collection, r.Err)
			}
		}
	}
	s.logger.Printf("next ingestion run at %s", s.Next().Format(time.RFC3339))
}
