package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Flusher is the part of the store the scheduler drives.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlushScheduler flushes a store on a cron schedule.
type FlushScheduler struct {
	cron    *cron.Cron
	store   Flusher
	timeout time.Duration
	logger  *slog.Logger
}

// NewFlushScheduler parses schedule (standard five-field cron syntax or a
// descriptor such as "@every 5m") and returns a stopped scheduler.
func NewFlushScheduler(store Flusher, schedule string, logger *slog.Logger) (*FlushScheduler, error) {
	s := &FlushScheduler{
		cron:    cron.New(),
		store:   store,
		timeout: time.Minute,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.flush); err != nil {
		return nil, fmt.Errorf("invalid flush schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *FlushScheduler) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.store.Flush(ctx); err != nil {
		s.logger.Warn("scheduled flush failed", "error", err)
		return
	}
	s.logger.Debug("scheduled flush done")
}

// Start runs the schedule in the background.
func (s *FlushScheduler) Start() {
	s.cron.Start()
	s.logger.Info("flush scheduler started")
}

// Stop halts the schedule and waits for a running flush to finish.
func (s *FlushScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("flush scheduler stopped")
}
