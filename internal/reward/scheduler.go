package reward

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aimerfeng/ContribChain/internal/config"
	"github.com/aimerfeng/ContribChain/internal/logging"
	"github.com/aimerfeng/ContribChain/internal/monitoring"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Scheduler periodically redispatches mint requests for tokens stuck in pending
type Scheduler struct {
	engine    *Engine
	interval  time.Duration
	staleAt   time.Duration
	batch     int
	scheduler gocron.Scheduler
	logger    zerolog.Logger

	mu         sync.Mutex
	running    bool
	lastRun    time.Time
	lastResult int
}

// SchedulerStatus represents the current status of the scheduler
type SchedulerStatus struct {
	Running        bool       `json:"running"`
	Interval       string     `json:"interval"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	LastDispatched int        `json:"last_dispatched"`
}

// NewScheduler creates a redispatch scheduler from reward configuration
func NewScheduler(engine *Engine, cfg *config.RewardConfig) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{
		engine:    engine,
		interval:  cfg.RedispatchInterval,
		staleAt:   cfg.StaleAfter,
		batch:     cfg.RedispatchBatch,
		scheduler: s,
		logger:    logging.NewLogger("reward-scheduler"),
	}, nil
}

// Start registers the redispatch job and starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if _, err := s.RunNow(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Redispatch run failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register redispatch job: %w", err)
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info().Dur("interval", s.interval).Msg("Reward redispatch scheduler started")
	return nil
}

// Stop shuts the scheduler down and waits for a running job to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	// a job in flight takes s.mu in RunNow, so shut down unlocked
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.logger.Info().Msg("Reward redispatch scheduler stopped")
	return nil
}

// RunNow redispatches stale tokens immediately and returns how many were queued
func (s *Scheduler) RunNow(ctx context.Context) (int, error) {
	n, err := s.engine.RedispatchStale(ctx, s.staleAt, s.batch)
	if err != nil {
		monitoring.RecordRedispatchRun("error")
		return n, err
	}
	monitoring.RecordRedispatchRun("ok")

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastResult = n
	s.mu.Unlock()

	if n > 0 {
		s.logger.Info().Int("dispatched", n).Msg("Stale reward tokens redispatched")
	}
	return n, nil
}

// GetStatus returns the current status of the scheduler
func (s *Scheduler) GetStatus() *SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &SchedulerStatus{
		Running:        s.running,
		Interval:       s.interval.String(),
		LastDispatched: s.lastResult,
	}
	if !s.lastRun.IsZero() {
		lastRun := s.lastRun
		status.LastRun = &lastRun
	}
	return status
}
