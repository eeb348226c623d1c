package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// HealthChecker probes the engine. *health.Store implements it.
type HealthChecker interface {
	Check(ctx context.Context) bool
}

// StaleSweeper drops installs that stopped reporting.
// *store.MCPDownloadStore implements it.
type StaleSweeper interface {
	SweepStale(ctx context.Context) (int, error)
}

// SchedulerConfig holds configuration for the Scheduler. An empty schedule
// disables its job.
type SchedulerConfig struct {
	HealthPollSchedule string
	MCPSweepSchedule   string
	Health             HealthChecker
	MCPDownloads       StaleSweeper
	Logger             zerolog.Logger
}

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	cron   *cron.Cron
	health HealthChecker
	mcp    StaleSweeper
	logger zerolog.Logger
}

// NewScheduler registers the configured jobs. It fails on an invalid
// schedule.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	logger := cronLogger{logger: cfg.Logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		health: cfg.Health,
		mcp:    cfg.MCPDownloads,
		logger: cfg.Logger,
	}

	if cfg.HealthPollSchedule != "" && cfg.Health != nil {
		if _, err := s.cron.AddFunc(cfg.HealthPollSchedule, func() { s.PollHealth(context.Background()) }); err != nil {
			return nil, fmt.Errorf("schedule health poll %q: %w", cfg.HealthPollSchedule, err)
		}
	}
	if cfg.MCPSweepSchedule != "" && cfg.MCPDownloads != nil {
		if _, err := s.cron.AddFunc(cfg.MCPSweepSchedule, func() { s.SweepMCP(context.Background()) }); err != nil {
			return nil, fmt.Errorf("schedule mcp sweep %q: %w", cfg.MCPSweepSchedule, err)
		}
	}

	return s, nil
}

// Start runs the jobs in the background.
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("starting scheduler")
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs or ctx, whichever comes
// first.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stopped before running jobs finished")
	}
}

// PollHealth probes the engine once.
func (s *Scheduler) PollHealth(ctx context.Context) {
	if !s.health.Check(ctx) {
		s.logger.Debug().Msg("engine unreachable on scheduled probe")
	}
}

// SweepMCP drops MCP installs that have been downloading for too long.
func (s *Scheduler) SweepMCP(ctx context.Context) {
	removed, err := s.mcp.SweepStale(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("mcp sweep failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("dropped stale mcp installs")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
