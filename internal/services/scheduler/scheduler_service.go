// Package scheduler triggers scan programs on cron schedules.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/scan"
)

// Service runs the configured scan programs on their schedules. Each
// entry fires a background run via the orchestrator's admission path, so
// an overlapping trigger is refused as already-running rather than
// queued.
type Service struct {
	orchestrator *scan.Orchestrator
	config       *common.SchedulerConfig
	cron         *cron.Cron
	logger       arbor.ILogger

	mu      sync.Mutex
	running bool
}

// NewService creates the scheduler.
func NewService(orchestrator *scan.Orchestrator, config *common.SchedulerConfig, logger arbor.ILogger) *Service {
	return &Service{
		orchestrator: orchestrator,
		config:       config,
		cron:         cron.New(),
		logger:       logger,
	}
}

// Start registers the program entries and starts the cron loop.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled by configuration")
		return nil
	}

	entries := []struct {
		schedule string
		program  scan.Program
	}{
		{s.config.DailySchedule, scan.ProgramFetchDaily},
		{s.config.WeeklySchedule, scan.ProgramFetchWeekly},
		{s.config.DetectorSchedule, scan.ProgramDetector},
	}

	for _, entry := range entries {
		if entry.schedule == "" {
			continue
		}
		program := entry.program
		_, err := s.cron.AddFunc(entry.schedule, func() {
			s.trigger(program)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", program, err)
		}
		s.logger.Info().
			Str("program", string(program)).
			Str("schedule", entry.schedule).
			Msg("Scan program scheduled")
	}

	s.cron.Start()
	s.running = true
	return nil
}

// Stop halts the cron loop. Runs already in flight are left to the
// orchestrator's stop controls.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Service) trigger(program scan.Program) {
	result := s.orchestrator.StartRun(program, scan.RunOptions{
		Resume:  false,
		Trigger: "scheduler",
	})
	if result.Status != scan.RunStarted {
		s.logger.Warn().
			Str("program", string(program)).
			Str("status", result.Status).
			Msg("Scheduled scan not started")
		return
	}
	s.logger.Info().
		Str("program", string(program)).
		Str("job_id", result.JobID).
		Msg("Scheduled scan started")
}
