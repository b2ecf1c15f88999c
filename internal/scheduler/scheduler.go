package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Trigger starts a refresh; it must not block.
type Trigger interface {
	Trigger(verbose bool)
}

// Scheduler periodically triggers a quiet weather refresh.
type Scheduler struct {
	scheduler *gocron.Scheduler
	trigger   Trigger
	interval  time.Duration
	immediate bool
	logger    *zap.SugaredLogger
}

// New creates a new Scheduler. When immediate is true the first refresh
// fires on Start instead of after one interval.
func New(trigger Trigger, interval time.Duration, immediate bool, logger *zap.SugaredLogger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		trigger:   trigger,
		interval:  interval,
		immediate: immediate,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.interval = 30 * time.Minute
	}

	job := s.scheduler.Every(s.interval)
	if !s.immediate {
		job = job.WaitForSchedule()
	}
	_, err := job.Do(func() {
		s.logger.Debugw("scheduled refresh")
		s.trigger.Trigger(false)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Infow("scheduler started", "interval", s.interval, "immediate", s.immediate)
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
