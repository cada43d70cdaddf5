package daemon

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/docpublisher/internal/logfields"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// Enqueuer accepts runs from the scheduler.
type Enqueuer interface {
	Enqueue(source JobSource, params trigger.Params) (*Job, error)
}

// Scheduler wraps a gocron scheduler holding the single full-mode run job.
type Scheduler struct {
	scheduler gocron.Scheduler
	enqueuer  Enqueuer
	logger    *slog.Logger

	mu       sync.Mutex
	job      gocron.Job
	schedule string
	branch   string
}

// NewScheduler creates a stopped scheduler feeding enqueuer.
func NewScheduler(enqueuer Enqueuer, logger *slog.Logger, opts ...gocron.SchedulerOption) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, enqueuer: enqueuer, logger: logger}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop shuts the scheduler down and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// Schedule installs or replaces the cron job enqueuing scheduled runs of
// branch. An unchanged schedule keeps the existing job.
func (s *Scheduler) Schedule(cron, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job != nil && cron == s.schedule && branch == s.branch {
		return nil
	}

	def := gocron.CronJob(cron, false)
	task := gocron.NewTask(s.enqueueScheduled, branch)
	var (
		job gocron.Job
		err error
	)
	if s.job == nil {
		job, err = s.scheduler.NewJob(def, task, gocron.WithName("scheduled-run"))
	} else {
		job, err = s.scheduler.Update(s.job.ID(), def, task, gocron.WithName("scheduled-run"))
	}
	if err != nil {
		return fmt.Errorf("failed to schedule runs %q: %w", cron, err)
	}
	s.job = job
	s.schedule = cron
	s.branch = branch
	s.logger.Info("Scheduled runs",
		logfields.ScheduleID(job.ID().String()),
		slog.String("cron", cron),
		logfields.Branch(branch))
	return nil
}

// ScheduleID returns the gocron job ID, empty before Schedule.
func (s *Scheduler) ScheduleID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil {
		return ""
	}
	return s.job.ID().String()
}

// RunNow triggers the scheduled job immediately.
func (s *Scheduler) RunNow() error {
	s.mu.Lock()
	job := s.job
	s.mu.Unlock()
	if job == nil {
		return fmt.Errorf("no scheduled run configured")
	}
	return job.RunNow()
}

func (s *Scheduler) enqueueScheduled(branch string) {
	params := trigger.Params{Event: trigger.EventSchedule, Branch: branch}
	if _, err := s.enqueuer.Enqueue(SourceSchedule, params); err != nil {
		s.logger.Error("Failed to enqueue scheduled run", logfields.Branch(branch), logfields.Error(err))
	}
}
