package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Job is one scheduled, stateless run.
type Job struct {
	Name    string
	Cron    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler triggers jobs on cron expressions (UTC). A job never overlaps
// with itself inside this process; separate processes are not coordinated.
type Scheduler struct {
	scheduler *gocron.Scheduler
	jobs      []Job
	logger    logrus.FieldLogger
}

var ErrNoJobs = errors.New("scheduler: no jobs configured")

// New creates a new Scheduler.
func New(logger logrus.FieldLogger, jobs ...Job) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		jobs:      jobs,
		logger:    logger.WithField("component", "scheduler"),
	}
}

// Start registers every job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.jobs) == 0 {
		return ErrNoJobs
	}

	for _, job := range s.jobs {
		job := job
		if _, err := s.scheduler.Cron(job.Cron).Tag(job.Name).Do(func() { s.run(job) }); err != nil {
			return err
		}
		s.logger.WithFields(logrus.Fields{"job": job.Name, "cron": job.Cron}).Info("job scheduled")
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run(job Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log := s.logger.WithFields(logrus.Fields{"job": job.Name, "trigger_id": uuid.NewString()})
	start := time.Now()
	log.Info("job started")
	if err := job.Run(ctx); err != nil {
		log.WithError(err).Error("job failed")
		return
	}
	log.WithField("took", time.Since(start).String()).Info("job finished")
}

// RunNow triggers every registered job immediately.
func (s *Scheduler) RunNow() {
	s.scheduler.RunAll()
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
