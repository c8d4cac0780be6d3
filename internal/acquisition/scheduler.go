package acquisition

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs jobs at a fixed interval.
type Scheduler interface {
	// Every runs job every interval until the returned cancel func is called.
	Every(interval time.Duration, job func()) (cancel func())

	// Stop cancels all jobs and waits for running ones to finish.
	Stop()
}

// CronScheduler schedules jobs on a robfig/cron runner.
// A job still running when its next tick fires is skipped for that tick.
type CronScheduler struct {
	cron *cron.Cron
}

// NewCronScheduler creates and starts a scheduler.
func NewCronScheduler() *CronScheduler {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Start()
	return &CronScheduler{cron: c}
}

// Every schedules job every interval. Intervals under one second run every second.
func (s *CronScheduler) Every(interval time.Duration, job func()) func() {
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(job))
	return func() { s.cron.Remove(id) }
}

// Stop stops the runner and waits for running jobs.
func (s *CronScheduler) Stop() {
	<-s.cron.Stop().Done()
}
