package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// PurgeSchedule is when old attempts are removed
const PurgeSchedule = "@daily"

// SessionSweeper closes checkouts left open past their deadline
type SessionSweeper interface {
	Expire(cutoff time.Time) []string
}

// AttemptPurger removes finished attempts
type AttemptPurger interface {
	PurgeAttempts(cutoff time.Time) (int64, error)
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron      *cron.Cron
	sessions  SessionSweeper
	attempts  AttemptPurger
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
}

// New creates a new Scheduler. attempts may be nil when nothing is persisted.
func New(sessions SessionSweeper, attempts AttemptPurger, ttl, retention time.Duration) *Scheduler {
	cronLogger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger))),
		sessions:  sessions,
		attempts:  attempts,
		ttl:       ttl,
		retention: retention,
		now:       time.Now,
	}
}

// Start registers the jobs and starts the cron scheduler
func (s *Scheduler) Start(sweepSchedule string) error {
	if _, err := s.cron.AddFunc(sweepSchedule, func() { s.SweepSessions() }); err != nil {
		return err
	}
	log.Printf("[SCHEDULER] Session sweep scheduled (%s, ttl %s)", sweepSchedule, s.ttl)

	if s.attempts != nil && s.retention > 0 {
		if _, err := s.cron.AddFunc(PurgeSchedule, func() { s.PurgeAttempts() }); err != nil {
			return err
		}
		log.Printf("[SCHEDULER] Attempt purge scheduled (%s, retention %s)", PurgeSchedule, s.retention)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once running jobs finish
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// SweepSessions expires checkouts older than the session TTL. Each expired
// session is picked up by its payment flow and recorded as abandoned.
func (s *Scheduler) SweepSessions() []string {
	refs := s.sessions.Expire(s.now().Add(-s.ttl))
	if len(refs) > 0 {
		log.Printf("[SCHEDULER] Expired %d stale checkout(s): %v", len(refs), refs)
	}
	return refs
}

// PurgeAttempts deletes finished attempts older than the retention window
func (s *Scheduler) PurgeAttempts() int64 {
	n, err := s.attempts.PurgeAttempts(s.now().Add(-s.retention))
	if err != nil {
		log.Printf("⚠ [SCHEDULER] Error purging attempts: %v", err)
		return 0
	}
	if n > 0 {
		log.Printf("[SCHEDULER] Purged %d old attempt(s)", n)
	}
	return n
}
