package jobs

import (
	"time"

	"github.com/google/logger"
	"github.com/robfig/cron/v3"

	"raffle/internal/services"
)

// BackupJob writes a compressed ledger backup on every run.
type BackupJob struct {
	service *services.LotteryService
	dir     string
	keep    int
}

// NewBackupJob creates a job that backs the ledger up into dir, keeping the newest keep files.
func NewBackupJob(service *services.LotteryService, dir string, keep int) *BackupJob {
	return &BackupJob{service: service, dir: dir, keep: keep}
}

// Run writes one backup and logs a failure.
func (j *BackupJob) Run() {
	if _, err := j.service.Backup(j.dir, j.keep); err != nil {
		logger.Warningf("Ledger backup failed: %v", err)
	}
}

// SessionJanitorJob tears down drawing sessions nobody has touched for a while.
type SessionJanitorJob struct {
	service *services.LotteryService
	maxIdle time.Duration
}

// NewSessionJanitorJob creates a job that tears down sessions idle for longer than maxIdle.
func NewSessionJanitorJob(service *services.LotteryService, maxIdle time.Duration) *SessionJanitorJob {
	return &SessionJanitorJob{service: service, maxIdle: maxIdle}
}

// Run tears down the drawing session if it has gone idle.
func (j *SessionJanitorJob) Run() {
	j.service.CleanUpInactiveSession(j.maxIdle)
}

// Schedule registers job on a cron schedule; an empty schedule disables it.
func Schedule(c *cron.Cron, schedule string, job cron.Job) error {
	if schedule == "" {
		return nil
	}
	_, err := c.AddJob(schedule, cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(job))
	return err
}
