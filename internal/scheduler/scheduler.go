// Package scheduler runs the background maintenance of the batch cache:
// prewarming the current window and evicting expired batches.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cayyus/engineerverse/internal/engine"
)

const (
	JobPrewarm = "prewarm"
	JobEvict   = "evict"

	jobTimeout = time.Minute
)

// Job is a scheduled task.
type Job func(ctx context.Context) error

// JobInfo describes a registered job.
type JobInfo struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
	LastRun  time.Time `json:"last_run"`
}

// Scheduler manages periodic tasks.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu        sync.Mutex
	jobs      map[string]cron.EntryID
	schedules map[string]string
}

// New creates a scheduler. A nil logger discards output.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "scheduler")
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger{logger}))),
		logger:    logger,
		jobs:      make(map[string]cron.EntryID),
		schedules: make(map[string]string),
	}
}

// Every formats d as a cron "@every" descriptor.
func Every(d time.Duration) string {
	return "@every " + d.String()
}

// AddJob registers job under name. An existing job with the same name is
// replaced.
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(name, job); err != nil {
			s.logger.Warn("job failed", "job", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = entryID
	s.schedules[name] = schedule
	s.mu.Unlock()

	s.logger.Info("added job", "job", name, "schedule", schedule)
	return nil
}

// RunNow executes job immediately with the standard timeout.
func (s *Scheduler) RunNow(name string, job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	err := job(ctx)
	s.logger.Debug("job finished", "job", name, "duration", time.Since(start), "ok", err == nil)
	return err
}

// RegisterCacheJobs adds the prewarm and evict jobs for cache, both running
// once per cache window.
func (s *Scheduler) RegisterCacheJobs(cache *engine.BatchCache) error {
	every := Every(cache.Duration())
	if err := s.AddJob(JobPrewarm, every, PrewarmJob(cache)); err != nil {
		return err
	}
	return s.AddJob(JobEvict, every, EvictJob(cache, s.logger))
}

// PrewarmJob generates the current window's batch so the first feed request
// of a window does not pay for sampling.
func PrewarmJob(cache *engine.BatchCache) Job {
	return func(ctx context.Context) error {
		cache.GetOrCreateBatch(cache.CurrentBatchID())
		return ctx.Err()
	}
}

// EvictJob drops expired batches.
func EvictJob(cache *engine.BatchCache, logger *slog.Logger) Job {
	return func(ctx context.Context) error {
		if n := cache.EvictExpired(); n > 0 {
			logger.Info("evicted batches", "count", n)
		}
		return nil
	}
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done when running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("stopping scheduler")
	return s.cron.Stop()
}

// ListJobs returns the registered jobs ordered by name.
func (s *Scheduler) ListJobs() []JobInfo {
	entries := s.cron.Entries()

	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]JobInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, s.info(name, s.jobs[name], entries))
	}
	return infos
}

func (s *Scheduler) info(name string, id cron.EntryID, entries []cron.Entry) JobInfo {
	info := JobInfo{Name: name, Schedule: s.schedules[name]}
	for _, e := range entries {
		if e.ID == id {
			info.NextRun = e.Next
			info.LastRun = e.Prev
			break
		}
	}
	return info
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
