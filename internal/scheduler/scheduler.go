package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lupppig/dirbackup/internal/backup"
	"github.com/lupppig/dirbackup/internal/collision"
	"github.com/lupppig/dirbackup/internal/config"
	"github.com/lupppig/dirbackup/internal/logger"
	"github.com/lupppig/dirbackup/internal/notify"
	"github.com/robfig/cron/v3"
)

type JobStatus string

const (
	StatusPending JobStatus = "pending"
	StatusRunning JobStatus = "running"
	StatusSuccess JobStatus = "success"
	StatusFailed  JobStatus = "failed"
)

const defaultRetryDelay = 5 * time.Minute

// Job is a recurring backup registered with the scheduler.
type Job struct {
	ID       string
	Config   config.JobConfig
	Schedule string
	Status   JobStatus
	LastRun  *time.Time
	NextRun  *time.Time

	cronID cron.EntryID
}

// Runner executes one attempt of a job.
type Runner func(ctx context.Context, job config.JobConfig) error

type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]*Job
	mu      sync.RWMutex
	maxJobs int
	running int
	run     Runner
	logger  *logger.Logger
	ctx     context.Context
}

// New returns a scheduler that runs at most maxJobs jobs at the same time.
// A maxJobs of zero or less means no limit.
func New(maxJobs int, run Runner, l *logger.Logger) *Scheduler {
	if l == nil {
		l = logger.Nop()
	}
	return &Scheduler{
		cron:    cron.New(),
		jobs:    make(map[string]*Job),
		maxJobs: maxJobs,
		run:     run,
		logger:  l,
		ctx:     context.Background(),
	}
}

// Start runs the cron loop. Jobs started after ctx is cancelled give up
// between retries.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// CronSpec accepts a cron expression, a descriptor such as "@daily", or a Go
// duration like "6h" which becomes "@every 6h".
func CronSpec(schedule string) string {
	spec := strings.TrimSpace(schedule)
	if !strings.HasPrefix(spec, "@") && strings.Count(spec, " ") < 4 {
		if _, err := time.ParseDuration(spec); err == nil {
			spec = "@every " + spec
		}
	}
	return spec
}

// AddJob registers a job on its schedule and returns its id. Jobs without an
// id get a generated one.
func (s *Scheduler) AddJob(cfg config.JobConfig) (string, error) {
	if cfg.Schedule == "" {
		return "", fmt.Errorf("job %q has no schedule", cfg.ID)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[cfg.ID]; ok {
		return "", fmt.Errorf("job already registered: %s", cfg.ID)
	}

	id := cfg.ID
	entryID, err := s.cron.AddFunc(CronSpec(cfg.Schedule), func() {
		s.executeJob(id)
	})
	if err != nil {
		return "", fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	s.jobs[id] = &Job{
		ID:       id,
		Config:   cfg,
		Schedule: cfg.Schedule,
		Status:   StatusPending,
		cronID:   entryID,
	}
	return id, nil
}

func (s *Scheduler) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}

	s.cron.Remove(job.cronID)
	delete(s.jobs, id)
	return nil
}

// ListJobs returns snapshots of the registered jobs ordered by id.
func (s *Scheduler) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		snap := *j
		if entry := s.cron.Entry(j.cronID); !entry.Next.IsZero() {
			next := entry.Next
			snap.NextRun = &next
		}
		list = append(list, snap)
	}
	sort.Slice(list, func(i, k int) bool { return list[i].ID < list[k].ID })
	return list
}

// RunNow executes a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(id string) error {
	s.mu.RLock()
	_, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	s.executeJob(id)
	return nil
}

func (s *Scheduler) executeJob(id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	l := s.logger.With("job", id)

	if s.maxJobs > 0 && s.running >= s.maxJobs {
		s.mu.Unlock()
		l.Warn("Skipping job: max concurrent jobs reached", "max", s.maxJobs)
		return
	}
	if job.Status == StatusRunning {
		s.mu.Unlock()
		l.Warn("Skipping job: already running")
		return
	}

	job.Status = StatusRunning
	now := time.Now()
	job.LastRun = &now
	s.running++
	ctx := s.ctx
	cfg := job.Config
	s.mu.Unlock()

	maxRetries := max(cfg.Retries, 0)
	retryDelay, _ := time.ParseDuration(cfg.RetryDelay)
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	var err error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			l.Info("Retrying job", "attempt", i, "delay", retryDelay)
			select {
			case <-ctx.Done():
				err = errors.Join(err, ctx.Err())
			case <-time.After(retryDelay):
			}
			if ctx.Err() != nil {
				break
			}
		}
		err = s.run(ctx, cfg)
		if err == nil {
			break
		}
		l.Warn("Job attempt failed", "attempt", i, "error", err)
	}

	s.mu.Lock()
	s.running--
	if err != nil {
		job.Status = StatusFailed
	} else {
		job.Status = StatusSuccess
	}
	s.mu.Unlock()

	if err != nil {
		l.Error("Scheduled job failed after retries", "error", err)
		return
	}
	l.Info("Scheduled job succeeded")
}

// JobRequest turns a job, defaults already applied, into an engine request.
func JobRequest(j config.JobConfig) backup.Request {
	req := backup.Request{
		Sources:        j.Sources,
		Target:         j.Target,
		Blacklist:      j.Blacklist,
		IgnoreFileName: j.IgnoreFile,
		Collision:      collision.ParsePolicy(j.CollisionPolicy),
	}
	if j.RespectIgnoreFiles != nil {
		req.RespectIgnoreFiles = *j.RespectIgnoreFiles
	}
	// naming an ignore file turns ignore files on, as --ignore-file does
	if j.IgnoreFile != "" {
		req.RespectIgnoreFiles = true
	}
	if j.IncludeSourceRoot != nil {
		req.IncludeSourceRootName = *j.IncludeSourceRoot
	}
	return req
}

// NewRunner returns a Runner that copies the job with a backup engine and
// sends a notification once the run completes. n may be nil.
func NewRunner(n notify.Notifier, l *logger.Logger) Runner {
	return func(ctx context.Context, job config.JobConfig) error {
		return RunJob(ctx, job, n, l)
	}
}

// RunJob executes a single job. A run that finishes with errors is reported
// as an error so callers can retry it.
func RunJob(ctx context.Context, job config.JobConfig, n notify.Notifier, l *logger.Logger) error {
	req := JobRequest(job)
	opts := []backup.Option{}
	if l != nil {
		opts = append(opts, backup.WithLogger(l.With("job", job.ID)))
	}
	if n != nil {
		opts = append(opts, backup.WithObserver(notify.NewObserver(ctx, n, job.ID, req)))
	}

	res, err := backup.NewEngine(opts...).Run(ctx, req)
	if err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.Message)
	}
	return nil
}
