// Package scheduler fires the replay pass on a cron schedule. At most one
// pass is in flight; fires that arrive while it runs follow the misfire
// policy.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/rhp/rhp/internal/platform/telemetry"
)

const DefaultSpec = "35 21 * * *"

var (
	ErrRunning        = errors.New("scheduler: job already running")
	ErrAlreadyStarted = errors.New("scheduler: already started")
	ErrStopped        = errors.New("scheduler: stopped")
)

// MisfirePolicy decides what happens to a fire that lands on a running job.
type MisfirePolicy string

const (
	// MisfireSkip drops the fire with a warning.
	MisfireSkip MisfirePolicy = "skip"
	// MisfireQueue remembers one pending run and starts it as soon as the
	// current one returns. Further fires coalesce into it.
	MisfireQueue MisfirePolicy = "queue"
)

func ParseMisfirePolicy(s string) (MisfirePolicy, error) {
	switch p := MisfirePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return MisfireSkip, nil
	case MisfireSkip, MisfireQueue:
		return p, nil
	default:
		return "", fmt.Errorf("unknown misfire policy %q (want skip or queue)", s)
	}
}

type Config struct {
	// Spec is a standard 5-field cron expression or a descriptor such as
	// @daily or @every 1h.
	Spec string
	// TimeZone is an IANA name; empty means the process local zone.
	TimeZone string
	Misfire  MisfirePolicy
}

// Job is the scheduled work. It receives a context cancelled on Stop.
type Job func(ctx context.Context)

type Scheduler struct {
	cron    *cron.Cron
	job     Job
	policy  MisfirePolicy
	logger  zerolog.Logger
	metrics *telemetry.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	queued  bool
	started bool
	stopped bool
	idle    *sync.Cond
}

// ValidateSpec reports whether spec parses as a schedule.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

func New(cfg Config, job Job, logger zerolog.Logger, metrics *telemetry.Metrics) (*Scheduler, error) {
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Misfire == "" {
		cfg.Misfire = MisfireSkip
	}
	if _, err := ParseMisfirePolicy(string(cfg.Misfire)); err != nil {
		return nil, err
	}

	loc := time.Local
	if cfg.TimeZone != "" {
		l, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("load time zone %q: %w", cfg.TimeZone, err)
		}
		loc = l
	}

	logger = logger.With().Str("component", "scheduler").Logger()
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.Recover(cronLogger{logger})),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    c,
		job:     job,
		policy:  cfg.Misfire,
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.idle = sync.NewCond(&s.mu)

	if _, err := c.AddFunc(cfg.Spec, s.fire); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start begins firing on the schedule.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.cron.Start()

	entries := s.cron.Entries()
	if len(entries) > 0 {
		s.logger.Info().Time("next_run", entries[0].Next).Str("misfire", string(s.policy)).Msg("replay scheduler started")
	}
	return nil
}

// Stop halts the schedule and waits for an executing job. When ctx expires
// first the job's context is cancelled and ctx.Err() is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.queued = false
	s.mu.Unlock()

	s.cron.Stop()

	done := make(chan struct{})
	go func() {
		s.mu.Lock()
		for s.running {
			s.idle.Wait()
		}
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info().Msg("replay scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn().Msg("replay scheduler stop timed out; cancelled running job")
		return ctx.Err()
	}
}

// Trigger starts a pass in the background on the scheduler's own context,
// so Stop waits for it like a scheduled run. It returns ErrRunning when a
// pass is in flight and ErrStopped after Stop.
func (s *Scheduler) Trigger() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.running {
		return ErrRunning
	}
	s.running = true
	go s.run()
	return nil
}

// fire is the cron callback. cron runs each fire on its own goroutine, so
// overlapping fires meet here.
func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.running {
		s.misfire()
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	s.run()
}

// run executes the job, then any run queued while it was executing. The
// caller must have set running.
func (s *Scheduler) run() {
	defer s.finish()
	for {
		s.runJob()

		s.mu.Lock()
		if s.queued && !s.stopped {
			s.queued = false
			s.mu.Unlock()
			s.logger.Info().Msg("running queued replay pass")
			continue
		}
		s.mu.Unlock()
		return
	}
}

// runJob runs one pass. A panic is logged and ends that pass only.
func (s *Scheduler) runJob() {
	defer func() {
		if r := recover(); r != nil {
			var stack [4096]byte
			n := runtime.Stack(stack[:], false)
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(stack[:n])).
				Msg("replay pass panicked")
		}
	}()
	s.job(s.ctx)
}

// misfire must be called with mu held.
func (s *Scheduler) misfire() {
	s.metrics.ReplayMisfire(string(s.policy))
	if s.policy == MisfireQueue {
		if s.queued {
			s.logger.Info().Msg("replay fire coalesced into queued run")
			return
		}
		s.queued = true
		s.logger.Warn().Msg("replay pass still running; queued one more run")
		return
	}
	s.logger.Warn().Msg("replay pass still running; skipped this fire")
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	s.running = false
	s.idle.Broadcast()
	s.mu.Unlock()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
