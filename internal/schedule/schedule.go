// Package schedule runs the periodic jobs: the expiry sweep and the morning
// and evening summaries.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/channel"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/expiry"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/store"
)

// Job names, also used as the job attribute in logs.
const (
	JobSweep         = "expiry.sweep"
	JobTravelSummary = "summary.travel"
	JobFavorSummary  = "summary.favor"
)

// Config holds the cron specs and the timezone they are evaluated in.
type Config struct {
	Timezone      string        `yaml:"timezone" envconfig:"SCHEDULE_TIMEZONE"`
	Sweep         string        `yaml:"sweep" envconfig:"SCHEDULE_SWEEP"`
	TravelSummary string        `yaml:"travel_summary" envconfig:"SCHEDULE_TRAVEL_SUMMARY"`
	FavorSummary  string        `yaml:"favor_summary" envconfig:"SCHEDULE_FAVOR_SUMMARY"`
	JobTimeout    time.Duration `yaml:"job_timeout" envconfig:"SCHEDULE_JOB_TIMEOUT"`
	// Disabled turns the scheduler off, e.g. when another replica runs it.
	Disabled bool `yaml:"disabled" envconfig:"SCHEDULE_DISABLED"`
}

// Normalize fills defaults and validates the specs.
func (c *Config) Normalize() error {
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = "Asia/Yangon"
	}
	if c.Sweep == "" {
		c.Sweep = "0 * * * *"
	}
	if c.TravelSummary == "" {
		c.TravelSummary = "0 8 * * *"
	}
	if c.FavorSummary == "" {
		c.FavorSummary = "0 20 * * *"
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("schedule: timezone %q: %w", c.Timezone, err)
	}
	for name, spec := range map[string]string{"sweep": c.Sweep, "travel_summary": c.TravelSummary, "favor_summary": c.FavorSummary} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("schedule: %s %q: %w", name, spec, err)
		}
	}
	return nil
}

// Location returns the configured timezone. Call after Normalize.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Sweeper is the expiry job.
type Sweeper interface {
	Sweep(ctx context.Context) (expiry.SweepReport, error)
}

// Posts lists active posts for summaries.
type Posts interface {
	ListActive(ctx context.Context, kind domain.Kind) ([]domain.Post, error)
}

// Subscribers lists users who opted into daily summaries.
type Subscribers interface {
	ListSubscribers(ctx context.Context, topic store.Topic) ([]int64, error)
}

// Announcer posts to the broadcast channel.
type Announcer interface {
	AnnounceText(ctx context.Context, text string) error
}

// DirectMessenger queues a private MarkdownV2 message to a user.
type DirectMessenger interface {
	Direct(ctx context.Context, userID int64, text string) error
}

// Deps are the collaborators the jobs use. Subscribers and Messenger are
// optional; without them summaries only go to the channel.
type Deps struct {
	Sweeper     Sweeper
	Posts       Posts
	Announcer   Announcer
	Subscribers Subscribers
	Messenger   DirectMessenger
}

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	deps    Deps
	entries map[string]cron.EntryID
}

// New registers the jobs. It does not start them.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	log := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location()),
			cron.WithLogger(log),
			cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
		),
		cfg:     cfg,
		deps:    deps,
		entries: make(map[string]cron.EntryID),
	}
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{JobSweep, cfg.Sweep, s.sweep},
		{JobTravelSummary, cfg.TravelSummary, func(ctx context.Context) error { return s.summary(ctx, domain.KindTravel) }},
		{JobFavorSummary, cfg.FavorSummary, func(ctx context.Context) error { return s.summary(ctx, domain.KindFavor) }},
	}
	for _, j := range jobs {
		name, run := j.name, j.run
		id, err := s.cron.AddFunc(j.spec, func() { s.Run(context.Background(), name, run) })
		if err != nil {
			return nil, fmt.Errorf("schedule: add %s: %w", name, err)
		}
		s.entries[name] = id
	}
	return s, nil
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	attrs := []slog.Attr{slog.String("status", "ok"), slog.String("mode", s.cfg.Timezone)}
	for name, id := range s.entries {
		attrs = append(attrs, slog.Time(name+".next", s.cron.Entry(id).Schedule.Next(time.Now())))
	}
	logger.LogEvent(context.Background(), logger.SCHED, slog.LevelInfo, "schedule.start", attrs...)
}

// Stop stops scheduling and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		logger.LogEvent(ctx, logger.SCHED, slog.LevelInfo, "schedule.stop", slog.String("status", "ok"))
		return nil
	case <-ctx.Done():
		logger.LogEvent(ctx, logger.SCHED, slog.LevelWarn, "schedule.stop", slog.String("status", "cancelled"))
		return ctx.Err()
	}
}

// Run executes one job with the configured timeout and logs its outcome.
func (s *Scheduler) Run(ctx context.Context, name string, run func(context.Context) error) {
	ctx = logger.WithJob(ctx, name)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	logger.LogEvent(ctx, logger.SCHED, slog.LevelDebug, "job.start")
	err := run(ctx)
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.String("err_code", domain.Code(err)), logger.Err(err))
	}
	logger.LogEvent(ctx, logger.SCHED, level, "job.finished", attrs...)
}

// Sweep runs the expiry job once, outside the cron schedule.
func (s *Scheduler) Sweep(ctx context.Context) error {
	return s.sweep(ctx)
}

func (s *Scheduler) sweep(ctx context.Context) error {
	if s.deps.Sweeper == nil {
		return nil
	}
	_, err := s.deps.Sweeper.Sweep(ctx)
	return err
}

// Summary runs a summary job once, outside the cron schedule.
func (s *Scheduler) Summary(ctx context.Context, kind domain.Kind) error {
	return s.summary(ctx, kind)
}

func (s *Scheduler) summary(ctx context.Context, kind domain.Kind) error {
	active, err := s.deps.Posts.ListActive(ctx, kind)
	if err != nil {
		return fmt.Errorf("list active %s: %w", kind, err)
	}
	text := channel.SummaryText(kind, channel.CountByRoute(active))
	if text == "" {
		logger.LogEvent(ctx, logger.SCHED, slog.LevelInfo, "summary.skipped",
			slog.String("status", "skip"),
			slog.String("kind", string(kind)),
		)
		return nil
	}
	if err := s.deps.Announcer.AnnounceText(ctx, text); err != nil {
		return err
	}
	s.directSummary(ctx, kind, text)
	return nil
}

// directSummary queues the summary to daily-summary subscribers. Failures
// are logged; the channel announcement already went out.
func (s *Scheduler) directSummary(ctx context.Context, kind domain.Kind, text string) {
	if s.deps.Subscribers == nil || s.deps.Messenger == nil {
		return
	}
	ids, err := s.deps.Subscribers.ListSubscribers(ctx, store.TopicDailySummary)
	if err != nil {
		logger.LogEvent(ctx, logger.SCHED, slog.LevelWarn, "summary.direct",
			slog.String("status", "fail"),
			logger.Err(err),
		)
		return
	}
	queued := 0
	for _, id := range ids {
		if err := s.deps.Messenger.Direct(ctx, id, text); err != nil {
			logger.LogEvent(ctx, logger.SCHED, slog.LevelWarn, "summary.direct",
				slog.String("status", "fail"),
				slog.Int64("user_id", id),
				logger.Err(err),
			)
			continue
		}
		queued++
	}
	logger.LogEvent(ctx, logger.SCHED, slog.LevelInfo, "summary.direct",
		slog.String("status", "ok"),
		slog.String("kind", string(kind)),
		slog.Int("count", queued),
	)
}

// cronLogger routes cron's own logging through the structured logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if !logger.ShouldSampleDebug() {
		return
	}
	logger.SCHED.Debug("", append([]interface{}{"event", "cron." + msg}, keysAndValues...)...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{"event", "cron." + msg, "status", "fail", "err", err}, keysAndValues...)
	logger.SCHED.Error("", args...)
}
