// Package maintenance runs the periodic jobs that keep grants, perimeter
// exceptions and credentials from outliving their expiry.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/accessdesk/pkg/logger"
	"github.com/charlesng35/accessdesk/pkg/metrics"
)

const (
	defaultExpirySpec   = "@every 5m"
	defaultReminderSpec = "@hourly"
	defaultArchiveSpec  = "@daily"
	defaultReminderAge  = 24 * time.Hour
)

// Expirer retires records past their expiry and reports how many changed.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// Reminder nudges approvers about requests older than age.
type Reminder interface {
	RemindStale(ctx context.Context, age time.Duration) (int, error)
}

// DayArchiver exports one UTC day of audit events.
type DayArchiver interface {
	ArchiveDay(ctx context.Context, day time.Time) (string, error)
}

type expiryJob struct {
	name    string
	expirer Expirer
}

// Scheduler coordinates background maintenance: expiring grants, whitelist
// entries and API keys, reminding approvers and archiving the audit trail.
type Scheduler struct {
	expirers    []expiryJob
	reminder    Reminder
	reminderAge time.Duration
	archiver    DayArchiver

	cron *cron.Cron
	now  func() time.Time
	log  *zap.Logger

	expirySchedule   string
	reminderSchedule string
	archiveSchedule  string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used to pick the archive day.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithExpirer adds a named expiry job. Jobs run in the order added.
func WithExpirer(name string, e Expirer) Option {
	return func(s *Scheduler) {
		if e != nil {
			s.expirers = append(s.expirers, expiryJob{name: name, expirer: e})
		}
	}
}

// WithReminder enables approver reminders for requests pending longer than age.
func WithReminder(r Reminder, age time.Duration) Option {
	return func(s *Scheduler) {
		s.reminder = r
		if age > 0 {
			s.reminderAge = age
		}
	}
}

// WithArchiver enables the daily audit archive of the previous day.
func WithArchiver(a DayArchiver) Option {
	return func(s *Scheduler) { s.archiver = a }
}

// WithExpirySchedule overrides the cron specification for expiry jobs.
func WithExpirySchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.expirySchedule = spec
		}
	}
}

// WithReminderSchedule overrides the cron specification for reminders.
func WithReminderSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.reminderSchedule = spec
		}
	}
}

// WithArchiveSchedule overrides the cron specification for the audit archive.
func WithArchiveSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.archiveSchedule = spec
		}
	}
}

// NewScheduler constructs a Scheduler. Jobs without a collaborator are skipped.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		reminderAge:      defaultReminderAge,
		now:              time.Now,
		log:              logger.WithModule("maintenance"),
		expirySchedule:   defaultExpirySpec,
		reminderSchedule: defaultReminderSpec,
		archiveSchedule:  defaultArchiveSpec,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

// Start registers the configured jobs and launches the cron scheduler.
func (s *Scheduler) Start() error {
	if len(s.expirers) > 0 {
		if _, err := s.cron.AddFunc(s.expirySchedule, func() {
			if err := s.ExpireDue(context.Background()); err != nil {
				s.log.Warn("expiry run failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if s.reminder != nil {
		if _, err := s.cron.AddFunc(s.reminderSchedule, func() {
			if err := s.Remind(context.Background()); err != nil {
				s.log.Warn("approval reminders failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if s.archiver != nil {
		if _, err := s.cron.AddFunc(s.archiveSchedule, func() {
			if err := s.ArchivePreviousDay(context.Background()); err != nil {
				s.log.Warn("audit archive failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// ExpireDue runs every expiry job. A failing job does not stop the others.
func (s *Scheduler) ExpireDue(ctx context.Context) error {
	var errs error
	for _, job := range s.expirers {
		n, err := job.expirer.ExpireDue(ctx)
		s.observe(job.name, err)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if n > 0 {
			s.log.Info("expired records", zap.String("job", job.name), zap.Int("count", n))
		}
	}
	return errs
}

// Remind sends approver reminders.
func (s *Scheduler) Remind(ctx context.Context) error {
	if s.reminder == nil {
		return nil
	}
	n, err := s.reminder.RemindStale(ctx, s.reminderAge)
	s.observe("approval_reminders", err)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("approval reminders sent", zap.Int("count", n))
	}
	return nil
}

// ArchivePreviousDay exports yesterday's audit events.
func (s *Scheduler) ArchivePreviousDay(ctx context.Context) error {
	if s.archiver == nil {
		return nil
	}
	_, err := s.archiver.ArchiveDay(ctx, s.now().UTC().AddDate(0, 0, -1))
	s.observe("audit_archive", err)
	return err
}

// RunOnce executes every configured job sequentially. Used at startup and in tests.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return multierr.Combine(
		s.ExpireDue(ctx),
		s.Remind(ctx),
		s.ArchivePreviousDay(ctx),
	)
}

func (s *Scheduler) observe(job string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()
}
