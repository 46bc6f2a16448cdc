package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/database/testutil"
	"github.com/charlesng35/accessdesk/internal/grants"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/store"
)

type countingExpirer struct {
	calls int
	n     int
	err   error
}

func (c *countingExpirer) ExpireDue(context.Context) (int, error) {
	c.calls++
	return c.n, c.err
}

type stubReminder struct{ age time.Duration }

func (s *stubReminder) RemindStale(_ context.Context, age time.Duration) (int, error) {
	s.age = age
	return 1, nil
}

type stubArchiver struct{ day time.Time }

func (s *stubArchiver) ArchiveDay(_ context.Context, day time.Time) (string, error) {
	s.day = day
	return "audit/key.ndjson", nil
}

func TestRunOnceRunsEveryJob(t *testing.T) {
	grantsJob := &countingExpirer{n: 2}
	failing := &countingExpirer{err: errors.New("db down")}
	keys := &countingExpirer{}
	reminder := &stubReminder{}
	archiver := &stubArchiver{}
	now := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)

	s := NewScheduler(
		WithNow(func() time.Time { return now }),
		WithExpirer("grants", grantsJob),
		WithExpirer("whitelist", failing),
		WithExpirer("api_keys", keys),
		WithReminder(reminder, 12*time.Hour),
		WithArchiver(archiver),
	)

	err := s.RunOnce(context.Background())
	require.ErrorContains(t, err, "db down")
	require.Equal(t, 1, grantsJob.calls)
	require.Equal(t, 1, failing.calls)
	require.Equal(t, 1, keys.calls)
	require.Equal(t, 12*time.Hour, reminder.age)
	require.Equal(t, time.Date(2026, 3, 9, 1, 0, 0, 0, time.UTC), archiver.day)
}

func TestStartRegistersConfiguredJobs(t *testing.T) {
	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	s := NewScheduler(
		WithCron(c),
		WithExpirer("grants", &countingExpirer{}),
		WithReminder(&stubReminder{}, 0),
		WithExpirySchedule("@every 1m"),
	)
	require.NoError(t, s.Start())
	<-s.Stop().Done()
	require.Len(t, c.Entries(), 2)

	bad := NewScheduler(WithExpirer("grants", &countingExpirer{}), WithExpirySchedule("not a spec"))
	require.Error(t, bad.Start())
}

func TestExpireDueRetiresLapsedGrants(t *testing.T) {
	ctx := context.Background()
	stores := store.New(testutil.MustOpenTestDB(t, testutil.WithSeedData()))
	rec, err := audit.NewRecorder(stores.AuditEvents)
	require.NoError(t, err)

	clock := time.Now().UTC()
	issuer, err := grants.NewIssuer(stores.Grants, rec, grants.WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	_, err = issuer.Issue(ctx, grants.IssueInput{
		UserEmail:    "eve@company.com",
		ResourceType: "database",
		ResourceName: "production_db",
		AccessLevel:  "read_write",
		GrantedBy:    "mallory@company.com",
		TTL:          time.Hour,
	})
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)
	s := NewScheduler(WithExpirer("grants", issuer))
	require.NoError(t, s.ExpireDue(ctx))

	active, err := stores.Grants.Count(ctx, store.Where("status", models.GrantActive))
	require.NoError(t, err)
	require.Zero(t, active)
	expired, err := stores.AuditEvents.Count(ctx, store.Where("event_type", string(audit.EventGrantExpired)))
	require.NoError(t, err)
	require.EqualValues(t, 1, expired)
}
