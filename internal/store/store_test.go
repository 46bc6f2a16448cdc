package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/charlesng35/accessdesk/internal/database/testutil"
	"github.com/charlesng35/accessdesk/internal/models"
	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
)

func TestTableAppendFindCount(t *testing.T) {
	stores := New(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"staging_db", "production_db", "analytics_db"} {
		grant := &models.AccessGrant{
			UserEmail:    "eve@company.com",
			ResourceType: "database",
			ResourceName: name,
			AccessLevel:  "read_only",
			GrantedBy:    models.GrantedByAuto,
			GrantedDate:  base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, stores.Grants.Append(ctx, grant))
		require.Equal(t, models.GrantActive, grant.Status)
	}

	q := Where("user_email", "eve@company.com").OrderByDesc("granted_date")
	all, err := stores.Grants.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "analytics_db", all[0].ResourceName)

	page, err := stores.Grants.Find(ctx, q.Page(2, 1))
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "production_db", page[0].ResourceName)

	n, err := stores.Grants.Count(ctx, q.Page(1, 0))
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	n, err = stores.Grants.Count(ctx, All().In("resource_name", []string{"staging_db", "analytics_db"}))
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = stores.Grants.Count(ctx, All().Contains("resource_name", "prod"))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = stores.Grants.Count(ctx, All().Contains("resource_name", "_"))
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	n, err = stores.Grants.Count(ctx, All().Gte("granted_date", base.Add(time.Hour)).Lt("granted_date", base.Add(2*time.Hour)))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestTableFirstNotFound(t *testing.T) {
	stores := New(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))

	_, err := stores.Employees.First(context.Background(), Where("email", "nobody@company.com"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTableUpdateIsConditional(t *testing.T) {
	stores := New(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	ctx := context.Background()

	key := models.PendingKeyFor("eve@company.com", "database", "production_db")
	req := &models.ApprovalRequest{
		RequestID:      "REQ-1",
		RequesterEmail: "eve@company.com",
		ResourceType:   "database",
		ResourceName:   "production_db",
		ApproverEmail:  "mallory@company.com",
		Status:         models.ApprovalPending,
		CreatedAt:      time.Now().UTC(),
		PendingKey:     &key,
	}
	require.NoError(t, stores.Approvals.Append(ctx, req))

	cas := Where("request_id", "REQ-1").Eq("status", models.ApprovalPending)
	rows, err := stores.Approvals.Update(ctx, cas, map[string]any{"status": models.ApprovalApproved, "pending_key": nil})
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	rows, err = stores.Approvals.Update(ctx, cas, map[string]any{"status": models.ApprovalRejected})
	require.NoError(t, err)
	require.Zero(t, rows)

	_, err = stores.Approvals.Update(ctx, All(), map[string]any{"status": models.ApprovalRejected})
	require.ErrorIs(t, err, errUnconditionalUpdate)

	got, err := stores.Approvals.First(ctx, Where("request_id", "REQ-1"))
	require.NoError(t, err)
	require.Equal(t, models.ApprovalApproved, got.Status)
	require.Nil(t, got.PendingKey)
}

func TestPendingKeyUniqueness(t *testing.T) {
	stores := New(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	ctx := context.Background()

	key := models.PendingKeyFor("eve@company.com", "database", "production_db")
	mk := func(id string) *models.ApprovalRequest {
		k := key
		return &models.ApprovalRequest{
			RequestID: id, RequesterEmail: "eve@company.com", ResourceType: "database",
			ResourceName: "production_db", ApproverEmail: "mallory@company.com",
			Status: models.ApprovalPending, CreatedAt: time.Now().UTC(), PendingKey: &k,
		}
	}

	require.NoError(t, stores.Approvals.Append(ctx, mk("REQ-1")))
	require.ErrorIs(t, stores.Approvals.Append(ctx, mk("REQ-2")), ErrDuplicate)
}

func TestAuditEventsCannotBeRewritten(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	stores := New(db)
	ctx := context.Background()

	event := &models.AuditEvent{EventID: "evt-1", Timestamp: time.Now().UTC(), EventType: "ACCESS_CHECKED", Severity: "LOW", Action: "check", ActionResult: "SUCCESS"}
	require.NoError(t, stores.AuditEvents.Append(ctx, event))

	// The append-only interface offers no update; the model hooks guard raw gorm.
	require.Error(t, db.Model(event).Update("action", "tampered").Error)
	require.Error(t, db.Delete(event).Error)

	got, err := stores.AuditEvents.First(ctx, Where("event_id", "evt-1"))
	require.NoError(t, err)
	require.Equal(t, "check", got.Action)
}

func TestTransactionRollsBack(t *testing.T) {
	stores := New(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	ctx := context.Background()
	boom := errors.New("boom")

	err := stores.Transaction(ctx, func(tx *Stores) error {
		require.NoError(t, tx.Grants.Append(ctx, &models.AccessGrant{
			UserEmail: "eve@company.com", ResourceType: "saas", ResourceName: "figma",
			AccessLevel: "read_only", GrantedBy: models.GrantedByAuto, GrantedDate: time.Now(),
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := stores.Grants.Count(ctx, All())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestInvalidFieldNamesAreRejected(t *testing.T) {
	stores := New(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))

	_, err := stores.Grants.Find(context.Background(), Where("status; DROP TABLE access_grants", "x"))
	require.Error(t, err)
	_, err = stores.Grants.Find(context.Background(), All().OrderByDesc("granted_date desc"))
	require.Error(t, err)
}

func TestUnavailableStore(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT .* FROM "employees"`).WillReturnError(errors.New("connection reset by peer"))

	_, err = New(db).Employees.Find(context.Background(), Where("email", "eve@company.com"))
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorContains(t, err, "connection reset by peer")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslateVendorErrors(t *testing.T) {
	require.Nil(t, translate(nil))
	require.ErrorIs(t, translate(gorm.ErrRecordNotFound), ErrNotFound)
	require.ErrorIs(t, translate(gorm.ErrDuplicatedKey), ErrDuplicate)
	require.ErrorIs(t, translate(&pgconn.PgError{Code: "23505"}), ErrDuplicate)
	require.ErrorIs(t, translate(&mysql.MySQLError{Number: 1062}), ErrDuplicate)
	require.ErrorIs(t, translate(errors.New("UNIQUE constraint failed: approval_requests.pending_key")), ErrDuplicate)
	require.ErrorIs(t, translate(&pgconn.PgError{Code: "57P01"}), ErrUnavailable)
}

func TestClassify(t *testing.T) {
	require.Nil(t, Classify(nil))
	require.ErrorIs(t, Classify(ErrNotFound), apperrors.ErrNotFound)
	require.ErrorIs(t, Classify(translate(errors.New("disk I/O error"))), apperrors.ErrStoreUnavailable)

	dup := translate(gorm.ErrDuplicatedKey)
	require.Equal(t, dup, Classify(dup))
}
