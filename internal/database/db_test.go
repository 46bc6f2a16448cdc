package database

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/permissions"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", DSN: "file:db_test_open?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, db.Exec("SELECT 1").Error)
	require.NoError(t, Ping(context.Background(), db))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.ErrorContains(t, err, "unsupported database driver")
}

func TestAutoMigrateAndSeedIsIdempotent(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", DSN: "file:db_test_seed?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, AutoMigrateAndSeed(ctx, db, catalog))
	require.NoError(t, AutoMigrateAndSeed(ctx, db, catalog))

	var employees, policies, records, roles int64
	require.NoError(t, db.Model(&models.Employee{}).Count(&employees).Error)
	require.NoError(t, db.Model(&models.AccessPolicy{}).Count(&policies).Error)
	require.NoError(t, db.Model(&models.UserTrainingRecord{}).Count(&records).Error)
	require.NoError(t, db.Model(&models.Role{}).Count(&roles).Error)

	require.EqualValues(t, len(catalog.Employees), employees)
	require.EqualValues(t, len(catalog.Policies), policies)
	require.EqualValues(t, len(catalog.TrainingRecords), records)
	require.EqualValues(t, len(permissions.DefaultRoles()), roles)

	var eve models.Employee
	require.NoError(t, db.Preload("AccessRoles").First(&eve, "email = ?", "eve@company.com").Error)
	require.Equal(t, "mallory@company.com", eve.ManagerEmail)
	require.Len(t, eve.AccessRoles, 1)
	require.Equal(t, permissions.RoleEmployee, eve.AccessRoles[0].ID)
	value, ok := eve.Attribute("onboarding_complete")
	require.True(t, ok)
	require.Equal(t, "true", value)

	var req models.TrainingRequirement
	require.NoError(t, db.First(&req, "resource_type = ? AND resource_name = ?", "database", "production_db").Error)
	require.Len(t, req.Items, 2)
	require.Equal(t, "gdpr-basics", req.Items[0].ID)
	require.Equal(t, 365, req.Items[0].ValidForDays)
}

func TestLoadCatalogValidation(t *testing.T) {
	cases := map[string]string{
		"unknown manager": `
employees:
  - email: a@company.com
    manager: ghost@company.com
`,
		"duplicate policy": `
policies:
  - {resource_type: db, resource_name: x}
  - {resource_type: db, resource_name: x}
`,
		"record for unknown training": `
employees:
  - email: a@company.com
training_records:
  - {user: a@company.com, training_id: nope}
`,
		"unknown field": `
employes: []
`,
		"training without id": `
training:
  - resource_type: db
    resource_name: x
    items:
      - name: missing id
`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCatalog(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadCatalogEmptyDocument(t *testing.T) {
	catalog, err := LoadCatalog(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, catalog.Employees)
}

func TestLoadCatalogFileFallsBackToEmbedded(t *testing.T) {
	catalog, err := LoadCatalogFile("")
	require.NoError(t, err)
	require.NotEmpty(t, catalog.Policies)

	_, err = LoadCatalogFile("/does/not/exist.yaml")
	require.Error(t, err)
}
