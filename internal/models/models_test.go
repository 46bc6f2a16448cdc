package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)

	keep := BaseModel{ID: "fixed"}
	require.NoError(t, keep.BeforeCreate(nil))
	require.Equal(t, "fixed", keep.ID)
}

func TestEmployeeAttributeLookup(t *testing.T) {
	emp := Employee{
		Email:                    "eve@company.com",
		Team:                     "Backend",
		Role:                     "engineer",
		SecurityTrainingComplete: true,
		Attributes: datatypes.JSONMap{
			"onboarding_complete": "false",
			"contractor":          true,
			"clearance":           float64(2),
		},
	}

	cases := map[string]string{
		"team":                       "Backend",
		"ROLE":                       "engineer",
		"security_training_complete": "true",
		"onboarding_complete":        "false",
		"contractor":                 "true",
		"clearance":                  "2",
	}
	for key, want := range cases {
		got, ok := emp.Attribute(key)
		require.True(t, ok, key)
		require.Equal(t, want, got, key)
	}

	_, ok := emp.Attribute("location")
	require.False(t, ok)
}

func TestEmployeeBeforeSaveNormalisesEmail(t *testing.T) {
	emp := &Employee{Email: "  Eve@Company.com ", ManagerEmail: "Mallory@Company.com", Name: " Eve "}
	require.NoError(t, emp.BeforeSave(nil))
	require.Equal(t, "eve@company.com", emp.Email)
	require.Equal(t, "mallory@company.com", emp.ManagerEmail)
	require.Equal(t, "Eve", emp.Name)

	require.Error(t, (&Employee{}).BeforeSave(nil))
}

func TestAccessPolicyDefaultsConditions(t *testing.T) {
	p := &AccessPolicy{ResourceType: "cloud", ResourceName: "aws_dev"}
	require.NoError(t, p.BeforeSave(nil))
	require.Equal(t, NoConditions, p.AutoApproveConditions)

	require.Error(t, (&AccessPolicy{ResourceType: "cloud"}).BeforeSave(nil))
}

func TestTrainingRequirementRejectsBrokenItems(t *testing.T) {
	req := &TrainingRequirement{
		ResourceType: "database",
		ResourceName: "production_db",
		Items: datatypes.JSONSlice[TrainingItem]{
			{ID: " gdpr-101 ", URL: "https://learn.company.com/gdpr"},
			{ID: "secure-sql", Name: "Secure SQL"},
		},
	}
	require.NoError(t, req.BeforeSave(nil))
	require.Equal(t, "gdpr-101", req.Items[0].ID)
	require.Equal(t, "gdpr-101", req.Items[0].Name)

	item, ok := req.Find("secure-sql")
	require.True(t, ok)
	require.Equal(t, "Secure SQL", item.Name)

	req.Items = append(req.Items, TrainingItem{ID: "secure-sql"})
	require.ErrorContains(t, req.BeforeSave(nil), "duplicate")

	req.Items = datatypes.JSONSlice[TrainingItem]{{Name: "nameless"}}
	require.ErrorContains(t, req.BeforeSave(nil), "no id")
}

func TestAccessGrantEffectiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.True(t, AccessGrant{Status: GrantActive}.EffectiveAt(now))
	require.True(t, AccessGrant{Status: GrantActive, ExpiresAt: &future}.EffectiveAt(now))
	require.False(t, AccessGrant{Status: GrantActive, ExpiresAt: &past}.EffectiveAt(now))
	require.False(t, AccessGrant{Status: GrantRevoked}.EffectiveAt(now))
}

func TestAccessGrantBeforeCreateDefaultsActive(t *testing.T) {
	g := &AccessGrant{}
	require.NoError(t, g.BeforeCreate(nil))
	require.Equal(t, GrantActive, g.Status)
	require.NotEmpty(t, g.ID)
}

func TestUserTrainingRecordExpiredAt(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	require.True(t, UserTrainingRecord{ExpiresAt: &past}.ExpiredAt(now))
	require.False(t, UserTrainingRecord{}.ExpiredAt(now))
}

func TestApprovalStatusTerminal(t *testing.T) {
	require.False(t, ApprovalPending.Terminal())
	require.True(t, ApprovalApproved.Terminal())
	require.True(t, ApprovalRejected.Terminal())
}

func TestPendingKeyForIsCaseInsensitiveOnEmail(t *testing.T) {
	require.Equal(t,
		PendingKeyFor("Eve@Company.com", "database", "production_db"),
		PendingKeyFor("eve@company.com ", "database", "production_db"),
	)
}

func TestAuditEventRejectsMutation(t *testing.T) {
	var e AuditEvent
	require.ErrorIs(t, e.BeforeUpdate(nil), ErrAuditImmutable)
	require.ErrorIs(t, e.BeforeDelete(nil), ErrAuditImmutable)
}
