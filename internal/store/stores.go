package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/charlesng35/accessdesk/internal/models"
)

// Stores bundles the tables of the access core.
type Stores struct {
	db *gorm.DB

	Employees            Reader[models.Employee]
	Policies             Reader[models.AccessPolicy]
	TrainingRequirements Reader[models.TrainingRequirement]
	TrainingRecords      RecordStore[models.UserTrainingRecord]
	Grants               RecordStore[models.AccessGrant]
	Approvals            RecordStore[models.ApprovalRequest]
	WhitelistedIPs       RecordStore[models.WhitelistedIP]
	APIKeys              RecordStore[models.APIKey]
	AuditEvents          AppendOnly[models.AuditEvent]
	Notifications        RecordStore[models.Notification]
}

// New binds every table to db.
func New(db *gorm.DB) *Stores {
	return &Stores{
		db:                   db,
		Employees:            NewTable[models.Employee](db),
		Policies:             NewTable[models.AccessPolicy](db),
		TrainingRequirements: NewTable[models.TrainingRequirement](db),
		TrainingRecords:      NewTable[models.UserTrainingRecord](db),
		Grants:               NewTable[models.AccessGrant](db),
		Approvals:            NewTable[models.ApprovalRequest](db),
		WhitelistedIPs:       NewTable[models.WhitelistedIP](db),
		APIKeys:              NewTable[models.APIKey](db),
		AuditEvents:          NewTable[models.AuditEvent](db),
		Notifications:        NewTable[models.Notification](db),
	}
}

// Transaction runs fn against transaction scoped tables. Returning an error
// from fn rolls the transaction back.
func (s *Stores) Transaction(ctx context.Context, fn func(tx *Stores) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}
