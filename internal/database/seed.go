package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/permissions"
)

// SeedCatalog syncs permissions and roles and loads the catalog. Rows that
// already exist are left untouched, so reseeding never overwrites live data.
func SeedCatalog(ctx context.Context, db *gorm.DB, catalog *Catalog) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := permissions.Sync(ctx, db); err != nil {
		return err
	}
	if catalog == nil {
		return nil
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := seedEmployees(tx, catalog.Employees); err != nil {
			return err
		}
		if err := seedPolicies(tx, catalog.Policies); err != nil {
			return err
		}
		if err := seedTraining(tx, catalog.Training); err != nil {
			return err
		}
		return seedTrainingRecords(tx, catalog.TrainingRecords, time.Now().UTC())
	})
}

func seedEmployees(tx *gorm.DB, specs []EmployeeSpec) error {
	for _, spec := range specs {
		emp := models.Employee{
			Email:                    normaliseEmail(spec.Email),
			Name:                     spec.Name,
			Role:                     spec.Role,
			Team:                     spec.Team,
			ManagerEmail:             normaliseEmail(spec.Manager),
			SecurityTrainingComplete: spec.SecurityTrainingComplete,
			Attributes:               datatypes.JSONMap(spec.Attributes),
		}
		if err := tx.Where(models.Employee{Email: emp.Email}).Attrs(emp).FirstOrCreate(&emp).Error; err != nil {
			return fmt.Errorf("employee %s: %w", emp.Email, err)
		}

		roles := spec.AccessRoles
		if len(roles) == 0 {
			roles = []string{permissions.RoleEmployee}
		}
		var attach []models.Role
		if err := tx.Where("id IN ?", roles).Find(&attach).Error; err != nil {
			return err
		}
		if len(attach) != len(roles) {
			return fmt.Errorf("employee %s: unknown access role in %v", emp.Email, roles)
		}
		if err := tx.Model(&emp).Association("AccessRoles").Append(attach); err != nil {
			return fmt.Errorf("employee %s roles: %w", emp.Email, err)
		}
	}
	return nil
}

func seedPolicies(tx *gorm.DB, specs []PolicySpec) error {
	for _, spec := range specs {
		policy := models.AccessPolicy{
			ResourceType:          spec.ResourceType,
			ResourceName:          spec.ResourceName,
			RequiredRole:          spec.RequiredRole,
			RequiresApproval:      spec.RequiresApproval,
			AutoApproveConditions: spec.AutoApproveConditions,
			ApproverRole:          spec.ApproverRole,
			Description:           spec.Description,
		}
		err := tx.Where("resource_type = ? AND resource_name = ?", spec.ResourceType, spec.ResourceName).
			Attrs(policy).FirstOrCreate(&policy).Error
		if err != nil {
			return fmt.Errorf("policy %s:%s: %w", spec.ResourceType, spec.ResourceName, err)
		}
	}
	return nil
}

func seedTraining(tx *gorm.DB, specs []TrainingSpec) error {
	for _, spec := range specs {
		req := models.TrainingRequirement{
			ResourceType: spec.ResourceType,
			ResourceName: spec.ResourceName,
			Items:        datatypes.NewJSONSlice(spec.Items),
		}
		err := tx.Where("resource_type = ? AND resource_name = ?", spec.ResourceType, spec.ResourceName).
			Attrs(req).FirstOrCreate(&req).Error
		if err != nil {
			return fmt.Errorf("training %s:%s: %w", spec.ResourceType, spec.ResourceName, err)
		}
	}
	return nil
}

func seedTrainingRecords(tx *gorm.DB, specs []TrainingRecordSpec, now time.Time) error {
	for _, spec := range specs {
		email := normaliseEmail(spec.User)

		var existing models.UserTrainingRecord
		err := tx.Where("user_email = ? AND training_id = ?", email, spec.TrainingID).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		record := models.UserTrainingRecord{
			UserEmail:    email,
			TrainingID:   spec.TrainingID,
			TrainingName: spec.TrainingName,
			Completed:    spec.Completed,
		}
		if spec.Completed {
			completed := now.AddDate(0, 0, -spec.CompletedDaysAgo)
			record.CompletedDate = &completed
			if spec.ValidForDays > 0 {
				expires := completed.AddDate(0, 0, spec.ValidForDays)
				record.ExpiresAt = &expires
			}
		}
		if spec.CertificateURL != "" {
			url := spec.CertificateURL
			record.CertificateURL = &url
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("training record %s/%s: %w", email, spec.TrainingID, err)
		}
	}
	return nil
}
