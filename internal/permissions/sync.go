package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/accessdesk/internal/models"
)

// Sync upserts registered permissions and the default roles, then attaches
// each role's permissions. Existing role assignments are kept.
func Sync(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("permission: db is required")
	}
	if err := ValidateDependencies(); err != nil {
		return err
	}

	tx := db.WithContext(ensureContext(ctx))
	for _, perm := range GetAll() {
		depends, err := json.Marshal(perm.DependsOn)
		if err != nil {
			return fmt.Errorf("permission: marshal depends_on for %s: %w", perm.ID, err)
		}

		record := models.Permission{
			ID:          perm.ID,
			Module:      perm.Module,
			Description: perm.Description,
			DependsOn:   string(depends),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"module", "description", "depends_on"}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("permission: sync %s: %w", perm.ID, err)
		}
	}

	for _, def := range DefaultRoles() {
		role := models.Role{
			BaseModel:   models.BaseModel{ID: def.ID},
			Name:        def.Name,
			Description: def.Description,
			IsSystem:    true,
		}
		if err := tx.Where(models.Role{BaseModel: models.BaseModel{ID: def.ID}}).Attrs(role).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("permission: sync role %s: %w", def.ID, err)
		}
		if err := attachPermissions(tx, &role, def.Permissions); err != nil {
			return fmt.Errorf("permission: attach %s: %w", def.ID, err)
		}
	}
	return nil
}

func attachPermissions(tx *gorm.DB, role *models.Role, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	var existing []models.Permission
	if err := tx.Model(role).Association("Permissions").Find(&existing); err != nil {
		return err
	}
	current := make(map[string]struct{}, len(existing))
	for _, perm := range existing {
		current[perm.ID] = struct{}{}
	}

	var perms []models.Permission
	if err := tx.Where("id IN ?", ids).Find(&perms).Error; err != nil {
		return err
	}

	missing := perms[:0]
	for _, perm := range perms {
		if _, ok := current[perm.ID]; !ok {
			missing = append(missing, perm)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return tx.Model(role).Association("Permissions").Append(missing)
}
