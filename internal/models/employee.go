package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Employee is a person who can request access. Employees are created from the
// seed catalog and are read-only to the access core.
type Employee struct {
	Email                    string            `gorm:"primaryKey;type:varchar(255)" json:"email"`
	Name                     string            `gorm:"not null" json:"name"`
	Role                     string            `gorm:"index" json:"role"`
	Team                     string            `gorm:"index" json:"team"`
	ManagerEmail             string            `gorm:"index" json:"manager_email"`
	SecurityTrainingComplete bool              `gorm:"default:false" json:"security_training_complete"`
	Attributes               datatypes.JSONMap `json:"attributes"`
	CreatedAt                time.Time         `json:"created_at"`
	UpdatedAt                time.Time         `json:"updated_at"`

	AccessRoles []Role `gorm:"many2many:employee_roles;joinForeignKey:EmployeeEmail;joinReferences:RoleID" json:"access_roles,omitempty"`
}

// Attribute resolves a condition key against the employee. Built-in columns
// take precedence over free-form attributes.
func (e Employee) Attribute(key string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "email":
		return e.Email, true
	case "name":
		return e.Name, true
	case "role":
		return e.Role, true
	case "team":
		return e.Team, true
	case "manager_email":
		return e.ManagerEmail, true
	case "security_training_complete":
		return strconv.FormatBool(e.SecurityTrainingComplete), true
	}

	if e.Attributes == nil {
		return "", false
	}
	raw, ok := e.Attributes[key]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return fmt.Sprint(v), true
	}
}

// BeforeSave normalises identifiers so lookups by email are case-insensitive.
func (e *Employee) BeforeSave(tx *gorm.DB) error {
	e.Email = strings.ToLower(strings.TrimSpace(e.Email))
	e.ManagerEmail = strings.ToLower(strings.TrimSpace(e.ManagerEmail))
	e.Name = strings.TrimSpace(e.Name)
	if e.Email == "" {
		return errors.New("employee: email is required")
	}
	return nil
}
