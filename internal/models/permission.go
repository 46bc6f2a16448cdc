package models

// Permission is a gateway capability such as "approval.resolve". The ID is the
// permission identifier itself.
type Permission struct {
	ID          string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Module      string `gorm:"not null;index" json:"module"`
	Description string `json:"description"`
	DependsOn   string `gorm:"type:text" json:"depends_on"`

	Roles []Role `gorm:"many2many:role_permissions;" json:"roles,omitempty"`
}
