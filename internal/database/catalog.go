package database

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/charlesng35/accessdesk/internal/models"
)

//go:embed seed/catalog.yaml
var defaultCatalog []byte

// Catalog is the static configuration loaded at startup: who works here, which
// resources exist and what they require.
type Catalog struct {
	Employees       []EmployeeSpec       `yaml:"employees"`
	Policies        []PolicySpec         `yaml:"policies"`
	Training        []TrainingSpec       `yaml:"training"`
	TrainingRecords []TrainingRecordSpec `yaml:"training_records"`
}

type EmployeeSpec struct {
	Email                    string         `yaml:"email"`
	Name                     string         `yaml:"name"`
	Role                     string         `yaml:"role"`
	Team                     string         `yaml:"team"`
	Manager                  string         `yaml:"manager"`
	SecurityTrainingComplete bool           `yaml:"security_training_complete"`
	AccessRoles              []string       `yaml:"access_roles"`
	Attributes               map[string]any `yaml:"attributes"`
}

type PolicySpec struct {
	ResourceType          string `yaml:"resource_type"`
	ResourceName          string `yaml:"resource_name"`
	RequiredRole          string `yaml:"required_role"`
	RequiresApproval      bool   `yaml:"requires_approval"`
	AutoApproveConditions string `yaml:"auto_approve_conditions"`
	ApproverRole          string `yaml:"approver_role"`
	Description           string `yaml:"description"`
}

type TrainingSpec struct {
	ResourceType string                `yaml:"resource_type"`
	ResourceName string                `yaml:"resource_name"`
	Items        []models.TrainingItem `yaml:"items"`
}

// TrainingRecordSpec seeds a completion relative to the seeding time.
type TrainingRecordSpec struct {
	User             string `yaml:"user"`
	TrainingID       string `yaml:"training_id"`
	TrainingName     string `yaml:"training_name"`
	Completed        bool   `yaml:"completed"`
	CompletedDaysAgo int    `yaml:"completed_days_ago"`
	ValidForDays     int    `yaml:"valid_for_days"`
	CertificateURL   string `yaml:"certificate_url"`
}

// DefaultCatalog returns the embedded demo catalog.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalog))
}

// LoadCatalogFile reads a catalog from disk, falling back to the embedded one
// when path is empty.
func LoadCatalogFile(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// LoadCatalog decodes and validates a YAML catalog.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var catalog Catalog
	if err := dec.Decode(&catalog); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// Validate checks referential integrity inside the catalog.
func (c *Catalog) Validate() error {
	emails := make(map[string]struct{}, len(c.Employees))
	for i, emp := range c.Employees {
		email := normaliseEmail(emp.Email)
		if email == "" {
			return fmt.Errorf("catalog: employee %d has no email", i)
		}
		if _, dup := emails[email]; dup {
			return fmt.Errorf("catalog: duplicate employee %s", email)
		}
		emails[email] = struct{}{}
	}
	for _, emp := range c.Employees {
		if manager := normaliseEmail(emp.Manager); manager != "" {
			if _, ok := emails[manager]; !ok {
				return fmt.Errorf("catalog: %s reports to unknown manager %s", emp.Email, emp.Manager)
			}
		}
	}

	policies := make(map[string]struct{}, len(c.Policies))
	for _, p := range c.Policies {
		if p.ResourceType == "" || p.ResourceName == "" {
			return errors.New("catalog: policy without resource type or name")
		}
		key := p.ResourceType + ":" + p.ResourceName
		if _, dup := policies[key]; dup {
			return fmt.Errorf("catalog: duplicate policy %s", key)
		}
		policies[key] = struct{}{}
	}

	trainingIDs := make(map[string]struct{})
	for _, t := range c.Training {
		seen := make(map[string]struct{}, len(t.Items))
		for _, item := range t.Items {
			if strings.TrimSpace(item.ID) == "" {
				return fmt.Errorf("catalog: training for %s:%s has an item without id", t.ResourceType, t.ResourceName)
			}
			if _, dup := seen[item.ID]; dup {
				return fmt.Errorf("catalog: training for %s:%s repeats %s", t.ResourceType, t.ResourceName, item.ID)
			}
			seen[item.ID] = struct{}{}
			trainingIDs[item.ID] = struct{}{}
		}
	}

	for _, rec := range c.TrainingRecords {
		if _, ok := emails[normaliseEmail(rec.User)]; !ok {
			return fmt.Errorf("catalog: training record for unknown employee %s", rec.User)
		}
		if _, ok := trainingIDs[rec.TrainingID]; !ok {
			return fmt.Errorf("catalog: training record references unknown training %s", rec.TrainingID)
		}
	}
	return nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
