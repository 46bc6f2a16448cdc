package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/charlesng35/accessdesk/internal/approval"
	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/auth"
	"github.com/charlesng35/accessdesk/internal/grants"
	"github.com/charlesng35/accessdesk/internal/integrations"
	"github.com/charlesng35/accessdesk/internal/notifications"
	"github.com/charlesng35/accessdesk/internal/permissions"
	"github.com/charlesng35/accessdesk/internal/policy"
	"github.com/charlesng35/accessdesk/internal/realtime"
	"github.com/charlesng35/accessdesk/internal/services"
	"github.com/charlesng35/accessdesk/internal/store"
	"github.com/charlesng35/accessdesk/internal/training"
)

// Components is the wired object graph shared by the gateway, the scheduler
// and the queue worker.
type Components struct {
	DB       *gorm.DB
	Stores   *store.Stores
	Tokens   *auth.TokenService
	Checker  *permissions.Checker
	Recorder *audit.Recorder
	Audit    *audit.Reader

	Issuer    *grants.Issuer
	Gate      *training.Gate
	Workflow  *approval.Workflow
	Catalog   *policy.Catalog
	Evaluator *policy.Evaluator

	Hub           *realtime.Hub
	Notifications *services.NotificationService
	Access        *services.AccessService
	Identities    *services.IdentityService
	Whitelist     *services.WhitelistService
	APIKeys       *services.APIKeyService

	// Delivery reaches every configured channel directly. When queueing is
	// enabled the workflow enqueues instead and the worker drains into Delivery.
	Delivery notifications.Notifier
	queue    *asynq.Client
}

// NewComponents builds every component from cfg on top of an open, migrated
// database.
func NewComponents(ctx context.Context, db *gorm.DB, cfg *Config) (*Components, error) {
	if db == nil || cfg == nil {
		return nil, errors.New("components: db and config are required")
	}

	c := &Components{DB: db, Stores: store.New(db), Hub: realtime.NewHub(cfg.Server.CORS.Origins...)}

	var err error
	if c.Tokens, err = auth.NewTokenService(cfg.Auth.TokenConfig()); err != nil {
		return nil, err
	}
	if c.Checker, err = permissions.NewChecker(db); err != nil {
		return nil, err
	}
	if c.Recorder, err = audit.NewRecorder(c.Stores.AuditEvents); err != nil {
		return nil, err
	}
	c.Audit = audit.NewReader(c.Stores.AuditEvents)

	integ := cfg.Integrations.IntegrationConfig()
	if c.Issuer, err = grants.NewIssuer(c.Stores.Grants, c.Recorder,
		grants.WithProvisioner(integrations.NewMockProvisioner(integ))); err != nil {
		return nil, err
	}
	if c.Gate, err = training.NewGate(c.Stores, training.WithRecorder(c.Recorder)); err != nil {
		return nil, err
	}

	if c.Notifications, err = services.NewNotificationService(c.Stores.Notifications, c.Hub); err != nil {
		return nil, err
	}
	if c.Delivery, err = c.deliveryChannels(cfg.Notifications); err != nil {
		return nil, err
	}
	notifier := c.Delivery
	if cfg.Notifications.Queue.Enabled {
		c.queue = asynq.NewClient(cfg.Notifications.Queue.WorkerConfig().RedisOpt())
		if notifier, err = notifications.NewQueueNotifier(c.queue); err != nil {
			return nil, err
		}
	}

	if c.Workflow, err = approval.NewWorkflow(c.Stores, c.Issuer, c.Recorder,
		cfg.Access.WorkflowConfig(cfg.Server.BaseURL),
		approval.WithNotifier(notifier),
		approval.WithTicketing(integrations.NewMockTicketing(integ)),
	); err != nil {
		return nil, err
	}
	if c.Catalog, err = policy.NewCatalog(ctx, c.Stores.Policies); err != nil {
		return nil, err
	}
	if c.Evaluator, err = policy.NewEvaluator(c.Catalog, c.Stores.Employees, c.Gate, c.Workflow, c.Issuer, c.Recorder,
		cfg.Access.EvaluatorConfig()); err != nil {
		return nil, err
	}

	if c.Whitelist, err = services.NewWhitelistService(c.Stores, c.Recorder, cfg.Access.WhitelistConfig()); err != nil {
		return nil, err
	}
	if c.APIKeys, err = services.NewAPIKeyService(c.Stores.APIKeys, c.Issuer, c.Recorder, cfg.Access.APIKeyConfig()); err != nil {
		return nil, err
	}
	if c.Identities, err = services.NewIdentityService(c.Stores.Employees, c.Tokens, c.Recorder); err != nil {
		return nil, err
	}
	if c.Access, err = services.NewAccessService(services.AccessDeps{
		Stores:    c.Stores,
		Evaluator: c.Evaluator,
		Gate:      c.Gate,
		Workflow:  c.Workflow,
		Issuer:    c.Issuer,
		Whitelist: c.Whitelist,
		APIKeys:   c.APIKeys,
		Recorder:  c.Recorder,
		Hub:       c.Hub,
	}); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Components) deliveryChannels(cfg NotificationsConfig) (notifications.Notifier, error) {
	channels := notifications.MultiNotifier{notifications.NewLogNotifier()}
	if cfg.InApp {
		channels = append(channels, c.Notifications)
	}
	if cfg.Email.SMTP.Enabled {
		email, err := notifications.NewEmailNotifier(cfg.Email.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("components: %w", err)
		}
		channels = append(channels, email)
	}
	return channels, nil
}

// Close releases the queue client, if any.
func (c *Components) Close() error {
	if c.queue == nil {
		return nil
	}
	return c.queue.Close()
}
