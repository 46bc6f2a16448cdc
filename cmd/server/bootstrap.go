package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/accessdesk/internal/api"
	"github.com/charlesng35/accessdesk/internal/app"
	"github.com/charlesng35/accessdesk/internal/app/maintenance"
	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/database"
	"github.com/charlesng35/accessdesk/internal/notifications"
	"github.com/charlesng35/accessdesk/pkg/logger"
)

const shutdownRunTimeout = 10 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Components *app.Components
	Scheduler  *maintenance.Scheduler
	Worker     *notifications.Worker
	Router     *gin.Engine
}

// bootstrapRuntime opens the database, wires the components and starts the
// background jobs.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// GIN_DEBUG=true keeps gin in debug mode.
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	stack.Components, err = app.NewComponents(ctx, stack.DB, cfg)
	if err != nil {
		return nil, fmt.Errorf("wire components: %w", err)
	}

	if cfg.Notifications.Queue.Enabled {
		stack.Worker = notifications.NewWorker(cfg.Notifications.Queue.WorkerConfig(), stack.Components.Delivery)
		if err := stack.Worker.Start(); err != nil {
			return nil, fmt.Errorf("start notification worker: %w", err)
		}
		log.Info("notification worker started", zap.String("redis", cfg.Notifications.Queue.Address))
	}

	if cfg.Maintenance.Enabled || cfg.Audit.Archive.Enabled {
		stack.Scheduler, err = newScheduler(ctx, cfg, stack.Components)
		if err != nil {
			return nil, err
		}
		if err := stack.Scheduler.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(stack.Components, cfg)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func newScheduler(ctx context.Context, cfg *app.Config, c *app.Components) (*maintenance.Scheduler, error) {
	opts := []maintenance.Option{
		maintenance.WithExpirySchedule(cfg.Maintenance.GrantExpirySchedule),
		maintenance.WithReminderSchedule(cfg.Maintenance.ReminderSchedule),
		maintenance.WithArchiveSchedule(cfg.Audit.Archive.Schedule),
	}
	if cfg.Maintenance.Enabled {
		opts = append(opts,
			maintenance.WithExpirer("grants", c.Issuer),
			maintenance.WithExpirer("whitelist", c.Whitelist),
			maintenance.WithExpirer("api_keys", c.APIKeys),
			maintenance.WithReminder(c.Workflow, cfg.Maintenance.ReminderAfter),
		)
	}
	if cfg.Audit.Archive.Enabled {
		archiveCfg := cfg.Audit.Archive.S3Config()
		client, err := audit.NewS3Client(ctx, archiveCfg)
		if err != nil {
			return nil, fmt.Errorf("audit archive: %w", err)
		}
		archive, err := audit.NewS3Archive(c.Audit, client, archiveCfg.Bucket, archiveCfg.Prefix)
		if err != nil {
			return nil, fmt.Errorf("audit archive: %w", err)
		}
		opts = append(opts, maintenance.WithArchiver(archive))
	}
	return maintenance.NewScheduler(opts...), nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Scheduler != nil {
		<-s.Scheduler.Stop().Done()
		runCtx, cancel := context.WithTimeout(ctx, shutdownRunTimeout)
		if err := s.Scheduler.ExpireDue(runCtx); err != nil {
			log.Warn("maintenance shutdown expiry failed", zap.Error(err))
		}
		cancel()
	}

	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	if s.Components != nil {
		if err := s.Components.Close(); err != nil {
			log.Warn("queue client shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(ctx context.Context, cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	catalog, err := loadCatalog(cfg.Seed)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}
	if err := database.AutoMigrateAndSeed(ctx, db, catalog); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))),
		zap.Bool("seeded", catalog != nil),
	)

	return db, nil
}

// loadCatalog returns the catalog to seed, or nil when seeding is disabled.
func loadCatalog(cfg app.SeedConfig) (*database.Catalog, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if path := strings.TrimSpace(cfg.CatalogPath); path != "" {
		catalog, err := database.LoadCatalogFile(path)
		if err != nil {
			return nil, fmt.Errorf("load catalog %s: %w", path, err)
		}
		return catalog, nil
	}
	catalog, err := database.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("load default catalog: %w", err)
	}
	return catalog, nil
}
