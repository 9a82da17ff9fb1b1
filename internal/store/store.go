// Package store is the durable, transactional Inventory Store (spec §4.4).
// It owns every row described in spec §3; every other component mutates
// state only through the operations exposed here.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iotstackcloud/teltonikaupdater/internal/config"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store is the full CRUD surface over the persistent entities.
type Store struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

// InitDB opens (creating if necessary) the single-file embedded database
// at cfg.Database.Path and runs idempotent schema migration. It does not
// reconcile state left by an unclean exit; that is ReconcileOnStartup.
func InitDB(cfg *config.Config, log logrus.FieldLogger) (*gorm.DB, error) {
	dir := filepath.Dir(cfg.Database.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	gormCfg := &gorm.Config{
		Logger: gormlogger.New(logAdapter{log}, gormlogger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      gormlogger.Warn,
		}),
	}

	db, err := gorm.Open(sqlite.Open(cfg.Database.Path+"?_foreign_keys=on"), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Router{},
		&model.UpdateHistoryRecord{},
		&model.BatchJob{},
		&model.Setting{},
		&model.FirmwareVersion{},
	); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return db, nil
}

// NewStore wraps an opened *gorm.DB in the Store API.
func NewStore(db *gorm.DB, log logrus.FieldLogger) *Store {
	return &Store{db: db, log: log}
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ReconcileOnStartup implements the crash-recovery rules of spec §9: any
// router stuck in "updating", any job stuck in "pending"/"running", and any
// history row stuck "running" belong to a rollout whose in-memory abort-flag
// registry is gone, so they can never complete: such routers are set to
// "error", such history rows to "failed" with "process restarted", and
// such jobs to "cancelled".
func (s *Store) ReconcileOnStartup() error {
	now := time.Now().UTC()
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Router{}).
			Where("status = ?", model.RouterStatusUpdating).
			Update("status", model.RouterStatusError).Error; err != nil {
			return fmt.Errorf("reconciling stale routers: %w", err)
		}

		if err := tx.Model(&model.UpdateHistoryRecord{}).
			Where("status = ?", model.HistoryStatusRunning).
			Updates(map[string]interface{}{
				"status":        model.HistoryStatusFailed,
				"error_message": "process restarted",
				"completed_at":  now,
			}).Error; err != nil {
			return fmt.Errorf("reconciling stale history: %w", err)
		}

		if err := tx.Model(&model.BatchJob{}).
			Where("status IN ?", []model.JobStatus{model.JobStatusPending, model.JobStatusRunning}).
			Updates(map[string]interface{}{
				"status":       model.JobStatusCancelled,
				"completed_at": now,
			}).Error; err != nil {
			return fmt.Errorf("reconciling stale jobs: %w", err)
		}

		return nil
	})
}

// logAdapter bridges logrus to gorm's logger.Writer interface.
type logAdapter struct {
	log logrus.FieldLogger
}

func (l logAdapter) Printf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}
