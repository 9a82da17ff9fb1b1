package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
)

// HistoryWithRouter joins an UpdateHistoryRecord with its router's display
// fields, matching spec §4.4's "joined with router's name and IP".
type HistoryWithRouter struct {
	model.UpdateHistoryRecord
	DeviceName string
	IPAddress  string
}

// InsertHistory starts a new attempt record.
func (s *Store) InsertHistory(rec *model.UpdateHistoryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("inserting history record: %w", err)
	}
	return nil
}

// PartialUpdateHistory applies column updates to an existing history row,
// used to transition it to success or failed.
func (s *Store) PartialUpdateHistory(id uuid.UUID, fields map[string]interface{}) error {
	if err := s.db.Model(&model.UpdateHistoryRecord{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("updating history record %s: %w", id, err)
	}
	return nil
}

// GetHistoryByRouter returns every attempt recorded for a router, most
// recent first.
func (s *Store) GetHistoryByRouter(routerID uuid.UUID) ([]model.UpdateHistoryRecord, error) {
	var records []model.UpdateHistoryRecord
	if err := s.db.Where("router_id = ?", routerID).Order("started_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing history for router %s: %w", routerID, err)
	}
	return records, nil
}

// GetRecentHistory returns the most recent attempts across all routers,
// joined with the router's display fields, up to limit rows.
func (s *Store) GetRecentHistory(limit int) ([]HistoryWithRouter, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []HistoryWithRouter
	err := s.db.Table("update_history").
		Select("update_history.*, routers.device_name as device_name, routers.ip_address as ip_address").
		Joins("LEFT JOIN routers ON routers.id = update_history.router_id").
		Order("update_history.started_at DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing recent history: %w", err)
	}
	return rows, nil
}
