package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iotstackcloud/teltonikaupdater/internal/rferrors"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"gorm.io/gorm"
)

// GetAllRouters returns every router in the inventory.
func (s *Store) GetAllRouters() ([]model.Router, error) {
	var routers []model.Router
	if err := s.db.Order("device_name").Find(&routers).Error; err != nil {
		return nil, fmt.Errorf("listing routers: %w", err)
	}
	return routers, nil
}

// GetRouterByID returns a single router, or rferrors.ErrNotFound.
func (s *Store) GetRouterByID(id uuid.UUID) (*model.Router, error) {
	var router model.Router
	if err := s.db.First(&router, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, rferrors.ErrNotFound
		}
		return nil, fmt.Errorf("fetching router %s: %w", id, err)
	}
	return &router, nil
}

// GetRoutersByStatus returns every router in the given status.
func (s *Store) GetRoutersByStatus(status model.RouterStatus) ([]model.Router, error) {
	var routers []model.Router
	if err := s.db.Where("status = ?", status).Order("device_name").Find(&routers).Error; err != nil {
		return nil, fmt.Errorf("listing routers by status %s: %w", status, err)
	}
	return routers, nil
}

// GetRoutersByIDs returns the routers matching the given ids, skipping any
// id that does not exist.
func (s *Store) GetRoutersByIDs(ids []uuid.UUID) ([]model.Router, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var routers []model.Router
	if err := s.db.Where("id IN ?", ids).Order("device_name").Find(&routers).Error; err != nil {
		return nil, fmt.Errorf("listing routers by id: %w", err)
	}
	return routers, nil
}

// InsertOneRouter inserts a single router.
func (s *Store) InsertOneRouter(router *model.Router) error {
	if router.ID == uuid.Nil {
		router.ID = uuid.New()
	}
	if router.Status == "" {
		router.Status = model.RouterStatusUnknown
	}
	if err := s.db.Create(router).Error; err != nil {
		return fmt.Errorf("inserting router %s: %w", router.IPAddress, err)
	}
	return nil
}

// InsertManyRouters inserts or updates (by id) every router in one
// transaction; running it twice with the same rows is a no-op (idempotent
// upsert keyed on id, per spec's round-trip law).
func (s *Store) InsertManyRouters(routers []model.Router) error {
	if len(routers) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for i := range routers {
			r := &routers[i]
			if r.ID == uuid.Nil {
				r.ID = uuid.New()
			}
			if r.Status == "" {
				r.Status = model.RouterStatusUnknown
			}

			var existing model.Router
			err := tx.First(&existing, "id = ?", r.ID).Error
			switch {
			case isNotFound(err):
				if err := tx.Create(r).Error; err != nil {
					return fmt.Errorf("inserting router %s: %w", r.IPAddress, err)
				}
			case err != nil:
				return fmt.Errorf("checking router %s: %w", r.ID, err)
			default:
				if err := tx.Model(&model.Router{}).Where("id = ?", r.ID).Updates(r).Error; err != nil {
					return fmt.Errorf("updating router %s: %w", r.ID, err)
				}
			}
		}
		return nil
	})
}

// UpdateFirmwareInfo records a scan or probe result on a router.
func (s *Store) UpdateFirmwareInfo(id uuid.UUID, current, available *string, status model.RouterStatus) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"current_firmware":   current,
		"available_firmware": available,
		"status":             status,
		"last_check":         now,
	}
	res := s.db.Model(&model.Router{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("updating firmware info for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return rferrors.ErrNotFound
	}
	return nil
}

// UpdateRouterStatus sets just the status column.
func (s *Store) UpdateRouterStatus(id uuid.UUID, status model.RouterStatus) error {
	res := s.db.Model(&model.Router{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("updating router status for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return rferrors.ErrNotFound
	}
	return nil
}

// UpdateRouterFields applies an arbitrary set of column updates, used by the
// rollout engine to set current_firmware/available_firmware/status together
// on a successful attempt.
func (s *Store) UpdateRouterFields(id uuid.UUID, fields map[string]interface{}) error {
	res := s.db.Model(&model.Router{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("updating router %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return rferrors.ErrNotFound
	}
	return nil
}

// DeleteAllRouters truncates the router table. History rows are retained
// (see SPEC_FULL.md §4 for the cascade decision) with their router_id left
// pointing at a now-missing router.
func (s *Store) DeleteAllRouters() error {
	if err := s.db.Exec("DELETE FROM routers").Error; err != nil {
		return fmt.Errorf("deleting all routers: %w", err)
	}
	return nil
}

// CountByStatus returns the number of routers in each status.
func (s *Store) CountByStatus() (map[model.RouterStatus]int64, error) {
	type row struct {
		Status model.RouterStatus
		Count  int64
	}
	var rows []row
	if err := s.db.Model(&model.Router{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting routers by status: %w", err)
	}
	counts := make(map[model.RouterStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func isNotFound(err error) bool {
	return err == gorm.ErrRecordNotFound
}
