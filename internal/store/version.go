package store

import (
	"fmt"

	"github.com/iotstackcloud/teltonikaupdater/internal/rferrors"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetAllFirmwareVersions returns the full device-family -> latest-version
// table.
func (s *Store) GetAllFirmwareVersions() ([]model.FirmwareVersion, error) {
	var rows []model.FirmwareVersion
	if err := s.db.Order("device_prefix").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing firmware versions: %w", err)
	}
	return rows, nil
}

// GetFirmwareVersion returns the latest known version for a device prefix,
// or rferrors.ErrNotFound.
func (s *Store) GetFirmwareVersion(prefix string) (*model.FirmwareVersion, error) {
	var row model.FirmwareVersion
	if err := s.db.First(&row, "device_prefix = ?", prefix).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, rferrors.ErrNotFound
		}
		return nil, fmt.Errorf("fetching firmware version %s: %w", prefix, err)
	}
	return &row, nil
}

// UpsertFirmwareVersion creates or updates the latest-version entry for a
// device prefix.
func (s *Store) UpsertFirmwareVersion(prefix, latestVersion string) error {
	row := model.FirmwareVersion{DevicePrefix: prefix, LatestVersion: latestVersion}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_prefix"}},
		DoUpdates: clause.AssignmentColumns([]string{"latest_version", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upserting firmware version %s: %w", prefix, err)
	}
	return nil
}

// DeleteFirmwareVersion removes a device-family entry.
func (s *Store) DeleteFirmwareVersion(prefix string) error {
	res := s.db.Delete(&model.FirmwareVersion{}, "device_prefix = ?", prefix)
	if res.Error != nil {
		return fmt.Errorf("deleting firmware version %s: %w", prefix, res.Error)
	}
	if res.RowsAffected == 0 {
		return rferrors.ErrNotFound
	}
	return nil
}

// AllFirmwareVersionsAsMap is a convenience accessor for the version
// policy evaluator, which expects a plain prefix -> latest map.
func (s *Store) AllFirmwareVersionsAsMap() (map[string]string, error) {
	rows, err := s.GetAllFirmwareVersions()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.DevicePrefix] = r.LatestVersion
	}
	return out, nil
}
