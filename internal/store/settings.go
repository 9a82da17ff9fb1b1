package store

import (
	"fmt"
	"strconv"

	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetSetting returns the raw string value for key, or ("", false) if unset.
func (s *Store) GetSetting(key string) (string, bool, error) {
	var row model.Setting
	if err := s.db.First(&row, "key = ?", key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("fetching setting %s: %w", key, err)
	}
	return row.Value, true, nil
}

// SetSetting upserts a key/value setting.
func (s *Store) SetSetting(key, value string) error {
	row := model.Setting{Key: key, Value: value}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// GetGlobalCredentials returns the operator-wide SSH username/password
// fallback used when a router has no per-device override.
func (s *Store) GetGlobalCredentials() (username, password string, err error) {
	username, _, err = s.GetSetting(model.SettingGlobalUsername)
	if err != nil {
		return "", "", err
	}
	password, _, err = s.GetSetting(model.SettingGlobalPassword)
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

// SetGlobalCredentials stores the operator-wide SSH credentials.
func (s *Store) SetGlobalCredentials(username, password string) error {
	if err := s.SetSetting(model.SettingGlobalUsername, username); err != nil {
		return err
	}
	return s.SetSetting(model.SettingGlobalPassword, password)
}

// GetBatchWaitMinutes returns the configured inter-batch pause, defaulting
// to 0 (no pause) if unset.
func (s *Store) GetBatchWaitMinutes() (int, error) {
	v, ok, err := s.GetSetting(model.SettingBatchWaitMinutes)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", model.SettingBatchWaitMinutes, err)
	}
	return n, nil
}

// SetBatchWaitMinutes stores the inter-batch pause length in minutes.
func (s *Store) SetBatchWaitMinutes(minutes int) error {
	return s.SetSetting(model.SettingBatchWaitMinutes, strconv.Itoa(minutes))
}
