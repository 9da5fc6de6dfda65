package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/interfaces"
	"github.com/ternarybob/inferd/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ModuleStatusStorage implements interfaces.ModuleStatusStorage on Badger
type ModuleStatusStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewModuleStatusStorage creates a new ModuleStatusStorage instance
func NewModuleStatusStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ModuleStatusStorage {
	return &ModuleStatusStorage{
		db:     db,
		logger: logger,
	}
}

// normalizeKey converts a module id to lowercase for case-insensitive storage
func (s *ModuleStatusStorage) normalizeKey(moduleID string) string {
	return strings.ToLower(strings.TrimSpace(moduleID))
}

// SaveStatus inserts or replaces the snapshot for status.ModuleID
func (s *ModuleStatusStorage) SaveStatus(ctx context.Context, status *models.ModuleStatus) error {
	if status == nil || status.ModuleID == "" {
		return fmt.Errorf("module id is required")
	}

	record := *status
	record.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(s.normalizeKey(status.ModuleID), &record); err != nil {
		return fmt.Errorf("failed to save module status %s: %w", status.ModuleID, err)
	}
	return nil
}

// SaveStatuses saves every snapshot, stopping at the first failure
func (s *ModuleStatusStorage) SaveStatuses(ctx context.Context, statuses []*models.ModuleStatus) error {
	for _, status := range statuses {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.SaveStatus(ctx, status); err != nil {
			return err
		}
	}
	return nil
}

// GetStatus retrieves the snapshot for moduleID (case-insensitive)
func (s *ModuleStatusStorage) GetStatus(ctx context.Context, moduleID string) (*models.ModuleStatus, error) {
	var status models.ModuleStatus
	err := s.db.Store().Get(s.normalizeKey(moduleID), &status)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrModuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get module status %s: %w", moduleID, err)
	}
	return &status, nil
}

// ListStatuses returns every stored snapshot ordered by module id
func (s *ModuleStatusStorage) ListStatuses(ctx context.Context) ([]*models.ModuleStatus, error) {
	var records []models.ModuleStatus
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to list module statuses: %w", err)
	}

	statuses := make([]*models.ModuleStatus, 0, len(records))
	for i := range records {
		statuses = append(statuses, &records[i])
	}
	sort.Slice(statuses, func(i, j int) bool {
		return strings.ToLower(statuses[i].ModuleID) < strings.ToLower(statuses[j].ModuleID)
	})
	return statuses, nil
}

// DeleteStatus removes the snapshot for moduleID
func (s *ModuleStatusStorage) DeleteStatus(ctx context.Context, moduleID string) error {
	err := s.db.Store().Delete(s.normalizeKey(moduleID), &models.ModuleStatus{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.ErrModuleNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete module status %s: %w", moduleID, err)
	}
	return nil
}
