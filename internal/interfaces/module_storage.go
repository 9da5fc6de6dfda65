package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/inferd/internal/models"
)

// ErrModuleNotFound is returned when no module with the given id is known
var ErrModuleNotFound = errors.New("module not found")

// ModuleStatusStorage persists module status snapshots between restarts
type ModuleStatusStorage interface {
	SaveStatus(ctx context.Context, status *models.ModuleStatus) error
	SaveStatuses(ctx context.Context, statuses []*models.ModuleStatus) error
	// GetStatus returns ErrModuleNotFound when moduleID has no stored status
	GetStatus(ctx context.Context, moduleID string) (*models.ModuleStatus, error)
	ListStatuses(ctx context.Context) ([]*models.ModuleStatus, error)
	DeleteStatus(ctx context.Context, moduleID string) error
}
