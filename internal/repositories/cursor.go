package repositories

import (
	"context"
	"time"

	"example.com/lifeline/agent/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// cursorRowID pins the cursor table to a single row for the life of the
// installation.
const cursorRowID = 1

// CursorRepository provides access to the sync cursor singleton
type CursorRepository struct {
	db *gorm.DB
}

// NewCursorRepository creates a new cursor repository
func NewCursorRepository(db *gorm.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

// Get returns the cursor row, creating it on first use. The device identifier
// is minted once here and stays stable for the life of the installation.
func (r *CursorRepository) Get(ctx context.Context) (*models.SyncCursor, error) {
	var cursor models.SyncCursor
	err := r.db.WithContext(ctx).First(&cursor, cursorRowID).Error
	if err == nil {
		return &cursor, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "failed to load sync cursor")
	}

	cursor = models.SyncCursor{
		ID:       cursorRowID,
		DeviceID: uuid.New(),
	}
	if err := r.db.WithContext(ctx).Create(&cursor).Error; err != nil {
		return nil, errors.Wrap(err, "failed to create sync cursor")
	}

	return &cursor, nil
}

// Advance durably records the position up to which inbound events have been
// applied, together with the pull timestamp.
func (r *CursorRepository) Advance(ctx context.Context, pullCursor string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.SyncCursor{}).
		Where("id = ?", cursorRowID).
		Updates(map[string]interface{}{
			"pull_cursor":  pullCursor,
			"last_pull_at": now,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to advance sync cursor")
	}
	if result.RowsAffected == 0 {
		return errors.New("no sync cursor row to advance")
	}
	return nil
}
