// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for CannedResponse.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/domain"
)

// ListCanned returns the canned responses of adminID, newest first.
func ListCanned(ctx context.Context, db *gorm.DB, adminID string) ([]domain.CannedResponse, error) {
	var out []domain.CannedResponse
	err := db.WithContext(ctx).
		Where("admin_id = ?", adminID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// CreateCanned inserts a canned response; ID and timestamps are generated.
func CreateCanned(ctx context.Context, db *gorm.DB, c *domain.CannedResponse) error {
	now := time.Now().UTC()
	c.ID = uuid.NewString()
	c.CreatedAt, c.UpdatedAt = now, now
	return db.WithContext(ctx).Create(c).Error
}

// DeleteCanned removes a canned response owned by adminID. It returns
// ErrNotFound when no row matched.
func DeleteCanned(ctx context.Context, db *gorm.DB, adminID, id string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND admin_id = ?", id, adminID).
		Delete(&domain.CannedResponse{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
