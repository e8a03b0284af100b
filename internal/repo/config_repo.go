// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for ChatbotConfig.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - When a config is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetConfig fetches a chatbot config by its public identifier.
func GetConfig(ctx context.Context, db *gorm.DB, id string) (*domain.ChatbotConfig, error) {
	var c domain.ChatbotConfig
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConfigByAdmin fetches the single config owned by adminID.
func GetConfigByAdmin(ctx context.Context, db *gorm.DB, adminID string) (*domain.ChatbotConfig, error) {
	var c domain.ChatbotConfig
	if err := db.WithContext(ctx).Where("admin_id = ?", adminID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ConfigOwner resolves a chatbot identifier to its owning admin id without
// loading the display fields.
func ConfigOwner(ctx context.Context, db *gorm.DB, id string) (string, error) {
	var row struct{ AdminID string }
	res := db.WithContext(ctx).
		Model(&domain.ChatbotConfig{}).
		Select("admin_id").
		Where("id = ?", id).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", ErrNotFound
	}
	return row.AdminID, nil
}

// CreateDefaultConfig inserts the onboarding config for adminID.
func CreateDefaultConfig(ctx context.Context, db *gorm.DB, adminID string) (*domain.ChatbotConfig, error) {
	c := domain.DefaultChatbotConfig(uuid.NewString(), adminID)
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateConfig applies the given column updates to the config owned by
// adminID. It returns ErrNotFound when no row matched.
func UpdateConfig(ctx context.Context, db *gorm.DB, adminID string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.ChatbotConfig{}).
		Where("admin_id = ?", adminID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
