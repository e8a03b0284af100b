// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the analytics event writer and the
// range queries used by the admin analytics summary.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/domain"
)

// CreateEvent inserts an analytics event. ID and CreatedAt are filled when empty.
func CreateEvent(ctx context.Context, db *gorm.DB, ev *domain.AnalyticsEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(ev).Error
}

// CountSessionsBetween counts sessions of adminID created in [from, to).
func CountSessionsBetween(ctx context.Context, db *gorm.DB, adminID string, from, to time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("admin_id = ? AND created_at >= ? AND created_at < ?", adminID, from, to).
		Count(&n).Error
	return n, err
}

// CountMessagesBetween counts messages of adminID created in [from, to).
func CountMessagesBetween(ctx context.Context, db *gorm.DB, adminID string, from, to time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("admin_id = ? AND created_at >= ? AND created_at < ?", adminID, from, to).
		Count(&n).Error
	return n, err
}

// CountActiveSessions counts sessions of adminID with status active.
func CountActiveSessions(ctx context.Context, db *gorm.DB, adminID string) (int64, error) {
	return CountSessions(ctx, db, adminID, domain.SessionActive)
}

// SessionPoint is the projection of a session used for aggregation.
type SessionPoint struct {
	CreatedAt time.Time
	Metadata  domain.SessionMetadata
}

// ListSessionPointsSince returns creation time and metadata of sessions of
// adminID created at or after since.
func ListSessionPointsSince(ctx context.Context, db *gorm.DB, adminID string, since time.Time) ([]SessionPoint, error) {
	var out []SessionPoint
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Select("created_at", "metadata").
		Where("admin_id = ? AND created_at >= ?", adminID, since).
		Order("created_at ASC").
		Scan(&out).Error
	return out, err
}

// MessagePoint is the projection of a message used for aggregation.
type MessagePoint struct {
	SessionID  string
	SenderType string
	CreatedAt  time.Time
}

// ListMessagePointsSince returns (session, sender, time) of messages of
// adminID created at or after since, ordered per session chronologically.
func ListMessagePointsSince(ctx context.Context, db *gorm.DB, adminID string, since time.Time) ([]MessagePoint, error) {
	var out []MessagePoint
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("session_id", "sender_type", "created_at").
		Where("admin_id = ? AND created_at >= ?", adminID, since).
		Order("session_id ASC, created_at ASC, id ASC").
		Scan(&out).Error
	return out, err
}
