// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/domain"
)

// CreateMessage inserts a new message row with a time-ordered ID.
func CreateMessage(ctx context.Context, db *gorm.DB, sessionID, adminID, sender, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:         NewID(),
		SessionID:  sessionID,
		AdminID:    adminID,
		Content:    content,
		SenderType: sender,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns the first messages of a session ordered
// deterministically (CreatedAt ASC, ID ASC). limit <= 0 means no limit.
func ListMessages(ctx context.Context, db *gorm.DB, sessionID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListMessagesAfter returns up to limit messages of a session strictly after
// the message afterID in (created_at, id) order. An afterID that does not
// resolve to a message of this session yields an empty result, not an error.
func ListMessagesAfter(ctx context.Context, db *gorm.DB, sessionID, afterID string, limit int) ([]domain.Message, error) {
	var ref domain.Message
	err := db.WithContext(ctx).
		Select("id", "created_at").
		Where("id = ? AND session_id = ?", afterID, sessionID).
		First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []domain.Message{}, nil
	}
	if err != nil {
		return nil, err
	}

	// Compare against the stored value to avoid re-encoding the timestamp.
	refTime := db.Model(&domain.Message{}).Select("created_at").Where("id = ?", afterID)
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Where("(created_at > (?)) OR (created_at = (?) AND id > ?)", refTime, refTime, afterID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err = q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM chat_messages WHERE session_id = ?", sessionID).
		Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkRead flags every message in the session authored by sender as read and
// returns the number of rows changed.
func MarkRead(ctx context.Context, db *gorm.DB, sessionID, sender string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("session_id = ? AND sender_type = ? AND is_read = ?", sessionID, sender, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}
