// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session model.
//
// Functions:
//
//   - CreateSession(ctx, db, s) -> error
//     Inserts a session; ID, VisitorID and timestamps are filled when empty.
//
//   - GetSession(ctx, db, id) -> *domain.Session, error
//     Fetches a session by ID regardless of owner (visitor path).
//
//   - GetSessionForAdmin(ctx, db, id, adminID) -> *domain.Session, error
//     Fetches a session enforcing admin ownership.
//
//   - SessionOwner(ctx, db, id) -> adminID, error
//     Resolves the denormalized owner without loading the row.
//
//   - CountSessions / ListSessionsPage
//     Paginated listing for the admin dashboard, most recent activity first.
//
//   - TouchSession, UpdateSessionStatus, DeleteSession
//     Activity bump, close/reopen, and cascading delete.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/domain"
)

// NewID returns a time-ordered UUID (v7) so that identifier order follows
// insertion order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// CreateSession inserts s. Missing identifiers and timestamps are generated.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.Session) error {
	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.VisitorID == "" {
		s.VisitorID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = domain.SessionActive
	}
	if s.VisitorName == "" {
		s.VisitorName = domain.DefaultVisitorName
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = s.CreatedAt
	return db.WithContext(ctx).Create(s).Error
}

// GetSession fetches a session by its ID.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSessionForAdmin fetches a session by ID owned by adminID.
func GetSessionForAdmin(ctx context.Context, db *gorm.DB, id, adminID string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("id = ? AND admin_id = ?", id, adminID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SessionOwner returns the admin id a session belongs to.
func SessionOwner(ctx context.Context, db *gorm.DB, id string) (string, error) {
	var row struct{ AdminID string }
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
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

func sessionScope(db *gorm.DB, adminID, status string) *gorm.DB {
	q := db.Model(&domain.Session{}).Where("admin_id = ?", adminID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return q
}

// CountSessions returns the number of sessions for adminID, optionally
// filtered by status ("" means all).
func CountSessions(ctx context.Context, db *gorm.DB, adminID, status string) (int64, error) {
	var total int64
	err := sessionScope(db.WithContext(ctx), adminID, status).Count(&total).Error
	return total, err
}

// ListSessionsPage returns a page of sessions ordered by most recent
// activity first.
func ListSessionsPage(ctx context.Context, db *gorm.DB, adminID, status string, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := sessionScope(db.WithContext(ctx), adminID, status).
		Order("updated_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// TouchSession records message activity on a session.
func TouchSession(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{"updated_at": at, "last_message_at": at}).Error
}

// UpdateSessionStatus sets the status of a session owned by adminID.
// It returns ErrNotFound when no row matched.
func UpdateSessionStatus(ctx context.Context, db *gorm.DB, id, adminID, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND admin_id = ?", id, adminID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session owned by adminID together with its
// messages and idempotency records. Messages are deleted explicitly so the
// cascade holds even where foreign keys are not enforced.
func DeleteSession(ctx context.Context, db *gorm.DB, id, adminID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := GetSessionForAdmin(ctx, tx, id, adminID); err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Session{}).Error
	})
}
