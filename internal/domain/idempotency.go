package domain

import "time"

// Idempotency records the message produced for a client-supplied
// Idempotency-Key so that a retried send returns the original message instead
// of inserting a duplicate. Keys are scoped to a session.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	SessionID string    `gorm:"type:char(36);not null;uniqueIndex:ux_session_key,priority:1"`
	Key       string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_session_key,priority:2"`
	MessageID string    `gorm:"type:char(36);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
