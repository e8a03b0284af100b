package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Analytics event types emitted by the chat flow.
const (
	EventSessionStarted = "session_started"
	EventMessageSent    = "message_sent"
)

// EventData is a free-form JSON object attached to an AnalyticsEvent.
type EventData map[string]any

// Value implements driver.Valuer.
func (d EventData) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (d *EventData) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*d = EventData{}
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return errors.New("domain: unsupported event data type")
	}
	out := EventData{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &out); err != nil {
			return err
		}
	}
	*d = out
	return nil
}

// AnalyticsEvent records a session start or message send for later
// aggregation. The chat flow only writes these.
type AnalyticsEvent struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	AdminID   string    `json:"admin_id"   gorm:"type:varchar(64);not null;index:idx_admin_events,priority:1"`
	ChatbotID *string   `json:"chatbot_id" gorm:"type:char(36)"`
	SessionID *string   `json:"session_id" gorm:"type:char(36);index"`
	EventType string    `json:"event_type" gorm:"type:varchar(32);not null;check:event_type IN ('session_started','message_sent')"`
	EventData EventData `json:"event_data" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_admin_events,priority:2"`
}

// TableName returns the database table name for AnalyticsEvent.
func (AnalyticsEvent) TableName() string { return "analytics_events" }

// CannedResponse is a saved admin reply; the auto-responder matches visitor
// messages against these.
type CannedResponse struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	AdminID   string    `json:"admin_id"   gorm:"type:varchar(64);not null;index"`
	Title     string    `json:"title"      gorm:"type:varchar(255);not null"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	Shortcut  *string   `json:"shortcut"   gorm:"type:varchar(64)"`
	Category  *string   `json:"category"   gorm:"type:varchar(64)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for CannedResponse.
func (CannedResponse) TableName() string { return "canned_responses" }
