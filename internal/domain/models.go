// Package domain defines the persistence models for chatbot configs, visitor
// sessions and chat messages. These types are mapped with GORM and form the
// core data layer of the live-chat backend.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Sender roles stored on Message.SenderType.
const (
	SenderVisitor = "visitor"
	SenderAdmin   = "admin"
	SenderBot     = "bot"
)

// Session statuses.
const (
	SessionActive = "active"
	SessionClosed = "closed"
)

// Widget positions.
const (
	PositionBottomRight = "bottom-right"
	PositionBottomLeft  = "bottom-left"
)

// DefaultVisitorName is used when the pre-chat form leaves the name blank.
const DefaultVisitorName = "Visitor"

// ValidSender reports whether s is a known sender role.
func ValidSender(s string) bool {
	switch s {
	case SenderVisitor, SenderAdmin, SenderBot:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known session status.
func ValidStatus(s string) bool { return s == SessionActive || s == SessionClosed }

// ValidPosition reports whether p is a supported launcher position.
func ValidPosition(p string) bool { return p == PositionBottomRight || p == PositionBottomLeft }

// ChatbotConfig is the widget configuration owned by exactly one admin.
//
// Fields:
//   - ID: public chatbot identifier embedded in the widget script tag.
//   - AdminID: owning admin; unique, one config per admin.
//   - display fields rendered by the widget (title, texts, color, position).
//   - AvatarURL: optional; nil renders the default avatar.
type ChatbotConfig struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	AdminID         string    `json:"admin_id"         gorm:"type:varchar(64);not null;uniqueIndex:ux_config_admin"`
	Name            string    `json:"name"             gorm:"type:varchar(255);not null;default:'My Chatbot'"`
	WidgetTitle     string    `json:"widget_title"     gorm:"type:varchar(255);not null"`
	WelcomeMessage  string    `json:"welcome_message"  gorm:"type:text;not null"`
	OfflineMessage  string    `json:"offline_message"  gorm:"type:text;not null"`
	PlaceholderText string    `json:"placeholder_text" gorm:"type:varchar(255);not null"`
	PrimaryColor    string    `json:"primary_color"    gorm:"type:varchar(16);not null"`
	Position        string    `json:"position"         gorm:"type:varchar(16);not null;check:position IN ('bottom-right','bottom-left')"`
	ShowBranding    bool      `json:"show_branding"    gorm:"not null;default:true"`
	AvatarURL       *string   `json:"avatar_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for ChatbotConfig.
func (ChatbotConfig) TableName() string { return "chatbot_configs" }

// PublicConfig is the visitor-safe projection of ChatbotConfig. It never
// carries the owning admin's identifier.
type PublicConfig struct {
	WidgetTitle     string  `json:"widget_title"`
	WelcomeMessage  string  `json:"welcome_message"`
	PrimaryColor    string  `json:"primary_color"`
	Position        string  `json:"position"`
	AvatarURL       *string `json:"avatar_url"`
	ShowBranding    bool    `json:"show_branding"`
	PlaceholderText string  `json:"placeholder_text"`
	OfflineMessage  string  `json:"offline_message"`
}

// Public returns the visitor-safe subset of c.
func (c ChatbotConfig) Public() PublicConfig {
	return PublicConfig{
		WidgetTitle:     c.WidgetTitle,
		WelcomeMessage:  c.WelcomeMessage,
		PrimaryColor:    c.PrimaryColor,
		Position:        c.Position,
		AvatarURL:       c.AvatarURL,
		ShowBranding:    c.ShowBranding,
		PlaceholderText: c.PlaceholderText,
		OfflineMessage:  c.OfflineMessage,
	}
}

// DefaultChatbotConfig returns the onboarding defaults for a new admin.
func DefaultChatbotConfig(id, adminID string) ChatbotConfig {
	return ChatbotConfig{
		ID:              id,
		AdminID:         adminID,
		Name:            "My Chatbot",
		WidgetTitle:     "Chat with us",
		WelcomeMessage:  "Hi! How can we help you today?",
		OfflineMessage:  "We're currently offline. Leave a message and we'll get back to you.",
		PlaceholderText: "Type your message...",
		PrimaryColor:    "#14b8a6",
		Position:        PositionBottomRight,
		ShowBranding:    true,
	}
}

// SessionMetadata is ambient request information captured at session start.
type SessionMetadata struct {
	UserAgent string `json:"user_agent,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
}

// Value implements driver.Valuer; metadata is stored as a JSON document.
func (m SessionMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *SessionMetadata) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*m = SessionMetadata{}
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return errors.New("domain: unsupported metadata type")
	}
	if len(b) == 0 {
		*m = SessionMetadata{}
		return nil
	}
	return json.Unmarshal(b, m)
}

// Session is one visitor's conversation with a chatbot. AdminID is
// denormalized from the chatbot config so dashboards can filter without a join.
type Session struct {
	ID            string          `json:"id"              gorm:"type:char(36);primaryKey"`
	AdminID       string          `json:"admin_id"        gorm:"type:varchar(64);not null;index:idx_admin_sessions,priority:1"`
	ChatbotID     string          `json:"chatbot_id"      gorm:"type:char(36);not null;index"`
	VisitorID     string          `json:"visitor_id"      gorm:"type:char(36);not null"`
	VisitorName   string          `json:"visitor_name"    gorm:"type:varchar(255);not null;default:'Visitor'"`
	VisitorEmail  *string         `json:"visitor_email"   gorm:"type:varchar(255)"`
	Status        string          `json:"status"          gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','closed')"`
	Metadata      SessionMetadata `json:"metadata"        gorm:"type:text"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"      gorm:"index:idx_admin_sessions,priority:2"`
	LastMessageAt *time.Time      `json:"last_message_at"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "chat_sessions" }

// Message is one immutable chat line. IDs are time-ordered (UUIDv7) so that
// (created_at, id) reflects insertion order.
type Message struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	SessionID  string    `json:"session_id"  gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	AdminID    string    `json:"admin_id"    gorm:"type:varchar(64);not null;index"`
	Content    string    `json:"content"     gorm:"type:text;not null"`
	SenderType string    `json:"sender_type" gorm:"type:varchar(16);not null;check:sender_type IN ('visitor','admin','bot')"`
	IsRead     bool      `json:"is_read"     gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"  gorm:"index:idx_session_msgs,priority:2"`

	// Session is the parent conversation; messages are cascade-deleted with it.
	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "chat_messages" }
