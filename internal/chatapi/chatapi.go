// Package chatapi holds the wire types of the visitor chat protocol. The
// server handlers encode them and the widget runtime's proxied transport
// decodes them, so both sides agree on one set of JSON tags.
package chatapi

import (
	"time"

	"github.com/tbourn/go-livechat-backend/internal/domain"
)

// Route suffixes under the API base path.
const (
	PathConfig   = "/chat/config"
	PathSession  = "/chat/session"
	PathMessage  = "/chat/message"
	PathMessages = "/chat/messages"
	PathDebug    = "/chat/debug"
	PathWidget   = "/widget.js"
)

// Query parameters.
const (
	ParamChatbotID = "chatbot_id"
	ParamSessionID = "session_id"
	ParamAfter     = "after"
)

// Headers used by idempotent sends.
const (
	HeaderIdempotencyKey      = "Idempotency-Key"
	HeaderIdempotencyReplayed = "Idempotency-Replayed"
)

// MaxPollPage is the upper bound on messages returned by one poll.
const MaxPollPage = 50

// Config is the public widget configuration.
type Config struct {
	WidgetTitle     string  `json:"widget_title"`
	WelcomeMessage  string  `json:"welcome_message"`
	PrimaryColor    string  `json:"primary_color"`
	Position        string  `json:"position"`
	AvatarURL       *string `json:"avatar_url"`
	ShowBranding    bool    `json:"show_branding"`
	PlaceholderText string  `json:"placeholder_text"`
	OfflineMessage  string  `json:"offline_message"`
}

// StartSessionRequest is the body of POST /chat/session.
type StartSessionRequest struct {
	ChatbotID    string `json:"chatbot_id"`
	VisitorName  string `json:"visitor_name,omitempty"`
	VisitorEmail string `json:"visitor_email,omitempty"`
}

// StartSessionResponse is returned on a successful session start.
type StartSessionResponse struct {
	SessionID string `json:"session_id"`
}

// SendMessageRequest is the body of POST /chat/message.
type SendMessageRequest struct {
	SessionID  string `json:"session_id"`
	Content    string `json:"content"`
	SenderType string `json:"sender_type,omitempty"`
}

// SendMessageResponse identifies the stored message.
type SendMessageResponse struct {
	MessageID string    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one line in a poll result.
type Message struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	SenderType string    `json:"sender_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// ErrorBody is the part of the error envelope visitor clients read.
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// FromPublicConfig converts the domain projection.
func FromPublicConfig(c domain.PublicConfig) Config {
	return Config{
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

// FromMessage strips a stored message down to its wire form.
func FromMessage(m domain.Message) Message {
	return Message{ID: m.ID, Content: m.Content, SenderType: m.SenderType, CreatedAt: m.CreatedAt}
}

// FromMessages converts a slice; the result is never nil so it encodes as [].
func FromMessages(ms []domain.Message) []Message {
	out := make([]Message, 0, len(ms))
	for _, m := range ms {
		out = append(out, FromMessage(m))
	}
	return out
}
