// Package services defines the business logic for chatbot configs, visitor
// sessions, messages, analytics and canned responses. This file centralizes
// service-level error values so that callers can check them with errors.Is.
//
// Translation into HTTP status codes is performed by the handler layer.
package services

import "errors"

var (
	// ErrMissingChatbotID is returned when a chatbot identifier is required
	// but empty. It is a caller error, distinct from not-found.
	ErrMissingChatbotID = errors.New("chatbot_id is required")

	// ErrChatbotNotFound indicates that no config matches the identifier.
	ErrChatbotNotFound = errors.New("chatbot not found")

	// ErrMissingSessionID is returned when a session identifier is required
	// but empty.
	ErrMissingSessionID = errors.New("session_id is required")

	// ErrSessionNotFound indicates that the session does not exist or is
	// not owned by the calling admin.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyContent is returned when message content is blank after trimming.
	ErrEmptyContent = errors.New("content is required")

	// ErrContentTooLong is returned when message content exceeds the
	// configured rune limit.
	ErrContentTooLong = errors.New("content too long")

	// ErrInvalidSenderRole is returned for a sender role outside visitor|admin|bot.
	ErrInvalidSenderRole = errors.New("invalid sender_type")

	// ErrInvalidStatus is returned for a session status outside active|closed.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidConfig is returned when a config update carries an invalid
	// color, position or blank required text.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrCannedNotFound indicates that the canned response does not exist or
	// is not owned by the calling admin.
	ErrCannedNotFound = errors.New("canned response not found")
)
