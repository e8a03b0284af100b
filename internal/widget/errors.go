package widget

import "errors"

// Transport failures, classified by how the runtime reacts to them.
var (
	ErrBadRequest = errors.New("widget: bad request")
	ErrNotFound   = errors.New("widget: not found")
	ErrUpstream   = errors.New("widget: upstream unavailable")
)

// Local rejections; these never reach a transport.
var (
	ErrMissingChatbotID = errors.New("widget: missing chatbot id")
	ErrEmptyMessage     = errors.New("widget: empty message")
	ErrSessionPending   = errors.New("widget: session start already in flight")
	ErrNotChatting      = errors.New("widget: no active chat")
	ErrNotReady         = errors.New("widget: not booted")
)
