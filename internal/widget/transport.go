package widget

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tbourn/go-livechat-backend/internal/chatapi"
)

// Visitor is what the pre-chat form collects.
type Visitor struct {
	Name  string
	Email string
}

// Transport is one delivery strategy. The proxied and direct
// implementations are interchangeable from the controller's point of view.
type Transport interface {
	ResolveConfig(ctx context.Context, chatbotID string) (chatapi.Config, error)
	StartSession(ctx context.Context, chatbotID string, v Visitor) (string, error)
	// Send stores a visitor message. Retries of the same logical send carry
	// the same key so the store keeps one copy.
	Send(ctx context.Context, sessionID, content, key string) (chatapi.SendMessageResponse, error)
	// FetchNewSince returns messages strictly after afterID in ascending
	// order, at most chatapi.MaxPollPage of them. An empty afterID means
	// from the start of the session.
	FetchNewSince(ctx context.Context, sessionID, afterID string) ([]chatapi.Message, error)
}

// classify maps an HTTP status to the transport error taxonomy.
func classify(status int, msg string) error {
	switch {
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, status, msg)
	}
}
