package widget

import (
	"time"

	"github.com/tbourn/go-livechat-backend/internal/chatapi"
)

// Built-in appearance used whenever the config cannot be resolved.
const (
	DefaultTitle       = "Chat with us"
	DefaultColor       = "#14b8a6"
	DefaultPosition    = "bottom-right"
	DefaultWelcome     = "Hi! How can we help you today?"
	DefaultPlaceholder = "Type your message..."
	DefaultVisitorName = "Visitor"
)

// DefaultConfig is what a widget shows when its config fetch fails for any
// reason. A broken config must never keep the launcher from appearing.
func DefaultConfig() chatapi.Config {
	return chatapi.Config{
		WidgetTitle:     DefaultTitle,
		WelcomeMessage:  DefaultWelcome,
		PrimaryColor:    DefaultColor,
		Position:        DefaultPosition,
		ShowBranding:    true,
		PlaceholderText: DefaultPlaceholder,
	}
}

// Strategy names a session and message delivery path.
type Strategy string

const (
	StrategyProxied Strategy = "proxied"
	StrategyDirect  Strategy = "direct"
)

// DefaultPollInterval is the poll cadence of both strategies when none is
// configured.
const DefaultPollInterval = 3 * time.Second
