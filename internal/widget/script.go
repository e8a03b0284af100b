package widget

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/tbourn/go-livechat-backend/internal/chatapi"
)

//go:embed script.js.tmpl
var scriptSource string

var scriptTmpl = template.Must(template.New("widget.js").Delims("[[", "]]").Parse(scriptSource))

// ScriptOptions are baked into the served widget.js.
type ScriptOptions struct {
	// APIPath is appended to the script's own origin, e.g. "/api".
	APIPath      string
	Strategy     Strategy
	PollInterval time.Duration
	// StoreURL and AnonKey are only emitted for the direct strategy.
	StoreURL string
	AnonKey  string
}

type scriptData struct {
	APIPath        string
	Strategy       string
	PollMillis     int64
	StoreURL       string
	AnonKey        string
	DefaultsJSON   string
	MaxPollPage    int
	SendAttempts   int
	DefaultVisitor string
}

// jsString encodes s as a JS string literal. encoding/json escapes <, > and
// & so the value cannot close the script element.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// RenderScript writes the browser runtime configured by o.
func RenderScript(w io.Writer, o ScriptOptions) error {
	strategy := o.Strategy
	if strategy == "" {
		strategy = StrategyProxied
	}
	if strategy != StrategyProxied && strategy != StrategyDirect {
		return fmt.Errorf("widget: unknown strategy %q", strategy)
	}
	if strategy == StrategyDirect && (o.StoreURL == "" || o.AnonKey == "") {
		return fmt.Errorf("widget: direct strategy needs a store URL and key")
	}
	poll := o.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	defaults, err := json.Marshal(DefaultConfig())
	if err != nil {
		return err
	}

	d := scriptData{
		APIPath:        jsString(o.APIPath),
		Strategy:       jsString(string(strategy)),
		PollMillis:     poll.Milliseconds(),
		StoreURL:       jsString(""),
		AnonKey:        jsString(""),
		DefaultsJSON:   string(defaults),
		MaxPollPage:    chatapi.MaxPollPage,
		SendAttempts:   3,
		DefaultVisitor: jsString(DefaultVisitorName),
	}
	if strategy == StrategyDirect {
		d.StoreURL = jsString(o.StoreURL)
		d.AnonKey = jsString(o.AnonKey)
	}
	return scriptTmpl.Execute(w, d)
}
