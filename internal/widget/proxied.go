package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tbourn/go-livechat-backend/internal/chatapi"
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 4 << 10

// ProxiedTransport talks to the chat endpoints of a trusted server, which
// holds the store credentials.
type ProxiedTransport struct {
	base   string
	client *http.Client
}

// NewProxiedTransport targets an API base such as https://host/api. A nil
// client gets one with a 15s timeout.
func NewProxiedTransport(apiBase string, client *http.Client) *ProxiedTransport {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ProxiedTransport{base: strings.TrimRight(apiBase, "/"), client: client}
}

func (p *ProxiedTransport) ResolveConfig(ctx context.Context, chatbotID string) (chatapi.Config, error) {
	q := url.Values{chatapi.ParamChatbotID: {chatbotID}}
	var cfg chatapi.Config
	err := p.do(ctx, http.MethodGet, chatapi.PathConfig+"?"+q.Encode(), nil, nil, &cfg)
	return cfg, err
}

func (p *ProxiedTransport) StartSession(ctx context.Context, chatbotID string, v Visitor) (string, error) {
	req := chatapi.StartSessionRequest{ChatbotID: chatbotID, VisitorName: v.Name, VisitorEmail: v.Email}
	var resp chatapi.StartSessionResponse
	if err := p.do(ctx, http.MethodPost, chatapi.PathSession, req, nil, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("%w: empty session id", ErrUpstream)
	}
	return resp.SessionID, nil
}

func (p *ProxiedTransport) Send(ctx context.Context, sessionID, content, key string) (chatapi.SendMessageResponse, error) {
	req := chatapi.SendMessageRequest{SessionID: sessionID, Content: content, SenderType: "visitor"}
	var hdr http.Header
	if key != "" {
		hdr = http.Header{chatapi.HeaderIdempotencyKey: {key}}
	}
	var resp chatapi.SendMessageResponse
	err := p.do(ctx, http.MethodPost, chatapi.PathMessage, req, hdr, &resp)
	return resp, err
}

func (p *ProxiedTransport) FetchNewSince(ctx context.Context, sessionID, afterID string) ([]chatapi.Message, error) {
	q := url.Values{chatapi.ParamSessionID: {sessionID}}
	if afterID != "" {
		q.Set(chatapi.ParamAfter, afterID)
	}
	var out []chatapi.Message
	if err := p.do(ctx, http.MethodGet, chatapi.PathMessages+"?"+q.Encode(), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *ProxiedTransport) do(ctx context.Context, method, path string, body any, hdr http.Header, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.base+path, rd)
	if err != nil {
		return err
	}
	for k, vv := range hdr {
		req.Header[k] = vv
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var eb chatapi.ErrorBody
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		if json.Unmarshal(raw, &eb) != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(raw))
		}
		return classify(res.StatusCode, eb.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return nil
}
