package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-livechat-backend/internal/chatapi"
)

// Store tables addressed by the direct strategy.
const (
	tableConfigs  = "chatbot_configs"
	tableSessions = "chat_sessions"
	tableMessages = "chat_messages"
	tableEvents   = "analytics_events"
)

// sideWriteTimeout bounds the detached activity and analytics writes.
const sideWriteTimeout = 5 * time.Second

const configColumns = "id,admin_id,widget_title,welcome_message,primary_color,position,avatar_url,show_branding,placeholder_text,offline_message"

// PageContext is recorded on sessions started by the direct strategy; the
// admin analytics read the referrer from it.
type PageContext struct {
	UserAgent string `json:"user_agent,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
}

// DirectTransport reads and writes the store's public REST interface with a
// low-privilege key. The store is trusted to reject rows tagged with an
// admin id the key may not write under; this type does no authorization.
type DirectTransport struct {
	// Page is stored as the metadata of every session this transport starts.
	Page PageContext
	// Logger receives failures of the detached side writes.
	Logger *zerolog.Logger

	base   string
	key    string
	client *http.Client
	now    func() time.Time

	mu       sync.Mutex
	owners   map[string]string       // chatbot id -> admin id
	sessions map[string]sessionOwner // session id -> owner
	side     sync.WaitGroup
}

type sessionOwner struct {
	AdminID   string `json:"admin_id"`
	ChatbotID string `json:"chatbot_id"`
}

// NewDirectTransport targets a store REST root such as
// https://project.example.co (tables live under /rest/v1). A URL that
// already ends in /rest/v1 is accepted as the same root.
func NewDirectTransport(storeURL, anonKey string, client *http.Client) *DirectTransport {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	root := strings.TrimSuffix(strings.TrimRight(storeURL, "/"), "/rest/v1")
	return &DirectTransport{
		base:     root + "/rest/v1/",
		key:      anonKey,
		client:   client,
		now:      func() time.Time { return time.Now().UTC() },
		owners:   make(map[string]string),
		sessions: make(map[string]sessionOwner),
	}
}

type configRow struct {
	chatapi.Config
	ID      string `json:"id"`
	AdminID string `json:"admin_id"`
}

// ResolveConfig reads the config row. The admin id comes back with it and is
// remembered for the session insert.
func (d *DirectTransport) ResolveConfig(ctx context.Context, chatbotID string) (chatapi.Config, error) {
	row, err := d.configRow(ctx, chatbotID)
	if err != nil {
		return chatapi.Config{}, err
	}
	return row.Config, nil
}

func (d *DirectTransport) configRow(ctx context.Context, chatbotID string) (*configRow, error) {
	if strings.TrimSpace(chatbotID) == "" {
		return nil, fmt.Errorf("%w: missing chatbot id", ErrBadRequest)
	}
	q := url.Values{
		"id":     {"eq." + chatbotID},
		"select": {configColumns},
		"limit":  {"1"},
	}
	var rows []configRow
	if err := d.do(ctx, http.MethodGet, tableConfigs, q, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: chatbot %s", ErrNotFound, chatbotID)
	}
	d.mu.Lock()
	d.owners[chatbotID] = rows[0].AdminID
	d.mu.Unlock()
	return &rows[0], nil
}

func (d *DirectTransport) ownerOf(ctx context.Context, chatbotID string) (string, error) {
	d.mu.Lock()
	admin, ok := d.owners[chatbotID]
	d.mu.Unlock()
	if ok {
		return admin, nil
	}
	row, err := d.configRow(ctx, chatbotID)
	if err != nil {
		return "", err
	}
	return row.AdminID, nil
}

type sessionRow struct {
	ID            string    `json:"id"`
	ChatbotID     string    `json:"chatbot_id"`
	AdminID       string    `json:"admin_id"`
	VisitorID     string    `json:"visitor_id"`
	VisitorName   string    `json:"visitor_name"`
	VisitorEmail  *string     `json:"visitor_email"`
	Status        string      `json:"status"`
	LastMessageAt time.Time   `json:"last_message_at"`
	Metadata      PageContext `json:"metadata"`
}

type eventRow struct {
	ID        string         `json:"id"`
	AdminID   string         `json:"admin_id"`
	ChatbotID *string        `json:"chatbot_id"`
	SessionID string         `json:"session_id"`
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data"`
}

// StartSession looks up the owning admin, then inserts the session row and
// records a session_started event.
func (d *DirectTransport) StartSession(ctx context.Context, chatbotID string, v Visitor) (string, error) {
	admin, err := d.ownerOf(ctx, chatbotID)
	if err != nil {
		return "", err
	}
	row := sessionRow{
		ID:            uuid.NewString(),
		ChatbotID:     chatbotID,
		AdminID:       admin,
		VisitorID:     uuid.NewString(),
		VisitorName:   v.Name,
		Status:        "active",
		LastMessageAt: d.now(),
		Metadata:      d.Page,
	}
	if row.VisitorName == "" {
		row.VisitorName = DefaultVisitorName
	}
	if v.Email != "" {
		row.VisitorEmail = &v.Email
	}

	var created []sessionRow
	if err := d.do(ctx, http.MethodPost, tableSessions, nil, row, &created); err != nil {
		return "", err
	}
	id := row.ID
	if len(created) > 0 && created[0].ID != "" {
		id = created[0].ID
	}
	owner := sessionOwner{AdminID: admin, ChatbotID: chatbotID}
	d.mu.Lock()
	d.sessions[id] = owner
	d.mu.Unlock()

	d.track(ctx, owner, id, "session_started", map[string]any{"visitor_name": row.VisitorName})
	return id, nil
}

func (d *DirectTransport) ownerOfSession(ctx context.Context, sessionID string) (sessionOwner, error) {
	d.mu.Lock()
	owner, ok := d.sessions[sessionID]
	d.mu.Unlock()
	if ok {
		return owner, nil
	}
	q := url.Values{"id": {"eq." + sessionID}, "select": {"admin_id,chatbot_id"}, "limit": {"1"}}
	var rows []sessionOwner
	if err := d.do(ctx, http.MethodGet, tableSessions, q, nil, &rows); err != nil {
		return sessionOwner{}, err
	}
	if len(rows) == 0 {
		return sessionOwner{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	d.mu.Lock()
	d.sessions[sessionID] = rows[0]
	d.mu.Unlock()
	return rows[0], nil
}

// detach runs a best-effort write off the caller's path. Failures are
// logged and never reach the caller.
func (d *DirectTransport) detach(ctx context.Context, what string, write func(context.Context) error) {
	bg := context.WithoutCancel(ctx)
	d.side.Add(1)
	go func() {
		defer d.side.Done()
		wctx, cancel := context.WithTimeout(bg, sideWriteTimeout)
		defer cancel()
		if err := write(wctx); err != nil {
			lg := log.Logger
			if d.Logger != nil {
				lg = *d.Logger
			}
			lg.Warn().Err(err).Str("write", what).Msg("direct store side write failed")
		}
	}()
}

// track records an analytics event. Message content is never included.
func (d *DirectTransport) track(ctx context.Context, owner sessionOwner, sessionID, eventType string, data map[string]any) {
	ev := eventRow{
		ID:        uuid.NewString(),
		AdminID:   owner.AdminID,
		SessionID: sessionID,
		EventType: eventType,
		EventData: data,
	}
	if owner.ChatbotID != "" {
		ev.ChatbotID = &owner.ChatbotID
	}
	d.detach(ctx, eventType, func(ctx context.Context) error {
		return d.do(ctx, http.MethodPost, tableEvents, nil, ev, nil)
	})
}

// Wait blocks until detached side writes have finished.
func (d *DirectTransport) Wait() { d.side.Wait() }

type messageRow struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id,omitempty"`
	AdminID    string     `json:"admin_id,omitempty"`
	Content    string     `json:"content"`
	SenderType string     `json:"sender_type"`
	IsRead     bool       `json:"is_read"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// messageID derives the row id from the send key, so a retried insert hits
// the primary key instead of duplicating the line.
func messageID(key string) string {
	if id, err := uuid.Parse(key); err == nil {
		return id.String()
	}
	if key == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("livechat:"+key)).String()
}

// Send inserts the message, then bumps the session's last activity and
// records a message_sent event off the caller's path. A primary key conflict
// means an earlier attempt landed and counts as success.
func (d *DirectTransport) Send(ctx context.Context, sessionID, content, key string) (chatapi.SendMessageResponse, error) {
	owner, err := d.ownerOfSession(ctx, sessionID)
	if err != nil {
		return chatapi.SendMessageResponse{}, err
	}
	row := messageRow{
		ID:         messageID(key),
		SessionID:  sessionID,
		AdminID:    owner.AdminID,
		Content:    content,
		SenderType: "visitor",
	}

	var created []messageRow
	err = d.do(ctx, http.MethodPost, tableMessages, nil, row, &created)
	replay := isConflict(err)
	if err != nil && !replay {
		return chatapi.SendMessageResponse{}, err
	}
	if len(created) == 0 || created[0].CreatedAt == nil {
		created, err = d.messageByID(ctx, sessionID, row.ID, "id,created_at")
		if err != nil {
			return chatapi.SendMessageResponse{}, err
		}
		if len(created) == 0 || created[0].CreatedAt == nil {
			return chatapi.SendMessageResponse{}, fmt.Errorf("%w: message %s not readable after insert", ErrUpstream, row.ID)
		}
	}

	bump := map[string]time.Time{"last_message_at": d.now()}
	d.detach(ctx, "activity", func(ctx context.Context) error {
		return d.do(ctx, http.MethodPatch, tableSessions, url.Values{"id": {"eq." + sessionID}}, bump, nil)
	})
	if !replay {
		d.track(ctx, owner, sessionID, "message_sent", map[string]any{
			"sender_type":    "visitor",
			"message_length": utf8.RuneCountInString(content),
		})
	}

	return chatapi.SendMessageResponse{MessageID: row.ID, CreatedAt: *created[0].CreatedAt}, nil
}

func (d *DirectTransport) messageByID(ctx context.Context, sessionID, id, columns string) ([]messageRow, error) {
	q := url.Values{
		"id":         {"eq." + id},
		"session_id": {"eq." + sessionID},
		"select":     {columns},
		"limit":      {"1"},
	}
	var rows []messageRow
	err := d.do(ctx, http.MethodGet, tableMessages, q, nil, &rows)
	return rows, err
}

// FetchNewSince pages forward from the cursor message by (created_at, id).
// A cursor that no longer resolves yields nothing; the next tick retries.
func (d *DirectTransport) FetchNewSince(ctx context.Context, sessionID, afterID string) ([]chatapi.Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrBadRequest)
	}
	q := url.Values{
		"session_id": {"eq." + sessionID},
		"select":     {"id,content,sender_type,created_at"},
		"order":      {"created_at.asc,id.asc"},
		"limit":      {fmt.Sprint(chatapi.MaxPollPage)},
	}
	if afterID != "" {
		ref, err := d.messageByID(ctx, sessionID, afterID, "id,created_at")
		if err != nil {
			return nil, err
		}
		if len(ref) == 0 || ref[0].CreatedAt == nil {
			return []chatapi.Message{}, nil
		}
		ts := `"` + ref[0].CreatedAt.UTC().Format(time.RFC3339Nano) + `"`
		q.Set("or", "(created_at.gt."+ts+",and(created_at.eq."+ts+",id.gt."+afterID+"))")
	}

	var rows []chatapi.Message
	if err := d.do(ctx, http.MethodGet, tableMessages, q, nil, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []chatapi.Message{}
	}
	return rows, nil
}

type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func isConflict(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusConflict
}

func (d *DirectTransport) do(ctx context.Context, method, table string, q url.Values, body any, out any) error {
	u := d.base + table
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", d.key)
	req.Header.Set("Authorization", "Bearer "+d.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set("Prefer", "return=representation")
	}

	res, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var eb struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		if json.Unmarshal(raw, &eb) != nil || eb.Message == "" {
			eb.Message = strings.TrimSpace(string(raw))
		}
		return &statusError{status: res.StatusCode, err: classify(res.StatusCode, eb.Message)}
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return nil
}
