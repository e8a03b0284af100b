// Package services – ConfigService
//
// ConfigService resolves a public chatbot identifier to the widget's display
// configuration and owns admin-side config edits. Resolved configs are kept
// in a cache.Store for CacheTTL; any cache failure falls through to the
// database so a cache outage never blocks a widget boot.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/cache"
	"github.com/tbourn/go-livechat-backend/internal/domain"
	"github.com/tbourn/go-livechat-backend/internal/observability"
	"github.com/tbourn/go-livechat-backend/internal/repo"
)

// ResolvedConfig is a public config together with its owning admin. Only the
// session establisher and the direct strategy need the owner.
type ResolvedConfig struct {
	AdminID string              `json:"admin_id"`
	Config  domain.PublicConfig `json:"config"`
}

// ConfigPatch carries the fields an admin may change. Nil means unchanged.
// An empty AvatarURL clears the avatar.
type ConfigPatch struct {
	Name            *string `json:"name"`
	WidgetTitle     *string `json:"widget_title"`
	WelcomeMessage  *string `json:"welcome_message"`
	OfflineMessage  *string `json:"offline_message"`
	PlaceholderText *string `json:"placeholder_text"`
	PrimaryColor    *string `json:"primary_color"`
	Position        *string `json:"position"`
	ShowBranding    *bool   `json:"show_branding"`
	AvatarURL       *string `json:"avatar_url"`
}

// ConfigService resolves and edits chatbot configs.
type ConfigService struct {
	DB       *gorm.DB
	Cache    cache.Store
	CacheTTL time.Duration
}

var hexColorRE = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func configKey(chatbotID string) string { return "config:" + chatbotID }

// Resolve returns the visitor-safe config for chatbotID.
func (s *ConfigService) Resolve(ctx context.Context, chatbotID string) (domain.PublicConfig, error) {
	rc, err := s.ResolveWithOwner(ctx, chatbotID)
	if err != nil {
		return domain.PublicConfig{}, err
	}
	return rc.Config, nil
}

// Owner returns the admin id owning chatbotID. It shares the cache with
// Resolve so a config that resolves also yields an owner.
func (s *ConfigService) Owner(ctx context.Context, chatbotID string) (string, error) {
	rc, err := s.ResolveWithOwner(ctx, chatbotID)
	if err != nil {
		return "", err
	}
	return rc.AdminID, nil
}

// ResolveWithOwner returns the public config plus the owning admin id.
func (s *ConfigService) ResolveWithOwner(ctx context.Context, chatbotID string) (*ResolvedConfig, error) {
	tr := otel.Tracer("services/ConfigService")
	ctx, span := tr.Start(ctx, "ResolveWithOwner",
		trace.WithAttributes(attribute.String("chatbot.id", chatbotID)),
	)
	defer span.End()

	chatbotID = strings.TrimSpace(chatbotID)
	if chatbotID == "" {
		return nil, ErrMissingChatbotID
	}

	if rc, ok := s.cached(ctx, chatbotID); ok {
		return rc, nil
	}

	c, err := repo.GetConfig(ctx, s.DB, chatbotID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrChatbotNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("resolve config: %w", err)
	}

	rc := &ResolvedConfig{AdminID: c.AdminID, Config: c.Public()}
	s.store(ctx, chatbotID, rc)
	return rc, nil
}

func (s *ConfigService) cacheEnabled() bool { return s.Cache != nil && s.CacheTTL > 0 }

func (s *ConfigService) cached(ctx context.Context, chatbotID string) (*ResolvedConfig, bool) {
	if !s.cacheEnabled() {
		return nil, false
	}
	b, err := s.Cache.Get(ctx, configKey(chatbotID))
	switch {
	case errors.Is(err, cache.ErrMiss):
		observability.ConfigCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	case err != nil:
		observability.ConfigCacheLookups.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("chatbot_id", chatbotID).Msg("config cache read failed")
		return nil, false
	}
	var rc ResolvedConfig
	if err := json.Unmarshal(b, &rc); err != nil {
		observability.ConfigCacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	observability.ConfigCacheLookups.WithLabelValues("hit").Inc()
	return &rc, true
}

func (s *ConfigService) store(ctx context.Context, chatbotID string, rc *ResolvedConfig) {
	if !s.cacheEnabled() {
		return
	}
	b, err := json.Marshal(rc)
	if err != nil {
		return
	}
	if err := s.Cache.Set(ctx, configKey(chatbotID), b, s.CacheTTL); err != nil {
		log.Warn().Err(err).Str("chatbot_id", chatbotID).Msg("config cache write failed")
	}
}

func (s *ConfigService) invalidate(ctx context.Context, chatbotID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Del(ctx, configKey(chatbotID)); err != nil {
		log.Warn().Err(err).Str("chatbot_id", chatbotID).Msg("config cache invalidation failed")
	}
}

// EnsureForAdmin returns the admin's config, creating it with onboarding
// defaults when it does not exist yet.
func (s *ConfigService) EnsureForAdmin(ctx context.Context, adminID string) (*domain.ChatbotConfig, error) {
	tr := otel.Tracer("services/ConfigService")
	ctx, span := tr.Start(ctx, "EnsureForAdmin",
		trace.WithAttributes(attribute.String("admin.id", adminID)),
	)
	defer span.End()

	c, err := repo.GetConfigByAdmin(ctx, s.DB, adminID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	c, err = repo.CreateDefaultConfig(ctx, s.DB, adminID)
	if err != nil {
		// A concurrent request may have created it first.
		if again, gerr := repo.GetConfigByAdmin(ctx, s.DB, adminID); gerr == nil {
			return again, nil
		}
		return nil, err
	}
	return c, nil
}

// Update validates patch, applies it to the admin's config and drops the
// cached copy.
func (s *ConfigService) Update(ctx context.Context, adminID string, patch ConfigPatch) (*domain.ChatbotConfig, error) {
	tr := otel.Tracer("services/ConfigService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(attribute.String("admin.id", adminID)),
	)
	defer span.End()

	fields, err := patch.fields()
	if err != nil {
		return nil, err
	}
	current, err := s.EnsureForAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := repo.UpdateConfig(ctx, s.DB, adminID, fields); err != nil {
			return nil, err
		}
		s.invalidate(ctx, current.ID)
	}
	return repo.GetConfigByAdmin(ctx, s.DB, adminID)
}

// fields converts the patch to column updates, validating as it goes.
func (p ConfigPatch) fields() (map[string]any, error) {
	out := map[string]any{}
	text := func(col string, v *string) error {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		if t == "" {
			return fmt.Errorf("%w: %s must not be blank", ErrInvalidConfig, col)
		}
		out[col] = t
		return nil
	}
	for col, v := range map[string]*string{
		"name":             p.Name,
		"widget_title":     p.WidgetTitle,
		"welcome_message":  p.WelcomeMessage,
		"offline_message":  p.OfflineMessage,
		"placeholder_text": p.PlaceholderText,
	} {
		if err := text(col, v); err != nil {
			return nil, err
		}
	}
	if p.PrimaryColor != nil {
		c := strings.TrimSpace(*p.PrimaryColor)
		if !hexColorRE.MatchString(c) {
			return nil, fmt.Errorf("%w: primary_color must be #rrggbb", ErrInvalidConfig)
		}
		out["primary_color"] = strings.ToLower(c)
	}
	if p.Position != nil {
		if !domain.ValidPosition(*p.Position) {
			return nil, fmt.Errorf("%w: position must be bottom-right or bottom-left", ErrInvalidConfig)
		}
		out["position"] = *p.Position
	}
	if p.ShowBranding != nil {
		out["show_branding"] = *p.ShowBranding
	}
	if p.AvatarURL != nil {
		out["avatar_url"] = strPtr(strings.TrimSpace(*p.AvatarURL))
	}
	return out, nil
}
