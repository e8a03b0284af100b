package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/domain"
	"github.com/tbourn/go-livechat-backend/internal/repo"
)

// CannedInput is a new canned response.
type CannedInput struct {
	Title    string
	Content  string
	Shortcut string
	Category string
}

// CannedService manages an admin's saved replies.
type CannedService struct {
	DB *gorm.DB
}

// List returns the admin's canned responses, newest first.
func (s *CannedService) List(ctx context.Context, adminID string) ([]domain.CannedResponse, error) {
	out, err := repo.ListCanned(ctx, s.DB, adminID)
	if out == nil && err == nil {
		out = []domain.CannedResponse{}
	}
	return out, err
}

// Create stores a canned response. Title and content are required.
func (s *CannedService) Create(ctx context.Context, adminID string, in CannedInput) (*domain.CannedResponse, error) {
	title := clip(strings.TrimSpace(in.Title), 255)
	content := sanitizeContent(in.Content)
	if title == "" || content == "" {
		return nil, fmt.Errorf("%w: title and content are required", ErrEmptyContent)
	}
	c := &domain.CannedResponse{
		AdminID:  adminID,
		Title:    title,
		Content:  content,
		Shortcut: strPtr(clip(strings.TrimSpace(in.Shortcut), 64)),
		Category: strPtr(clip(strings.TrimSpace(in.Category), 64)),
	}
	if err := repo.CreateCanned(ctx, s.DB, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes one of the admin's canned responses.
func (s *CannedService) Delete(ctx context.Context, adminID, id string) error {
	err := repo.DeleteCanned(ctx, s.DB, adminID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrCannedNotFound
	}
	return err
}
