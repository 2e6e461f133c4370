package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"theater-site/internal/status"
	"theater-site/internal/store"
	"theater-site/models"
)

type ContentService struct {
	store store.ContentStore
}

func NewContentService(s store.ContentStore) *ContentService {
	return &ContentService{store: s}
}

// GetSiteContent returns the stored document, or the built-in defaults
// before anything has been saved.
func (s *ContentService) GetSiteContent(ctx context.Context) (*models.SiteContent, error) {
	c, err := s.store.GetSiteContent(ctx)
	if errors.Is(err, status.ErrNotFound) {
		return DefaultSiteContent(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetSiteContent: %w", err)
	}
	c.Normalize()
	return c, nil
}

// SaveSiteContent replaces the whole document. Concurrent editors overwrite
// each other.
func (s *ContentService) SaveSiteContent(ctx context.Context, c *models.SiteContent) (*models.SiteContent, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: empty content", status.ErrInvalidInput)
	}
	c.Normalize()
	c.UpdatedAt = time.Now().UTC()

	if err := s.store.SaveSiteContent(ctx, c); err != nil {
		return nil, fmt.Errorf("SaveSiteContent: %w", err)
	}
	return c, nil
}

// SeedFromYAML loads a content document from r. An existing document is
// only replaced when overwrite is set.
func (s *ContentService) SeedFromYAML(ctx context.Context, r io.Reader, overwrite bool) (bool, error) {
	var c models.SiteContent
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return false, fmt.Errorf("%w: yaml: %v", status.ErrInvalidInput, err)
	}

	if !overwrite {
		_, err := s.store.GetSiteContent(ctx)
		if err == nil {
			slog.Info("site content already present, seed skipped")
			return false, nil
		}
		if !errors.Is(err, status.ErrNotFound) {
			return false, fmt.Errorf("GetSiteContent: %w", err)
		}
	}

	if _, err := s.SaveSiteContent(ctx, &c); err != nil {
		return false, err
	}
	return true, nil
}

// FindEvent looks the event up in the current content.
func (s *ContentService) FindEvent(ctx context.Context, id string) (models.ShowItem, bool) {
	c, err := s.GetSiteContent(ctx)
	if err != nil {
		slog.Warn("content.FindEvent()", "event_id", id, "error", err)
		return models.ShowItem{}, false
	}
	return c.FindEvent(id)
}

// DefaultSiteContent is served until the admin saves the first document.
func DefaultSiteContent() *models.SiteContent {
	c := &models.SiteContent{
		Banner: []models.Banner{
			{Title: "Bem-vindo ao teatro", Subtitle: "Confira a programação"},
		},
		AboutUs: []models.Section{
			{Title: "Quem somos", Text: "Um grupo de teatro dedicado às artes cênicas."},
		},
	}
	c.Normalize()
	return c
}
