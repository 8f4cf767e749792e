package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/knowledge-library/internal/apperror"
	"github.com/sakif/knowledge-library/internal/model"
	"github.com/sakif/knowledge-library/internal/query"
	"github.com/sakif/knowledge-library/internal/repository"
	"github.com/sakif/knowledge-library/internal/youtube"
)

// Title length is counted in characters, content length in bytes.
const (
	MaxTitleLength   = 200
	MaxContentLength = 1 << 20
)

// EntryService implements owner-scoped entry operations. Create and Update
// write the entry row, its links, videos and category set in one transaction.
type EntryService struct {
	entries    repository.EntryRepository
	categories repository.CategoryRepository
	tx         repository.Transactor
	logger     *slog.Logger
}

func NewEntryService(
	entries repository.EntryRepository,
	categories repository.CategoryRepository,
	tx repository.Transactor,
	logger *slog.Logger,
) *EntryService {
	return &EntryService{
		entries:    entries,
		categories: categories,
		tx:         tx,
		logger:     logger,
	}
}

// List returns the owner's entries, most recently updated first.
func (s *EntryService) List(ctx context.Context, ownerID string) ([]model.Entry, error) {
	entries, err := s.entries.ListEntries(ctx, ownerID)
	if err != nil {
		s.logger.Error("failed to list entries",
			slog.String("owner", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, wrap("listing entries", err)
	}
	return entries, nil
}

// Search lists the owner's entries and applies c.
func (s *EntryService) Search(ctx context.Context, ownerID string, c query.Criteria) ([]model.Entry, error) {
	entries, err := s.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if c.IsZero() {
		return entries, nil
	}
	return query.Filter(entries, c), nil
}

func (s *EntryService) Get(ctx context.Context, ownerID, id string) (*model.Entry, error) {
	entry, err := s.entries.GetEntry(ctx, ownerID, id)
	if err != nil {
		return nil, wrap("getting entry", err)
	}
	return entry, nil
}

func (s *EntryService) Create(ctx context.Context, ownerID string, in model.EntryInput) (*model.Entry, error) {
	title, content, err := validateEntry(in)
	if err != nil {
		return nil, err
	}

	var created *model.Entry
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		entry := &model.Entry{UserID: ownerID, Title: title, Content: content}
		if err := s.entries.InsertEntry(ctx, entry); err != nil {
			return err
		}
		if err := s.replaceChildren(ctx, entry.ID, in); err != nil {
			return err
		}
		got, err := s.entries.GetEntry(ctx, ownerID, entry.ID)
		created = got
		return err
	})
	if err != nil {
		return nil, wrap("creating entry", err)
	}

	s.logger.Info("entry created",
		slog.String("id", created.ID),
		slog.String("owner", ownerID),
	)
	return created, nil
}

// Update replaces title, content, links, videos and category set of an entry
// owned by ownerID. Omitted links or videos leave the entry with none.
func (s *EntryService) Update(ctx context.Context, ownerID, id string, in model.EntryInput) (*model.Entry, error) {
	title, content, err := validateEntry(in)
	if err != nil {
		return nil, err
	}

	var updated *model.Entry
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		entry := &model.Entry{ID: id, UserID: ownerID, Title: title, Content: content}
		if err := s.entries.UpdateEntryFields(ctx, entry); err != nil {
			return err
		}
		if err := s.replaceChildren(ctx, id, in); err != nil {
			return err
		}
		got, err := s.entries.GetEntry(ctx, ownerID, id)
		updated = got
		return err
	})
	if err != nil {
		return nil, wrap("updating entry", err)
	}

	s.logger.Info("entry updated",
		slog.String("id", id),
		slog.String("owner", ownerID),
	)
	return updated, nil
}

func (s *EntryService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.entries.DeleteEntry(ctx, ownerID, id); err != nil {
		return wrap("deleting entry", err)
	}
	s.logger.Info("entry deleted",
		slog.String("id", id),
		slog.String("owner", ownerID),
	)
	return nil
}

// replaceChildren must run inside the caller's transaction.
func (s *EntryService) replaceChildren(ctx context.Context, entryID string, in model.EntryInput) error {
	links := make([]model.Link, 0, len(in.Links))
	for _, l := range in.Links {
		links = append(links, model.Link{
			Title: strings.TrimSpace(l.Title),
			URL:   strings.TrimSpace(l.URL),
		})
	}
	if err := s.entries.ReplaceLinks(ctx, entryID, links); err != nil {
		return err
	}

	videos := make([]model.Video, 0, len(in.Videos))
	for _, v := range in.Videos {
		id := youtube.NormalizeID(v.YouTubeID)
		if id == "" && strings.TrimSpace(v.YouTubeID) != "" {
			s.logger.Warn("unrecognized youtube reference stored without id",
				slog.String("entry", entryID),
				slog.String("input", v.YouTubeID),
			)
		}
		videos = append(videos, model.Video{
			Title:     strings.TrimSpace(v.Title),
			YouTubeID: id,
		})
	}
	if err := s.entries.ReplaceVideos(ctx, entryID, videos); err != nil {
		return err
	}

	known, err := s.categories.ExistingCategoryIDs(ctx, in.CategoryIDs)
	if err != nil {
		return err
	}
	if dropped := missing(in.CategoryIDs, known); len(dropped) > 0 {
		s.logger.Warn("unknown category ids ignored",
			slog.String("entry", entryID),
			slog.Any("categoryIds", dropped),
		)
	}
	return s.entries.ReplaceCategories(ctx, entryID, known)
}

func validateEntry(in model.EntryInput) (title, content string, err error) {
	title = strings.TrimSpace(in.Title)
	if title == "" {
		return "", "", apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", "", apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if strings.TrimSpace(in.Content) == "" {
		return "", "", apperror.ValidationFailed("content", "content is required")
	}
	if len(in.Content) > MaxContentLength {
		return "", "", apperror.ValidationFailed("content", "content is too long")
	}
	return title, in.Content, nil
}

// missing returns the non-empty ids in requested that are absent from known.
func missing(requested, known []string) []string {
	have := make(map[string]bool, len(known))
	for _, id := range known {
		have[id] = true
	}
	var out []string
	for _, id := range requested {
		if id != "" && !have[id] {
			have[id] = true
			out = append(out, id)
		}
	}
	return out
}
