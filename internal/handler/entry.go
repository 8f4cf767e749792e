package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/knowledge-library/internal/model"
	"github.com/sakif/knowledge-library/internal/query"
)

// Entries is the slice of service.EntryService the entry routes use. Every
// method takes the owner from the authenticated identity, never from the request.
type Entries interface {
	Search(ctx context.Context, ownerID string, c query.Criteria) ([]model.Entry, error)
	Get(ctx context.Context, ownerID, id string) (*model.Entry, error)
	Create(ctx context.Context, ownerID string, in model.EntryInput) (*model.Entry, error)
	Update(ctx context.Context, ownerID, id string, in model.EntryInput) (*model.Entry, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// EntryHandler serves the owner-scoped entry routes.
type EntryHandler struct {
	entries  Entries
	validate *validator.Validate
	logger   *slog.Logger
}

func NewEntryHandler(entries Entries, logger *slog.Logger) *EntryHandler {
	return &EntryHandler{
		entries:  entries,
		validate: newValidator(),
		logger:   logger,
	}
}

type linkRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"   validate:"max=2048"`
}

type videoRequest struct {
	Title     string `json:"title"`
	YouTubeID string `json:"youtubeId" validate:"max=2048"`
}

// entryRequest is shared by create and update. On update, omitted links,
// videos or categoryIds mean "none": the stored sets are replaced, not merged.
type entryRequest struct {
	Title       string         `json:"title"       validate:"required,max=200"`
	Content     string         `json:"content"     validate:"required"`
	Links       []linkRequest  `json:"links"       validate:"dive"`
	Videos      []videoRequest `json:"videos"      validate:"dive"`
	CategoryIDs []string       `json:"categoryIds"`
}

func (req *entryRequest) input() model.EntryInput {
	in := model.EntryInput{
		Title:       req.Title,
		Content:     req.Content,
		Links:       make([]model.LinkInput, 0, len(req.Links)),
		Videos:      make([]model.VideoInput, 0, len(req.Videos)),
		CategoryIDs: req.CategoryIDs,
	}
	for _, l := range req.Links {
		in.Links = append(in.Links, model.LinkInput{Title: l.Title, URL: l.URL})
	}
	for _, v := range req.Videos {
		in.Videos = append(in.Videos, model.VideoInput{Title: v.Title, YouTubeID: v.YouTubeID})
	}
	return in
}

// HandleList returns the caller's entries, most recently updated first.
//
// HTTP: GET /api/entries?search=rust&categoryId=abc
//
// Both query parameters are optional. search matches title or content
// case-insensitively; categoryId keeps entries tagged with that category.
func (h *EntryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.logger)
	if !ok {
		return
	}

	c := query.Criteria{
		Search:     r.URL.Query().Get("search"),
		CategoryID: r.URL.Query().Get("categoryId"),
	}
	entries, err := h.entries.Search(r.Context(), id.UserID, c)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGetByID returns one of the caller's entries.
//
// HTTP: GET /api/entries/{id}
func (h *EntryHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.logger)
	if !ok {
		return
	}

	entry, err := h.entries.Get(r.Context(), id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleCreate stores a new entry with its links, videos and categories.
//
// HTTP: POST /api/entries
// REQUEST BODY:
//
//	{
//	  "title": "Go channels",
//	  "content": "...",
//	  "links": [{"title": "Tour", "url": "https://go.dev/tour"}],
//	  "videos": [{"title": "Talk", "youtubeId": "https://youtu.be/f6kdp27TYZs"}],
//	  "categoryIds": ["..."]
//	}
func (h *EntryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.logger)
	if !ok {
		return
	}

	var req entryRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	entry, err := h.entries.Create(r.Context(), id.UserID, req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// HandleUpdate replaces an entry's fields and its link, video and category sets.
//
// HTTP: PUT /api/entries/{id}
func (h *EntryHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.logger)
	if !ok {
		return
	}

	var req entryRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	entry, err := h.entries.Update(r.Context(), id.UserID, chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleDelete removes an entry together with its links and videos.
//
// HTTP: DELETE /api/entries/{id}
func (h *EntryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.entries.Delete(r.Context(), id.UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
