package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/knowledge-library/internal/model"
)

// Categories is the slice of service.CategoryService the category routes use.
type Categories interface {
	List(ctx context.Context) ([]model.Category, error)
	Create(ctx context.Context, name string, parentID *string) (*model.Category, error)
	Update(ctx context.Context, id, name string, parentID *string) (*model.Category, error)
	Delete(ctx context.Context, id string) error
}

// CategoryHandler exposes the global category tree. Every route still sits
// behind RequireAuth even though categories are not owned by a user.
type CategoryHandler struct {
	categories Categories
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewCategoryHandler(categories Categories, logger *slog.Logger) *CategoryHandler {
	return &CategoryHandler{
		categories: categories,
		validate:   newValidator(),
		logger:     logger,
	}
}

// categoryRequest is shared by create and update. A missing or null parentId
// makes the category a root.
type categoryRequest struct {
	Name     string  `json:"name"     validate:"required,max=100"`
	ParentID *string `json:"parentId"`
}

// HandleList returns every category sorted by name, each with its parent and
// direct children.
//
// HTTP: GET /api/categories
func (h *CategoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if categories == nil {
		categories = []model.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}

// HandleCreate adds a category.
//
// HTTP: POST /api/categories
// REQUEST BODY: {"name": "Go", "parentId": "optional-parent-id"}
func (h *CategoryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	category, err := h.categories.Create(r.Context(), req.Name, req.ParentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

// HandleUpdate renames and/or re-parents a category.
//
// HTTP: PUT /api/categories/{id}
func (h *CategoryHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req categoryRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	category, err := h.categories.Update(r.Context(), id, req.Name, req.ParentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

// HandleDelete removes a category without subcategories (409 otherwise).
//
// HTTP: DELETE /api/categories/{id}
func (h *CategoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.categories.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
