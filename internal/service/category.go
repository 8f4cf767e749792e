package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/knowledge-library/internal/apperror"
	"github.com/sakif/knowledge-library/internal/model"
	"github.com/sakif/knowledge-library/internal/repository"
)

const MaxCategoryNameLength = 100

// CategoryService manages the global category tree. Structural checks (parent
// exists, no cycles, no children on delete) run inside the same transaction
// as the write they guard.
type CategoryService struct {
	repo   repository.CategoryRepository
	tx     repository.Transactor
	logger *slog.Logger
}

func NewCategoryService(repo repository.CategoryRepository, tx repository.Transactor, logger *slog.Logger) *CategoryService {
	return &CategoryService{
		repo:   repo,
		tx:     tx,
		logger: logger,
	}
}

// List returns all categories by name, each with parent and direct children.
func (s *CategoryService) List(ctx context.Context) ([]model.Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		s.logger.Error("failed to list categories", slog.String("error", err.Error()))
		return nil, wrap("listing categories", err)
	}
	return categories, nil
}

// Create adds a category, optionally under parentID.
func (s *CategoryService) Create(ctx context.Context, name string, parentID *string) (*model.Category, error) {
	name, err := validateCategoryName(name)
	if err != nil {
		return nil, err
	}
	parentID = normalizeID(parentID)

	category := &model.Category{Name: name, ParentID: parentID}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if parentID != nil {
			if _, err := s.repo.GetCategory(ctx, *parentID); err != nil {
				return err
			}
		}
		return s.repo.CreateCategory(ctx, category)
	})
	if err != nil {
		return nil, wrap("creating category", err)
	}

	s.logger.Info("category created",
		slog.String("id", category.ID),
		slog.String("name", category.Name),
	)
	return category, nil
}

// Update renames id and moves it under parentID, or to the root when parentID
// is nil. Moving a category under itself or any of its descendants fails with
// apperror.ErrValidation.
func (s *CategoryService) Update(ctx context.Context, id, name string, parentID *string) (*model.Category, error) {
	name, err := validateCategoryName(name)
	if err != nil {
		return nil, err
	}
	parentID = normalizeID(parentID)

	category := &model.Category{ID: id, Name: name, ParentID: parentID}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetCategory(ctx, id); err != nil {
			return err
		}
		if parentID != nil {
			if err := s.checkNoCycle(ctx, id, *parentID); err != nil {
				return err
			}
		}
		return s.repo.UpdateCategory(ctx, category)
	})
	if err != nil {
		return nil, wrap("updating category", err)
	}

	s.logger.Info("category updated", slog.String("id", category.ID))
	return category, nil
}

// checkNoCycle walks up from newParentID and fails if it reaches id.
func (s *CategoryService) checkNoCycle(ctx context.Context, id, newParentID string) error {
	if _, err := s.repo.GetCategory(ctx, newParentID); err != nil {
		return err
	}

	seen := map[string]bool{}
	for cur := &newParentID; cur != nil; {
		if *cur == id {
			return apperror.ValidationFailed("parentId", "a category cannot be moved under itself or one of its subcategories")
		}
		if seen[*cur] {
			// the existing chain already loops without passing through id
			return nil
		}
		seen[*cur] = true

		next, err := s.repo.ParentID(ctx, *cur)
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// Delete removes a category that has no subcategories. Entries lose the
// category from their sets.
func (s *CategoryService) Delete(ctx context.Context, id string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetCategory(ctx, id); err != nil {
			return err
		}
		n, err := s.repo.CountChildren(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperror.Conflict("cannot delete category with subcategories")
		}
		return s.repo.DeleteCategory(ctx, id)
	})
	if err != nil {
		return wrap("deleting category", err)
	}

	s.logger.Info("category deleted", slog.String("id", id))
	return nil
}

func validateCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("name", "category name is required")
	}
	if utf8.RuneCountInString(name) > MaxCategoryNameLength {
		return "", apperror.ValidationFailed("name",
			fmt.Sprintf("category name must be %d characters or less", MaxCategoryNameLength))
	}
	return name, nil
}

// normalizeID treats a blank id the same as no id.
func normalizeID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
