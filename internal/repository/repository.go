// Package repository declares the persistence boundary the services depend on.
//
// Implementations return apperror kinds (NotFound, Conflict, Unavailable,
// Internal) so services can pass failures through without knowing the driver.
package repository

import (
	"context"

	"github.com/sakif/knowledge-library/internal/model"
)

// Transactor runs fn inside a single transaction. Repository calls made with
// the ctx passed to fn join that transaction; a nested WithinTx reuses it.
// Any error returned by fn rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserRepository interface {
	// CreateUser fails with apperror.ErrConflict when the username is taken.
	CreateUser(ctx context.Context, user *model.User, passwordHash string) error
	// GetCredentials returns the user and its stored password hash.
	GetCredentials(ctx context.Context, username string) (*model.User, string, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

type CategoryRepository interface {
	// ListCategories returns every category sorted by name, each with its
	// parent and direct children resolved.
	ListCategories(ctx context.Context) ([]model.Category, error)
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	CreateCategory(ctx context.Context, category *model.Category) error
	UpdateCategory(ctx context.Context, category *model.Category) error
	DeleteCategory(ctx context.Context, id string) error
	CountChildren(ctx context.Context, id string) (int, error)
	// ParentID returns the parent of id, or nil for a root.
	ParentID(ctx context.Context, id string) (*string, error)
	// ExistingCategoryIDs returns the subset of ids that exist, in input order.
	ExistingCategoryIDs(ctx context.Context, ids []string) ([]string, error)
}

// EntryRepository methods that take an ownerID never match another owner's
// rows: such an entry is reported as apperror.ErrNotFound.
type EntryRepository interface {
	ListEntries(ctx context.Context, ownerID string) ([]model.Entry, error)
	GetEntry(ctx context.Context, ownerID, id string) (*model.Entry, error)
	InsertEntry(ctx context.Context, entry *model.Entry) error
	UpdateEntryFields(ctx context.Context, entry *model.Entry) error
	DeleteEntry(ctx context.Context, ownerID, id string) error

	// ReplaceLinks, ReplaceVideos and ReplaceCategories discard the existing
	// rows for entryID and store exactly the given set.
	ReplaceLinks(ctx context.Context, entryID string, links []model.Link) error
	ReplaceVideos(ctx context.Context, entryID string, videos []model.Video) error
	ReplaceCategories(ctx context.Context, entryID string, categoryIDs []string) error
}
