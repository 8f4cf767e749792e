package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/knowledge-library/internal/apperror"
	"github.com/sakif/knowledge-library/internal/model"
	"github.com/sakif/knowledge-library/internal/repository"
)

var _ repository.CategoryRepository = (*DB)(nil)

const categoryColumns = `id, name, parent_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(s rowScanner) (model.Category, error) {
	var (
		c      model.Category
		parent sql.NullString
	)
	if err := s.Scan(&c.ID, &c.Name, &parent, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return model.Category{}, err
	}
	if parent.Valid {
		p := parent.String
		c.ParentID = &p
	}
	return c, nil
}

// ListCategories loads the whole taxonomy in one query and resolves parents
// and direct children in memory.
func (db *DB) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := db.q(ctx).QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, classify("listing categories", err)
	}
	defer rows.Close()

	var flat []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning category: %w", err)
		}
		flat = append(flat, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating categories", err)
	}

	byID := make(map[string]model.Category, len(flat))
	children := make(map[string][]model.Category)
	for _, c := range flat {
		byID[c.ID] = c
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c)
		}
	}

	out := make([]model.Category, 0, len(flat))
	for _, c := range flat {
		if c.ParentID != nil {
			if p, ok := byID[*c.ParentID]; ok {
				c.Parent = &p
			}
		}
		c.Children = children[c.ID]
		out = append(out, c)
	}
	return out, nil
}

func (db *DB) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	c, err := scanCategory(db.q(ctx).QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("category", id)
		}
		return nil, classify(fmt.Sprintf("getting category %s", id), err)
	}
	return &c, nil
}

func (db *DB) CreateCategory(ctx context.Context, category *model.Category) error {
	now := time.Now().UTC()
	category.ID = xid.New().String()
	category.CreatedAt = now
	category.UpdatedAt = now

	_, err := db.q(ctx).ExecContext(ctx,
		`INSERT INTO categories (id, name, parent_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		category.ID,
		category.Name,
		nullString(category.ParentID),
		category.CreatedAt,
		category.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("category", deref(category.ParentID))
		}
		return classify("inserting category", err)
	}
	return nil
}

// UpdateCategory rewrites name and parent_id. A nil ParentID makes it a root.
func (db *DB) UpdateCategory(ctx context.Context, category *model.Category) error {
	category.UpdatedAt = time.Now().UTC()

	result, err := db.q(ctx).ExecContext(ctx,
		`UPDATE categories SET name = ?, parent_id = ?, updated_at = ? WHERE id = ?`,
		category.Name,
		nullString(category.ParentID),
		category.UpdatedAt,
		category.ID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("category", deref(category.ParentID))
		}
		return classify(fmt.Sprintf("updating category %s", category.ID), err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return classify("checking rows affected", err)
	}
	if n == 0 {
		return apperror.NotFound("category", category.ID)
	}

	// created_at is not part of the statement; read it back so callers get the full record.
	return db.q(ctx).QueryRowContext(ctx,
		`SELECT created_at FROM categories WHERE id = ?`, category.ID,
	).Scan(&category.CreatedAt)
}

// DeleteCategory removes the row; entry_categories rows go with it through
// ON DELETE CASCADE. A category that still has children is rejected by the
// parent_id foreign key, which is reported as a conflict.
func (db *DB) DeleteCategory(ctx context.Context, id string) error {
	result, err := db.q(ctx).ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.Conflict("cannot delete category with subcategories")
		}
		return classify(fmt.Sprintf("deleting category %s", id), err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return classify("checking rows affected", err)
	}
	if n == 0 {
		return apperror.NotFound("category", id)
	}
	return nil
}

func (db *DB) CountChildren(ctx context.Context, id string) (int, error) {
	var n int
	err := db.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE parent_id = ?`, id,
	).Scan(&n)
	if err != nil {
		return 0, classify("counting subcategories", err)
	}
	return n, nil
}

func (db *DB) ParentID(ctx context.Context, id string) (*string, error) {
	var parent sql.NullString
	err := db.q(ctx).QueryRowContext(ctx,
		`SELECT parent_id FROM categories WHERE id = ?`, id,
	).Scan(&parent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("category", id)
		}
		return nil, classify("reading category parent", err)
	}
	if !parent.Valid {
		return nil, nil
	}
	return &parent.String, nil
}

func (db *DB) ExistingCategoryIDs(ctx context.Context, ids []string) ([]string, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.q(ctx).QueryContext(ctx,
		`SELECT id FROM categories WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, classify("resolving category ids", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning category id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating category ids", err)
	}

	out := make([]string, 0, len(found))
	for _, id := range ids {
		if found[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// ===== HELPERS =====

func isForeignKeyViolation(err error) bool {
	var se *sqlitedriver.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
