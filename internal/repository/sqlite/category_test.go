package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/knowledge-library/internal/apperror"
	"github.com/sakif/knowledge-library/internal/model"
)

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateCategory(t *testing.T) {
	db := newTestDB(t)

	c := createTestCategory(t, db, "Languages", nil)
	if c.ID == "" {
		t.Error("CreateCategory() did not set ID")
	}

	got, err := db.GetCategory(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	if got.Name != "Languages" || got.ParentID != nil {
		t.Errorf("GetCategory() = %+v, want root named Languages", got)
	}
}

func TestCreateCategory_UnknownParent(t *testing.T) {
	db := newTestDB(t)
	missing := "does-not-exist"

	err := db.CreateCategory(context.Background(), &model.Category{Name: "Orphan", ParentID: &missing})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("CreateCategory() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestListCategories_SortedWithOneLevelExpansion(t *testing.T) {
	db := newTestDB(t)

	root := createTestCategory(t, db, "Programming", nil)
	goCat := createTestCategory(t, db, "Go", &root.ID)
	createTestCategory(t, db, "Channels", &goCat.ID)
	createTestCategory(t, db, "Art", nil)

	list, err := db.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}

	wantOrder := []string{"Art", "Channels", "Go", "Programming"}
	if len(list) != len(wantOrder) {
		t.Fatalf("ListCategories() returned %d categories, want %d", len(list), len(wantOrder))
	}
	for i, name := range wantOrder {
		if list[i].Name != name {
			t.Errorf("list[%d].Name = %q, want %q", i, list[i].Name, name)
		}
	}

	g := list[2]
	if g.Parent == nil || g.Parent.ID != root.ID {
		t.Fatalf("Go.Parent = %+v, want Programming", g.Parent)
	}
	if len(g.Children) != 1 || g.Children[0].Name != "Channels" {
		t.Fatalf("Go.Children = %+v, want [Channels]", g.Children)
	}
	if g.Parent.Parent != nil || g.Children[0].Children != nil {
		t.Error("expansion went deeper than one level")
	}
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestUpdateCategory_ClearsParent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	root := createTestCategory(t, db, "Root", nil)
	child := createTestCategory(t, db, "Child", &root.ID)

	child.Name = "Promoted"
	child.ParentID = nil
	if err := db.UpdateCategory(ctx, child); err != nil {
		t.Fatalf("UpdateCategory() error = %v", err)
	}

	got, err := db.GetCategory(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	if got.Name != "Promoted" || got.ParentID != nil {
		t.Errorf("after update got %+v, want root named Promoted", got)
	}
}

func TestUpdateCategory_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdateCategory(context.Background(), &model.Category{ID: "missing", Name: "x"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("UpdateCategory() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteCategory_WithChildrenIsConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	root := createTestCategory(t, db, "Root", nil)
	createTestCategory(t, db, "Child", &root.ID)

	err := db.DeleteCategory(ctx, root.ID)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("DeleteCategory() error = %v, want ErrConflict", err)
	}
	if _, err := db.GetCategory(ctx, root.ID); err != nil {
		t.Errorf("category disappeared after a refused delete: %v", err)
	}
}

func TestDeleteCategory_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.DeleteCategory(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("DeleteCategory() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteCategory_DropsEntryAssociation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := createTestUser(t, db, "alice")
	cat := createTestCategory(t, db, "Go", nil)
	e := &model.Entry{UserID: u.ID, Title: "t", Content: "c"}
	if err := db.InsertEntry(ctx, e); err != nil {
		t.Fatalf("InsertEntry() error = %v", err)
	}
	if err := db.ReplaceCategories(ctx, e.ID, []string{cat.ID}); err != nil {
		t.Fatalf("ReplaceCategories() error = %v", err)
	}

	if err := db.DeleteCategory(ctx, cat.ID); err != nil {
		t.Fatalf("DeleteCategory() error = %v", err)
	}

	got, err := db.GetEntry(ctx, u.ID, e.ID)
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if len(got.Categories) != 0 {
		t.Errorf("entry still has categories %+v after category delete", got.Categories)
	}
}

// =========================================================================
// TREE HELPERS
// =========================================================================

func TestParentIDAndCountChildren(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	root := createTestCategory(t, db, "Root", nil)
	createTestCategory(t, db, "A", &root.ID)
	b := createTestCategory(t, db, "B", &root.ID)

	n, err := db.CountChildren(ctx, root.ID)
	if err != nil {
		t.Fatalf("CountChildren() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountChildren() = %d, want 2", n)
	}

	parent, err := db.ParentID(ctx, b.ID)
	if err != nil {
		t.Fatalf("ParentID() error = %v", err)
	}
	if parent == nil || *parent != root.ID {
		t.Errorf("ParentID() = %v, want %q", parent, root.ID)
	}

	parent, err = db.ParentID(ctx, root.ID)
	if err != nil {
		t.Fatalf("ParentID(root) error = %v", err)
	}
	if parent != nil {
		t.Errorf("ParentID(root) = %q, want nil", *parent)
	}
}

func TestExistingCategoryIDs(t *testing.T) {
	db := newTestDB(t)

	a := createTestCategory(t, db, "A", nil)
	b := createTestCategory(t, db, "B", nil)

	got, err := db.ExistingCategoryIDs(context.Background(), []string{b.ID, "ghost", a.ID, b.ID})
	if err != nil {
		t.Fatalf("ExistingCategoryIDs() error = %v", err)
	}
	if len(got) != 2 || got[0] != b.ID || got[1] != a.ID {
		t.Errorf("ExistingCategoryIDs() = %v, want [%s %s]", got, b.ID, a.ID)
	}
}
