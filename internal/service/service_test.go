package service

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sakif/knowledge-library/internal/auth"
	"github.com/sakif/knowledge-library/internal/repository/sqlite"
)

// testEnv wires every service against one in-memory database.
type testEnv struct {
	db          *sqlite.DB
	credentials *CredentialService
	categories  *CategoryService
	entries     *EntryService
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	logger := quietLogger()

	return &testEnv{
		db:          db,
		credentials: NewCredentialService(db, auth.NewPasswordServiceForTest(4), tokens, logger),
		categories:  NewCategoryService(db, db, logger),
		entries:     NewEntryService(db, db, db, logger),
	}
}

func ptr(s string) *string { return &s }
