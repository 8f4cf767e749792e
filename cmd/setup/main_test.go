package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/knowledge-library/internal/auth"
	"github.com/sakif/knowledge-library/internal/repository/sqlite"
	"github.com/sakif/knowledge-library/internal/service"
)

func newCredentials(t *testing.T) (*service.CredentialService, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewCredentialService(db, auth.NewPasswordServiceForTest(4), nil, logger), db
}

func runSetup(t *testing.T, creds userCreator, input string) (string, error) {
	t.Helper()
	in := bufio.NewReader(strings.NewReader(input))
	var out bytes.Buffer
	err := setup(context.Background(), creds, in, lineReader(in), &out)
	return out.String(), err
}

func TestSetup_CreatesUser(t *testing.T) {
	creds, db := newCredentials(t)

	out, err := runSetup(t, creds, "alice\nhunter22\nhunter22\n")

	require.NoError(t, err)
	assert.Contains(t, out, "User created: alice")
	assert.NotContains(t, out, "hunter22")

	exists, err := db.UsernameExists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	id, ok, err := creds.VerifyCredentials(context.Background(), "alice", "hunter22")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", id.Username)
}

func TestSetup_PasswordMismatch(t *testing.T) {
	creds, db := newCredentials(t)

	_, err := runSetup(t, creds, "alice\none\ntwo\n")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not match")
	exists, _ := db.UsernameExists(context.Background(), "alice")
	assert.False(t, exists)
}

func TestSetup_DuplicateUser(t *testing.T) {
	creds, _ := newCredentials(t)
	_, err := runSetup(t, creds, "alice\npw\npw\n")
	require.NoError(t, err)

	_, err = runSetup(t, creds, "alice\nother\nother\n")

	require.Error(t, err)
	assert.Equal(t, "user already exists", err.Error())
}

func TestSetup_EmptyUsername(t *testing.T) {
	creds, _ := newCredentials(t)

	_, err := runSetup(t, creds, "\npw\npw\n")

	require.Error(t, err)
	assert.Equal(t, "username is required", err.Error())
}

func TestSetup_NoTrailingNewline(t *testing.T) {
	creds, _ := newCredentials(t)

	_, err := runSetup(t, creds, "bob\npw\npw")

	require.NoError(t, err)
}
