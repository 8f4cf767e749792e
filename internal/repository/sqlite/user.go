package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/knowledge-library/internal/apperror"
	"github.com/sakif/knowledge-library/internal/model"
	"github.com/sakif/knowledge-library/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new user row. The UNIQUE constraint on username is the
// final arbiter: a concurrent duplicate that slipped past the service's
// existence check still fails here with apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User, passwordHash string) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.q(ctx).ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		passwordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user already exists")
		}
		return classify(fmt.Sprintf("inserting user %q", user.Username), err)
	}

	return nil
}

// GetCredentials looks a user up by exact (case-sensitive) username.
func (db *DB) GetCredentials(ctx context.Context, username string) (*model.User, string, error) {
	var (
		u    model.User
		hash string
	)

	err := db.q(ctx).QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at, updated_at
		 FROM users WHERE username = ?`,
		username,
	).Scan(&u.ID, &u.Username, &hash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", apperror.NotFound("user", username)
		}
		return nil, "", classify("getting user credentials", err)
	}

	return &u, hash, nil
}

// GetUserByID retrieves a user by internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := db.q(ctx).QueryRowContext(ctx,
		`SELECT id, username, created_at, updated_at FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Username, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, classify(fmt.Sprintf("getting user %s", id), err)
	}

	return &u, nil
}

func (db *DB) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := db.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ?`, username,
	).Scan(&n)
	if err != nil {
		return false, classify("checking username", err)
	}
	return n > 0, nil
}
