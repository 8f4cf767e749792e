package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/knowledge-library/internal/apperror"
	"github.com/sakif/knowledge-library/internal/auth"
	"github.com/sakif/knowledge-library/internal/model"
	"github.com/sakif/knowledge-library/internal/repository"
)

const MaxUsernameLength = 64

// CredentialService owns users: it creates them with a bcrypt hash and checks
// username/password pairs. Plaintext passwords are never stored or logged.
type CredentialService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	logger    *slog.Logger
}

func NewCredentialService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *CredentialService {
	return &CredentialService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		logger:    logger,
	}
}

// NormalizeUsername is applied on both the create and the lookup path, so a
// name accepted by CreateUser is always found again by VerifyCredentials.
// Case is preserved: usernames are case-sensitive.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// LoginResult is returned by Login.
type LoginResult struct {
	User  model.Identity `json:"user"`
	Token string         `json:"token"`
}

// CreateUser registers username with a hash of password. A taken username
// fails with apperror.ErrConflict and no record is written.
func (s *CredentialService) CreateUser(ctx context.Context, username, password string) (*model.User, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	exists, err := s.users.UsernameExists(ctx, username)
	if err != nil {
		return nil, wrap("checking username", err)
	}
	if exists {
		return nil, apperror.Conflict("user already exists")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
		}
		return nil, wrap("hashing password", err)
	}

	user := &model.User{Username: username}
	if err := s.users.CreateUser(ctx, user, hash); err != nil {
		return nil, wrap("creating user", err)
	}

	s.logger.Info("user created",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// VerifyCredentials returns the identity for a matching username/password
// pair. An unknown user or a wrong password yields ok == false and a nil
// error, and both cases cost one bcrypt comparison.
func (s *CredentialService) VerifyCredentials(ctx context.Context, username, password string) (model.Identity, bool, error) {
	username = NormalizeUsername(username)
	user, hash, err := s.users.GetCredentials(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.BurnCompare(password)
			return model.Identity{}, false, nil
		}
		return model.Identity{}, false, wrap("looking up credentials", err)
	}

	ok, err := s.passwords.Matches(hash, password)
	if err != nil {
		return model.Identity{}, false, wrap("verifying password", err)
	}
	if !ok {
		return model.Identity{}, false, nil
	}
	return user.Identity(), true, nil
}

// Login verifies the pair and issues a session token. Bad credentials are
// reported as apperror.ErrUnauthenticated without saying which part was wrong.
func (s *CredentialService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	id, ok, err := s.VerifyCredentials(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("login failed", slog.String("username", username))
		return nil, apperror.Unauthenticated("invalid username or password")
	}

	token, err := s.tokens.Generate(id)
	if err != nil {
		return nil, wrap("issuing token", err)
	}

	s.logger.Info("user logged in", slog.String("userID", id.UserID))
	return &LoginResult{User: id, Token: token}, nil
}

func (s *CredentialService) GetUser(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, wrap("fetching user", err)
	}
	return user, nil
}
