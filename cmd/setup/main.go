// Command setup creates a knowledge library user from the terminal.
//
// It writes straight to the configured database, so the server does not need
// to be running. The password is read without echo when stdin is a terminal.
//
//	go run ./cmd/setup [-config config.yaml]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/sakif/knowledge-library/internal/apperror"
	"github.com/sakif/knowledge-library/internal/auth"
	"github.com/sakif/knowledge-library/internal/config"
	"github.com/sakif/knowledge-library/internal/logger"
	"github.com/sakif/knowledge-library/internal/model"
	"github.com/sakif/knowledge-library/internal/repository/sqlite"
	"github.com/sakif/knowledge-library/internal/service"
)

// userCreator is the part of service.CredentialService setup needs.
type userCreator interface {
	CreateUser(ctx context.Context, username, password string) (*model.User, error)
}

// passwordReader reads one secret line; the terminal version disables echo.
type passwordReader func() (string, error)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("KL_CONFIG"), "path to a YAML config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Read(*configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.BcryptCost < auth.MinCost {
		return fmt.Errorf("auth.bcrypt_cost must be at least %d", auth.MinCost)
	}

	// Only warnings and errors: the prompt owns stdout.
	logCfg := cfg.Log
	logCfg.Level = "warn"
	log, closer, err := logger.New(logCfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sqlite.New(cfg.Database.Path, sqlite.WithBusyTimeout(cfg.Database.BusyTimeout))
	if err != nil {
		return err
	}
	defer db.Close()

	// No token service: setup never logs anyone in.
	creds := service.NewCredentialService(db, auth.NewPasswordService(cfg.Auth.BcryptCost), nil, log)

	in := bufio.NewReader(os.Stdin)
	readPassword := lineReader(in)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		readPassword = terminalReader(int(os.Stdin.Fd()), os.Stdout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return setup(ctx, creds, in, readPassword, os.Stdout)
}

// setup prompts for a username and a confirmed password and creates the user.
func setup(ctx context.Context, creds userCreator, in *bufio.Reader, readPassword passwordReader, out io.Writer) error {
	fmt.Fprintln(out, "Setting up your knowledge library user")
	fmt.Fprintln(out)

	fmt.Fprint(out, "Username: ")
	username, err := readLine(in)
	if err != nil {
		return fmt.Errorf("reading username: %w", err)
	}

	fmt.Fprint(out, "Password: ")
	password, err := readPassword()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	fmt.Fprint(out, "Confirm password: ")
	confirm, err := readPassword()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	user, err := creds.CreateUser(ctx, username, password)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && !errors.Is(err, apperror.ErrInternal) {
			return errors.New(appErr.Message)
		}
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "User created: %s\n", user.Username)
	fmt.Fprintln(out, "Start the server and log in with POST /api/auth/login.")
	return nil
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func lineReader(in *bufio.Reader) passwordReader {
	return func() (string, error) { return readLine(in) }
}

func terminalReader(fd int, out io.Writer) passwordReader {
	return func() (string, error) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
