// Command server runs the knowledge library HTTP API.
//
// Configuration comes from an optional YAML file (-config), an optional .env
// file in the working directory, and KL_* environment variables. See
// internal/config for the full list.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/sakif/knowledge-library/internal/config"
	"github.com/sakif/knowledge-library/internal/logger"
	"github.com/sakif/knowledge-library/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("KL_CONFIG"), "path to a YAML config file")
	flag.Parse()

	// A missing .env is normal in production where the environment is set directly.
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	if envErr != nil && !os.IsNotExist(envErr) {
		log.Warn("could not read .env", slog.String("error", envErr.Error()))
	}

	if cfg.Database.Path != ":memory:" {
		dir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}

	// Start blocks until SIGINT/SIGTERM and closes the database on the way out.
	return srv.Start()
}
