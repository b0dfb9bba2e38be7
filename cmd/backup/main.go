package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/semmidev/folderbak/internal/app"
	"github.com/semmidev/folderbak/internal/config"
	"github.com/semmidev/folderbak/internal/domain"
	"github.com/semmidev/folderbak/internal/infrastructure/logger"
)

// Exit codes: 0 success, 1 run failure, 2 configuration or usage error.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file (.env, .yaml, .json or .toml); defaults to ./.env when present")
	authAddr := fs.String("gdrive-auth", "", "serve the Google Drive consent flow on this address and print a refresh token")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	cfg, err := config.Load(*configPath)
	if *authAddr != "" {
		return driveAuth(ctx, cfg, *authAddr, stderr)
	}
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		log, logErr := logger.New(logger.Options{})
		if logErr == nil {
			app.ReportConfigError(ctx, cfg, err, log)
		}
		return exitConfig
	}

	application, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "initialize app: %v\n", err)
		return exitConfig
	}
	defer application.Shutdown()

	if err := application.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "backup failed: %v\n", err)
		if errors.Is(err, domain.ErrConfiguration) {
			return exitConfig
		}
		return exitFailure
	}
	return exitOK
}

func driveAuth(ctx context.Context, cfg *config.Config, addr string, stderr io.Writer) int {
	if cfg == nil || cfg.GDrive.ClientSecretFile == "" {
		fmt.Fprintln(stderr, "load config: GDRIVE_CLIENT_SECRET_FILE is required for -gdrive-auth")
		return exitConfig
	}

	log, err := logger.New(logger.Options{Verbose: true})
	if err != nil {
		fmt.Fprintf(stderr, "initialize logger: %v\n", err)
		return exitConfig
	}
	defer log.Close()

	server, err := app.NewDriveAuthServer(log, cfg.GDrive.ClientSecretFile)
	if err != nil {
		fmt.Fprintf(stderr, "gdrive auth: %v\n", err)
		return exitConfig
	}

	token, err := server.Run(ctx, addr)
	if err != nil {
		fmt.Fprintf(stderr, "gdrive auth: %v\n", err)
		return exitFailure
	}
	fmt.Printf("GDRIVE_REFRESH_TOKEN=%s\n", token)
	return exitOK
}
