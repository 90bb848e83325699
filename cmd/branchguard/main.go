package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/branchguard/branchguard/internal/config"
	"github.com/branchguard/branchguard/internal/doctor"
	"github.com/branchguard/branchguard/internal/githubapp"
	"github.com/branchguard/branchguard/internal/ledger"
	"github.com/branchguard/branchguard/internal/log"
	"github.com/branchguard/branchguard/internal/protect"
	"github.com/branchguard/branchguard/internal/storage"
	"github.com/branchguard/branchguard/internal/tui"
	"github.com/branchguard/branchguard/internal/webhook"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "doctor":
		os.Exit(runDoctor(args))
	case "watch":
		os.Exit(runWatch(args))
	case "version":
		fmt.Printf("branchguard version %s\n", githubapp.Version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`branchguard - Automatic branch protection for new GitHub repositories

Usage:
  branchguard <command> [flags]

Commands:
  start     Start the webhook service in foreground
  doctor    Validate configuration and credentials
  watch     Show a live view of processed deliveries
  version   Show version information
  help      Show this help message

Flags:
  --config PATH   Path to the configuration file (default "config.yaml")
`)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("branchguard starting", "version", githubapp.Version, "config", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	deliveries := ledger.New(db)

	// Bootstrapping the client talks to the GitHub API. A service that
	// cannot authenticate is useless, so a failure here is fatal.
	client, err := githubapp.New(ctx, cfg.GitHubAPI, nil, log.WithComponent("github"))
	if err != nil {
		logger.Error("failed to initialize github app client", "error", err)
		return 1
	}

	guard := protect.New(client, deliveries, log.WithComponent("protect"))
	server := webhook.New(webhook.Config{
		Listen: cfg.Service.Listen,
		Secret: cfg.GitHubAPI.WebhookSecret,
	}, guard, log.WithComponent("webhook"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && err != context.Canceled {
			errCh <- err
		}
	}()

	logger.Info("branchguard running (press Ctrl+C to stop)")

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("webhook server failed", "error", err)
		cancel()
		exitCode = 1
	}

	// Let detached protection work finish before closing the database.
	guard.Wait()
	logger.Info("branchguard stopped")
	return exitCode
}

func runDoctor(args []string) int {
	var configPath, format string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	db, err := storage.OpenSQLite(context.Background(), cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	model := tui.NewWatch(ledger.New(db), cfg.State.Path)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Watch UI failed: %v\n", err)
		return 1
	}
	return 0
}
