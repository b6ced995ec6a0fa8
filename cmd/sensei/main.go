package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/sensei/internal/config"
	"github.com/joho/godotenv"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "mcp":
		err = cmdMCP(os.Args[2:])
	case "worker":
		err = cmdWorker()
	case "enqueue":
		err = cmdEnqueue(os.Args[2:])
	case "watch":
		err = cmdWatch(os.Args[2:])
	case "doctor":
		err = cmdDoctor()
	case "migrate":
		err = cmdMigrate()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("sensei %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Sensei - Adaptive practice challenges

Usage:
  sensei <command> [arguments]

Integration Commands:
  mcp [--http addr]         Start the MCP server (stdio, or HTTP with --http)

Queue Commands:
  worker                    Pre-generate challenges from queued jobs
  enqueue <subject> [count] Queue challenge generation for a subject
  watch [user]              Print progress events as they happen

Maintenance Commands:
  doctor                    Check the inference backend and storage
  migrate                   Apply pending storage migrations

Other:
  help                      Show this help message
  version                   Show version information

Examples:
  sensei mcp                          # MCP over stdio for an editor
  sensei enqueue python-advanced 5    # Fill the daily pool
  sensei doctor                       # Is Ollama reachable?`)
}

// loadConfig reads .env, the config files and environment overrides, and
// logs to stderr so stdout stays free for the MCP transport.
func loadConfig() (*config.LocalConfig, string, error) {
	_ = godotenv.Load()

	dir, err := config.EnsureSenseiDir()
	if err != nil {
		return nil, "", fmt.Errorf("ensure sensei dir: %w", err)
	}
	cfg, err := config.LoadLocalConfigFrom(dir)
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnv(cfg)

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Daemon.LogLevel),
	})))
	return cfg, dir, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
