package main

import (
	"flag"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/sensei/internal/app"
	mcpserver "github.com/felixgeelhaar/sensei/internal/mcp"
)

// cmdMCP starts the MCP server on stdio, or on HTTP with --http.
func cmdMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	httpAddr := fs.String("http", "", "serve MCP over HTTP on this address instead of stdio")
	user := fs.String("user", "", "learner ID for tool calls that name none")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := app.Build(ctx, cfg, app.Options{Dir: dir})
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Close()

	defaultUser := *user
	if defaultUser == "" {
		defaultUser = cfg.Daemon.DefaultUser
	}
	srv := mcpserver.NewServer(mcpserver.Config{
		Practice:    a.Practice,
		DefaultUser: defaultUser,
		Version:     Version,
	})

	if *httpAddr != "" {
		slog.Info("serving MCP over HTTP", "addr", *httpAddr)
		return srv.ServeHTTP(ctx, *httpAddr)
	}
	return srv.ServeStdio(ctx)
}
