package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkb/internal/config"
	agenthttp "github.com/fyrsmithlabs/agentkb/internal/http"
	"github.com/fyrsmithlabs/agentkb/internal/mcp"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over an HTTP JSON API",
		Long: `Serve the agent, knowledge search and stored sessions over HTTP.

Endpoints:
  GET    /health
  GET    /metrics
  POST   /api/v1/ask
  POST   /api/v1/knowledge/search
  GET    /api/v1/sessions
  GET    /api/v1/sessions/:id
  DELETE /api/v1/sessions/:id`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.buildThrough(ctx, stepAgent); err != nil {
				return err
			}
			return serveHTTP(ctx, a, cfg.Server)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (default server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default server.port)")
	return cmd
}

func serveHTTP(ctx context.Context, a *app, cfg config.ServerConfig) error {
	deps := agenthttp.Deps{Agent: a.agent, Sessions: a.sessions}
	if a.knowledge != nil {
		deps.Knowledge = a.knowledge
	}

	server, err := agenthttp.NewServer(deps, a.logger, agenthttp.ConfigFrom(cfg))
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.zl.Warn("http shutdown failed", zap.Error(err))
		return err
	}
	return <-errCh
}

func newMCPCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the agent as MCP tools over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the tools
ask, search_knowledge, list_sessions and get_session.

Stdout carries the protocol, so logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.buildThrough(ctx, stepAgent); err != nil {
				return err
			}

			deps := mcp.Deps{Agent: a.agent, Sessions: a.sessions}
			if a.knowledge != nil {
				deps.Knowledge = a.knowledge
			}
			server, err := mcp.NewServer(&mcp.Config{Name: "agentkb", Version: version}, deps, a.logger)
			if err != nil {
				return fmt.Errorf("creating mcp server: %w", err)
			}
			return server.Run(ctx)
		},
	}
}
