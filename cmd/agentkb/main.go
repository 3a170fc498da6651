// Agentkb is a command-line agent that answers questions from a URL
// knowledge base, remembers sessions, and embeds text with a local model or
// a deterministic fallback.
//
// Usage:
//
//	# Index the configured URLs, then chat
//	agentkb knowledge load
//	agentkb chat
//
//	# One-shot question
//	agentkb ask "What is Agno?"
//
//	# Check every component
//	agentkb selfcheck
//
//	# HTTP API or MCP tools
//	agentkb serve --port 9090
//	agentkb mcp
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentkb/internal/config"
)

// Version information (set via ldflags during build)
var version = "dev"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}

// exitError carries a process exit code without printing anything more.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "agentkb",
		Short: "Knowledge-backed agent with session storage and local embeddings",
		Long: `agentkb answers questions with an OpenAI-compatible chat model, grounded on
documents fetched from configured URLs and stored in a vector database.

Configuration is read from ~/.config/agentkb/config.yaml (or --config) and
AGENTKB_* environment variables. An optional .env file is loaded first.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/agentkb/config.yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration; missing files are ignored")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")

	root.AddCommand(
		newChatCmd(opts),
		newAskCmd(opts),
		newKnowledgeCmd(opts),
		newEmbedCmd(opts),
		newSelfcheckCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
	)
	return root
}

// loadConfig loads the env file, then configuration, then applies flag
// overrides.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.LoadWithFile(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// commandContext returns the command's context, which main wires to
// SIGINT and SIGTERM.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
