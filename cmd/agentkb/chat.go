package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentkb/internal/agent"
	"github.com/fyrsmithlabs/agentkb/internal/knowledge"
	"github.com/fyrsmithlabs/agentkb/internal/tui"
)

// chatLogFile receives logs while the full-screen UI owns the terminal.
const chatLogFile = "tmp/agentkb.log"

func newChatCmd(opts *globalOptions) *cobra.Command {
	var (
		sessionID string
		plain     bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent",
		Long: `Start an interactive chat. The session is stored, so the agent sees the last
runs of the conversation. Pass --session to resume an earlier one.

Examples:
  agentkb chat
  agentkb chat --session 6f0c2f5e-4b7e-4a8d-9d0e-1c3c0b3c6e7a
  agentkb chat --plain < questions.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			logOut := cmd.ErrOrStderr()
			if !plain {
				f, err := openLogFile(chatLogFile)
				if err != nil {
					return err
				}
				defer f.Close()
				logOut = f
			}

			a, err := newApp(ctx, cfg, logOut)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.buildThrough(ctx, stepAgent); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if plain {
				sessionID, err = plainChat(ctx, a.agent, sessionID, cmd.InOrStdin(), out)
			} else {
				sessionID, err = tuiChat(ctx, a.agent, sessionID)
			}
			if sessionID != "" {
				fmt.Fprintf(out, "%s %s\n", labelStyle.Render("session"), sessionID)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "resume this session id")
	cmd.Flags().BoolVar(&plain, "plain", false, "read questions line by line from stdin instead of the terminal UI")
	return cmd
}

func newAskCmd(opts *globalOptions) *cobra.Command {
	var (
		sessionID  string
		references bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and stream the answer",
		Example: `  agentkb ask "What is Agno?"
  agentkb ask --references "How do agents use knowledge?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			out := cmd.OutOrStdout()
			res, err := a.agent.Run(ctx, sessionID, strings.Join(args, " "), func(chunk string) error {
				_, err := io.WriteString(out, chunk)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out)

			if references {
				printReferences(out, res)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "run within this session id")
	cmd.Flags().BoolVar(&references, "references", false, "print the knowledge references used for the answer")
	return cmd
}

// plainChat answers one question per input line until EOF or an exit word,
// and returns the session id in use.
func plainChat(ctx context.Context, runner tui.Runner, sessionID string, in io.Reader, out io.Writer) (string, error) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return sessionID, scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit", "bye":
			return sessionID, nil
		}

		res, err := runner.Run(ctx, sessionID, input, func(chunk string) error {
			_, err := io.WriteString(out, chunk)
			return err
		})
		fmt.Fprintln(out)
		if err != nil {
			if ctx.Err() != nil {
				return sessionID, ctx.Err()
			}
			fmt.Fprintln(out, failStyle.Render("error: "+err.Error()))
			continue
		}
		sessionID = res.SessionID
	}
}

func tuiChat(ctx context.Context, runner tui.Runner, sessionID string) (string, error) {
	m := tui.NewModel(ctx, runner, "agentkb", sessionID)
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return sessionID, fmt.Errorf("running chat UI: %w", err)
	}
	if fm, ok := final.(tui.Model); ok {
		return fm.SessionID(), nil
	}
	return sessionID, nil
}

func printReferences(out io.Writer, res *agent.Result) {
	if len(res.References) == 0 {
		return
	}
	fmt.Fprintln(out, titleStyle.Render("References"))
	for _, ref := range res.References {
		source, _ := ref.Metadata[knowledge.MetadataSource].(string)
		fmt.Fprintf(out, "  %.4f  %s  %s\n", ref.Score, ref.ID, source)
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
