package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newSelfcheckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "selfcheck",
		Short: "Construct every component and report its status",
		Long: `Construct the embedder, vector store, knowledge base, session storage, chat
model and agent in order, printing one status line each. Components after a
failure are skipped. Exits with status 1 when any component fails.`,
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

			if !runSelfcheck(a, cmd) {
				cmd.SilenceErrors = true
				return exitError{code: 1}
			}
			return nil
		},
	}
}

// runSelfcheck prints a line per component and reports whether all of
// them were built.
func runSelfcheck(a *app, cmd *cobra.Command) bool {
	out := cmd.OutOrStdout()
	ctx := commandContext(cmd)

	for {
		res, more := a.next(ctx)
		if !more {
			break
		}
		if res.err != nil {
			printStatus(out, failStyle.Render("FAIL"), res.name, res.err.Error())
			for _, s := range steps[a.built+1:] {
				printStatus(out, skipStyle.Render("SKIP"), s.name, "")
			}
			return false
		}
		printStatus(out, okStyle.Render(" OK "), res.name, res.detail)
	}

	if a.redactor != nil {
		printStatus(out, okStyle.Render(" OK "), "secrets", "redacting sessions and knowledge")
	} else {
		printStatus(out, skipStyle.Render("OFF "), "secrets", "disabled")
	}

	health := a.telemetry.Health()
	switch {
	case !health.Enabled:
		printStatus(out, skipStyle.Render("OFF "), "telemetry", "disabled")
	case health.Degraded:
		printStatus(out, failStyle.Render("WARN"), "telemetry", "exporter unavailable")
	default:
		printStatus(out, okStyle.Render(" OK "), "telemetry", a.cfg.Telemetry.Endpoint)
	}
	return true
}

func printStatus(out io.Writer, status, name, detail string) {
	fmt.Fprintf(out, "[%s] %s %s\n", status, labelStyle.Render(name), detail)
}
