package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newKnowledgeCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the URL knowledge base",
	}
	cmd.AddCommand(newKnowledgeLoadCmd(opts), newKnowledgeSearchCmd(opts))
	return cmd
}

func newKnowledgeLoadCmd(opts *globalOptions) *cobra.Command {
	var recreate bool

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Fetch the configured URLs and index them",
		Long: `Fetch every knowledge URL, split it into chunks, embed them and store them in
the vector store. A collection that already holds documents is left alone
unless --recreate is given.`,
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

			if err := a.buildThrough(ctx, stepKnowledge); err != nil {
				return err
			}
			if a.knowledge == nil {
				return fmt.Errorf("no knowledge urls configured (set knowledge.urls)")
			}

			stats, err := a.knowledge.Load(ctx, recreate)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if stats.Skipped {
				fmt.Fprintf(out, "%s collection %q already loaded, use --recreate to rebuild\n",
					skipStyle.Render("skipped"), a.store.Collection())
				return nil
			}
			fmt.Fprintf(out, "%s %d documents from %d urls in %s\n",
				okStyle.Render("loaded"), stats.Documents, stats.URLs, stats.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().BoolVar(&recreate, "recreate", false, "drop the collection before loading")
	return cmd
}

func newKnowledgeSearchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Show the documents the agent would receive for a query",
		Args:  cobra.MinimumNArgs(1),
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

			if err := a.buildThrough(ctx, stepKnowledge); err != nil {
				return err
			}
			if a.knowledge == nil {
				return fmt.Errorf("no knowledge urls configured (set knowledge.urls)")
			}

			results, err := a.knowledge.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, skipStyle.Render("no documents; run `agentkb knowledge load` first"))
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%s %.4f %s\n", titleStyle.Render(fmt.Sprintf("#%d", i+1)), r.Score, r.ID)
				fmt.Fprintln(out, preview(r.Content, 200))
			}
			return nil
		},
	}
}

// preview collapses whitespace and truncates s to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
