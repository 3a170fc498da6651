package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentkb/internal/embeddings"
)

// demoSentences are compared by `embed demo`. Indices 0, 1 and 4 are about
// Agno, 2 is about the weather and 3 about programming.
var demoSentences = []string{
	"Agno is a framework for building AI agents.",
	"Agno provides tools for knowledge and storage.",
	"The weather is sunny today.",
	"I love programming with Python.",
	"Agno agents can use embeddings for semantic search.",
}

func newEmbedCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Inspect and set up the embedding model",
	}
	cmd.AddCommand(newEmbedDemoCmd(opts), newEmbedSetupCmd())
	return cmd
}

func newEmbedDemoCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Embed sample sentences and compare their similarity",
		Args:  cobra.NoArgs,
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

			if err := a.buildThrough(ctx, stepEmbedder); err != nil {
				return err
			}
			return runEmbedDemo(ctx, a.embedder, cmd.OutOrStdout())
		},
	}
}

func runEmbedDemo(ctx context.Context, client *embeddings.Client, out io.Writer) error {
	mode := okStyle.Render("model")
	if client.Degraded() {
		mode = skipStyle.Render("fallback")
	}
	fmt.Fprintln(out, titleStyle.Render("Embeddings demo"))
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("model"), client.Model())
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("mode"), mode)

	vectors, err := client.EmbedMany(ctx, demoSentences)
	if err != nil {
		return fmt.Errorf("embedding sentences: %w", err)
	}
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("embeddings"), len(vectors))
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("dimension"), len(vectors[0]))

	_, usage, err := client.EmbedWithUsage(ctx, demoSentences[0])
	if err != nil {
		return fmt.Errorf("embedding with usage: %w", err)
	}
	fmt.Fprintf(out, "%s %d tokens via %s\n", labelStyle.Render("usage"), usage.Tokens, usage.Source)

	sections := []struct {
		title string
		pairs [][2]int
	}{
		{"Agno sentences vs weather", [][2]int{{0, 2}, {1, 2}, {4, 2}}},
		{"Similar concepts", [][2]int{{0, 1}, {0, 4}}},
		{"Different concepts", [][2]int{{2, 3}}},
	}
	for _, sec := range sections {
		fmt.Fprintln(out)
		fmt.Fprintln(out, titleStyle.Render(sec.title))
		for _, p := range sec.pairs {
			sim, err := embeddings.CosineSimilarity(vectors[p[0]], vectors[p[1]])
			if err != nil {
				return fmt.Errorf("comparing sentences %d and %d: %w", p[0], p[1], err)
			}
			fmt.Fprintf(out, "  %.4f  %q vs %q\n", sim, preview(demoSentences[p[0]], 30), preview(demoSentences[p[1]], 30))
		}
	}
	return nil
}

func newEmbedSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Download the ONNX runtime used by the local embedding model",
		Long: `Download the ONNX runtime shared library for this platform into
~/.config/agentkb/lib. Nothing is downloaded when ONNX_PATH is set or the
library is already installed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			installer := embeddings.NewRuntimeInstaller()
			path, err := installer.Install(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("onnx runtime"), path)
			return nil
		},
	}
}
