package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "raglab",
		Short:         "Ask questions over your documents with retrieval-augmented generation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./raglab.yaml or ~/.config/raglab/config.yaml)")

	open := func(cmd *cobra.Command) (*app, error) {
		return newApp(cmd.Context(), cfgPath, cmd.ErrOrStderr())
	}
	root.AddCommand(
		newAskCmd(open),
		newTUICmd(open),
		newIngestCmd(open),
		newCollectionsCmd(open),
		newSchemaCmd(open),
		newPromptsCmd(open),
	)
	return root
}
