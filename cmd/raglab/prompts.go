package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPromptsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect built-in and custom prompts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List prompt names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			names, err := a.svc.Prompts()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show NAME",
		Short: "Print a prompt's system and human templates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			t, err := a.svc.Prompt(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s (variables: %s)\n\n", t.Name, strings.Join(t.InputVariables, ", "))
			fmt.Fprintf(out, "## system\n%s\n\n## human\n%s\n", t.System, t.Human)
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
