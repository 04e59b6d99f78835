package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"raglab/internal/domain"
)

func newCollectionsCmd(open opener) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:     "collections",
		Aliases: []string{"coll"},
		Short:   "List, create and delete collections",
	}
	cmd.PersistentFlags().StringVarP(&backend, "backend", "b", "", "vector store backend: qdrant, pgvector or memory")

	withBackend := func(cmd *cobra.Command) (*app, domain.Backend, error) {
		a, err := open(cmd)
		if err != nil {
			return nil, 0, err
		}
		b, err := domain.ParseBackend(firstNonEmpty(backend, a.cfg.VectorStore.Backend))
		if err != nil {
			a.Close()
			return nil, 0, err
		}
		return a, b, nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List collections with their approximate sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, b, err := withBackend(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			infos, err := a.svc.Collections(cmd.Context(), b)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCOUNT")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%d\n", info.Name, info.Count)
			}
			return tw.Flush()
		},
	}

	var distance, textKey string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an empty collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b, err := withBackend(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			d, err := domain.ParseDistance(distance)
			if err != nil {
				return err
			}
			if err := a.svc.CreateCollection(cmd.Context(), b, textKey, args[0], d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created collection %q on %s.\n", args[0], b)
			return nil
		},
	}
	create.Flags().StringVar(&distance, "distance", "cosine", "distance metric: cosine, l2 or ip")
	create.Flags().StringVar(&textKey, "text-key", "", "text property of the new class (pgvector)")

	del := &cobra.Command{
		Use:     "delete NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a collection and everything in it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b, err := withBackend(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.svc.DeleteCollection(cmd.Context(), b, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted collection %q from %s.\n", args[0], b)
			return nil
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}
