package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"raglab/internal/domain"
	"raglab/internal/vectorstore/pgvector"
)

func newSchemaCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Administer pgvector classes and their objects",
	}

	get := &cobra.Command{
		Use:   "get [CLASS]",
		Short: "Print one class definition, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, pg, err := openPgvector(cmd, open)
			if err != nil {
				return err
			}
			defer a.Close()
			class := ""
			if len(args) == 1 {
				class = args[0]
			}
			defs, err := pg.GetSchema(cmd.Context(), class)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), defs)
		},
	}

	var (
		defFile, tmplFile, values string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a class from a JSON definition or a rendered template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, pg, err := openPgvector(cmd, open)
			if err != nil {
				return err
			}
			defer a.Close()

			var def pgvector.ClassDefinition
			switch {
			case tmplFile != "":
				def, err = pgvector.RenderClassDefinition(a.resolveTemplate(tmplFile), values)
			case defFile != "":
				def, err = readClassDefinition(defFile)
			default:
				return domain.Errorf(domain.KindInvalidArgument, "file", "give a class definition with --file or --template")
			}
			if err != nil {
				return err
			}
			created, err := pg.CreateSchema(cmd.Context(), def)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), created)
		},
	}
	create.Flags().StringVarP(&defFile, "file", "f", "", "JSON class definition")
	create.Flags().StringVarP(&tmplFile, "template", "t", "", "schema template in the template directory")
	create.Flags().StringVar(&values, "values", "", "JSON object of template values")

	del := &cobra.Command{
		Use:   "delete CLASS",
		Short: "Drop a class with all of its objects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, pg, err := openPgvector(cmd, open)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := pg.DeleteSchema(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted class %q.\n", args[0])
			return nil
		},
	}

	var (
		properties []string
		batchSize  int
		cursor     string
	)
	batch := &cobra.Command{
		Use:   "batch CLASS",
		Short: "Read one page of objects; pass the printed cursor to read the next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, pg, err := openPgvector(cmd, open)
			if err != nil {
				return err
			}
			defer a.Close()
			page, err := pg.GetBatch(cmd.Context(), args[0], properties, batchSize, cursor)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	batch.Flags().StringSliceVar(&properties, "properties", nil, "properties to return (default all)")
	batch.Flags().IntVar(&batchSize, "size", 20, "objects per page")
	batch.Flags().StringVar(&cursor, "cursor", "", "id of the last object of the previous page")

	var renderValues string
	render := &cobra.Command{
		Use:   "render TEMPLATE",
		Short: "Render a schema template without creating the class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			def, err := pgvector.RenderClassDefinition(a.resolveTemplate(args[0]), renderValues)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), def)
		},
	}
	render.Flags().StringVar(&renderValues, "values", "", "JSON object of template values")

	deleteObjects := &cobra.Command{
		Use:   "delete-objects CLASS ID...",
		Short: "Delete objects by id",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, pg, err := openPgvector(cmd, open)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := pg.DeleteObjects(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d object(s) from %q.\n", n, args[0])
			return nil
		},
	}

	cmd.AddCommand(get, create, del, batch, render, deleteObjects)
	return cmd
}

func openPgvector(cmd *cobra.Command, open opener) (*app, *pgvector.Storage, error) {
	a, err := open(cmd)
	if err != nil {
		return nil, nil, err
	}
	pg, err := a.pgvector()
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, pg, nil
}

// resolveTemplate looks up bare template names in the template directory.
func (a *app) resolveTemplate(name string) string {
	if _, err := os.Stat(name); err == nil || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(a.cfg.TemplateDirectory, name)
}

func readClassDefinition(path string) (pgvector.ClassDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pgvector.ClassDefinition{}, domain.NewError(domain.KindInvalidArgument, path, "cannot read class definition", err)
	}
	var def pgvector.ClassDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return pgvector.ClassDefinition{}, domain.NewError(domain.KindInvalidTemplateFormat, path, "class definition is not valid JSON", err)
	}
	return def, def.Validate()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
