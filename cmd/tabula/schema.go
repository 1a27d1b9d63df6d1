package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	sqlschema "github.com/syssam/tabula/dialect/sql/schema"
)

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print, create or drop the tables of the models",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "sql",
			Short: "Print the CREATE statements",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				stmts, _, closer, err := a.ddl(cmd, false)
				if err != nil {
					return err
				}
				defer closer()
				for _, s := range stmts {
					fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(s)+";")
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "create",
			Short: "Create the tables, indexes and constraints",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.applyDDL(cmd, false)
			},
		},
		&cobra.Command{
			Use:   "drop",
			Short: "Drop the constraints and tables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.applyDDL(cmd, true)
			},
		},
	)
	return cmd
}

// ddl validates the models and returns the statements creating, or
// dropping, their tables.
func (a *app) ddl(cmd *cobra.Command, drop bool) ([]string, sqlschema.Execer, func(), error) {
	c, stats, closer, err := a.open(cmd.Context())
	if err != nil {
		return nil, nil, nil, err
	}
	stmts, err := func() ([]string, error) {
		descs, err := c.Registry().Descriptors()
		if err != nil {
			return nil, err
		}
		result := sqlschema.ValidateSchema(stats.Dialect(), descs)
		for _, w := range result.Warnings {
			a.logger.Warn("schema", "warning", w.Error())
		}
		if err := result.Err(); err != nil {
			return nil, err
		}
		gen, err := sqlschema.New(stats, c.Registry())
		if err != nil {
			return nil, err
		}
		if drop {
			return sqlschema.DropStatements(gen, descs)
		}
		return sqlschema.Statements(gen, descs)
	}()
	if err != nil {
		closer()
		return nil, nil, nil, err
	}
	return stmts, stats, closer, nil
}

func (a *app) applyDDL(cmd *cobra.Command, drop bool) error {
	stmts, conn, closer, err := a.ddl(cmd, drop)
	if err != nil {
		return err
	}
	defer closer()
	if err := sqlschema.Exec(cmd.Context(), conn, stmts); err != nil {
		return err
	}
	a.logger.Info("schema applied", "statements", len(stmts), "drop", drop)
	return nil
}
