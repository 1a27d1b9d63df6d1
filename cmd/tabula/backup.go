package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syssam/tabula/backup"
)

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup [dir]",
		Short: "Dump every entity type to a backup directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Backup.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			format := a.cfg.BackupFormat()
			if f, _ := cmd.Flags().GetString("format"); f != "" {
				var err error
				if format, err = backup.ParseFormat(f); err != nil {
					return err
				}
			}
			c, _, closer, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closer()
			m, err := backup.WriteDir(cmd.Context(), c, dir, format)
			if err != nil {
				return err
			}
			for _, f := range m.Files {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", f.Entity, f.Count, f.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringP("format", "f", "", "backup format (json, yaml, msgpack)")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [dir]",
		Short: "Restore a backup directory into empty tables",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Backup.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			c, _, closer, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closer()
			m, err := backup.ReadDir(cmd.Context(), c, dir)
			if err != nil {
				return err
			}
			var rows int
			for _, f := range m.Files {
				rows += f.Count
			}
			a.logger.Info("backup restored", "id", m.ID, "created", m.Created, "rows", rows)
			return nil
		},
	}
}
