package main

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := newBase(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer b.close()

		if err := b.store.Migrate(cmd.Context()); err != nil {
			return err
		}
		b.log.Info("schema applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
