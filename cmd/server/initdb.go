package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create any missing database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !strings.EqualFold(cfg.Store.Driver, "postgres") {
			return errors.New("init-db requires STORE_DRIVER=postgres")
		}

		pg, err := openPostgres(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pg.Close()

		return pg.EnsureSchema(cmd.Context())
	},
}
