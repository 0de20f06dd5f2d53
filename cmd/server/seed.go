package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crm/internal/core"
)

// seedUser is one demo account created by seed-users.
type seedUser struct {
	Email    string
	Password string
	Name     string
	Role     core.Role
}

var demoUsers = []seedUser{
	{Email: "admin@crm.com", Password: "admin123", Name: "Administrator", Role: core.RoleAdmin},
	{Email: "ivan.petrov@crm.com", Password: "employee123", Name: "Ivan Petrov", Role: core.RoleEmployee},
	{Email: "maria.sidorova@crm.com", Password: "employee123", Name: "Maria Sidorova", Role: core.RoleEmployee},
	{Email: "alex.kuznetsov@crm.com", Password: "employee123", Name: "Alexey Kuznetsov", Role: core.RoleEmployee},
}

var seedUsersCmd = &cobra.Command{
	Use:   "seed-users",
	Short: "Create the demo admin and employee accounts if absent",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		for _, u := range demoUsers {
			created, err := a.svc.EnsureUser(ctx, u.Email, u.Password, u.Name, u.Role)
			if err != nil {
				return fmt.Errorf("seed %s: %w", u.Email, err)
			}
			if created {
				slog.Info("user created", "email", u.Email, "role", u.Role)
			} else {
				slog.Info("user already exists, skipping", "email", u.Email)
			}
		}
		return nil
	},
}
