package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"quiz-admin-service/internal/config"
	"quiz-admin-service/internal/domain"
	"quiz-admin-service/internal/infra/postgres"
)

// NewRolesCmd manages role grants through the privileged role store. This is
// the operator path; it runs with the authz service account and does not go
// through the policy set.
func NewRolesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage role grants (operator path)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "grant <principal-id> <role>",
		Short: "Grant a role to a principal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoleStore(cmd.Context(), *configPath, func(ctx context.Context, rs *postgres.RoleStore) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid principal id: %w", err)
				}
				if err := rs.Grant(ctx, id, domain.Role(args[1])); err != nil {
					return err
				}
				fmt.Printf("granted %s to %s\n", args[1], id)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <principal-id> <role>",
		Short: "Revoke a role from a principal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoleStore(cmd.Context(), *configPath, func(ctx context.Context, rs *postgres.RoleStore) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid principal id: %w", err)
				}
				if err := rs.Revoke(ctx, id, domain.Role(args[1])); err != nil {
					return err
				}
				fmt.Printf("revoked %s from %s\n", args[1], id)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all role grants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoleStore(cmd.Context(), *configPath, func(ctx context.Context, rs *postgres.RoleStore) error {
				grants, err := rs.List(ctx)
				if err != nil {
					return err
				}
				for _, g := range grants {
					fmt.Printf("%s\t%s\t%s\n", g.PrincipalID, g.Role, g.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
				}
				return nil
			})
		},
	})

	return cmd
}

func withRoleStore(ctx context.Context, configPath string, fn func(context.Context, *postgres.RoleStore) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	rs, err := postgres.NewRoleStore(ctx, cfg.AuthzDSN())
	if err != nil {
		return err
	}
	defer rs.Close()
	return fn(ctx, rs)
}
