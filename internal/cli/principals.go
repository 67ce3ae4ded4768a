package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"quiz-admin-service/internal/config"
	"quiz-admin-service/internal/domain"
	"quiz-admin-service/internal/infra/postgres"
)

// NewPrincipalsCmd provisions and removes principals. Creation runs the same
// fused principal+profile transaction the identity-provider hook uses.
func NewPrincipalsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "principals",
		Short: "Provision and remove principals",
	}

	var email, name, rawID string
	create := &cobra.Command{
		Use:   "create",
		Short: "Provision a principal with its profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			np := domain.NewPrincipal{Email: email, DisplayName: name}
			if rawID != "" {
				id, err := uuid.Parse(rawID)
				if err != nil {
					return fmt.Errorf("invalid principal id: %w", err)
				}
				np.ID = id
			}

			db := openBunDB(cfg.Postgres.URL)
			defer db.Close()

			pr, err := postgres.NewIdentityStore(db).CreatePrincipal(cmd.Context(), np)
			if err != nil {
				return err
			}
			fmt.Printf("created principal %s (%s)\n", pr.ID, pr.Email)
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "principal email (required)")
	create.Flags().StringVar(&name, "name", "", "display name (defaults to email)")
	create.Flags().StringVar(&rawID, "id", "", "principal id (defaults to a new uuid)")
	_ = create.MarkFlagRequired("email")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <principal-id>",
		Short: "Delete a principal and everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid principal id: %w", err)
			}

			db := openBunDB(cfg.Postgres.URL)
			defer db.Close()

			if err := postgres.NewIdentityStore(db).DeletePrincipal(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("deleted principal %s\n", id)
			return nil
		},
	})

	return cmd
}
