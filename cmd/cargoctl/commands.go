package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cargo-track/cargo_track/internal/config"
	"github.com/cargo-track/cargo_track/internal/identity"
	"github.com/cargo-track/cargo_track/internal/infra"
	"github.com/cargo-track/cargo_track/internal/logging"
)

// env is what every subcommand runs against. It is filled in by the root
// command's PersistentPreRunE and released in PersistentPostRunE.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	backend *infra.Backend
	users   *identity.Service
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "cargoctl",
		Short:         "Administer a cargo tracking deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			e.cfg = cfg
			e.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, logging.FormatText)
			if cmd.Annotations["store"] != "none" {
				backend, err := infra.Open(cmd.Context(), cfg, e.logger)
				if err != nil {
					return err
				}
				e.backend = backend
				e.users = identity.NewService(identity.NewStoreRepository(backend.Store))
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.backend != nil {
				return e.backend.Close()
			}
			return nil
		},
	}

	root.AddCommand(newMigrateCmd(e), newAdminCmd(e), newUserCmd(e))
	return root
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:         "migrate",
		Short:       "Apply PostgreSQL schema migrations",
		Annotations: map[string]string{"store": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			pool, err := infra.NewPostgresPool(cmd.Context(), e.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := infra.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newAdminCmd(e *env) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	var in identity.RegisterInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a new administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			in.Password = password
			user, err := createAdmin(cmd.Context(), e.users, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created administrator %s (%s)\n", user.FullName(), user.FinCode)
			return nil
		},
	}
	create.Flags().StringVar(&in.FirstName, "first", "", "first name")
	create.Flags().StringVar(&in.LastName, "last", "", "last name")
	create.Flags().StringVar(&in.FinCode, "fin", "", "FIN code")
	_ = create.MarkFlagRequired("first")
	_ = create.MarkFlagRequired("last")
	_ = create.MarkFlagRequired("fin")

	admin.AddCommand(create)
	return admin
}

func newUserCmd(e *env) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Inspect and change user accounts",
	}

	var search string
	var includeAdmins bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List users ordered by FIN code",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := e.users.List(cmd.Context(), identity.ListFilter{Search: search, ExcludeAdmins: !includeAdmins})
			if err != nil {
				return err
			}
			printUsers(cmd.OutOrStdout(), users)
			return nil
		},
	}
	list.Flags().StringVar(&search, "search", "", "filter by name or FIN code")
	list.Flags().BoolVar(&includeAdmins, "admins", true, "include administrators")

	promote := &cobra.Command{
		Use:   "promote <fin>",
		Short: "Grant administrator rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := setAdmin(cmd.Context(), e.users, args[0], true)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now an administrator\n", u.FinCode)
			return nil
		},
	}
	demote := &cobra.Command{
		Use:   "demote <fin>",
		Short: "Revoke administrator rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := setAdmin(cmd.Context(), e.users, args[0], false)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is no longer an administrator\n", u.FinCode)
			return nil
		},
	}

	user.AddCommand(list, promote, demote)
	return user
}

func createAdmin(ctx context.Context, users *identity.Service, in identity.RegisterInput) (identity.User, error) {
	u, err := users.Register(ctx, in)
	if err != nil {
		return identity.User{}, err
	}
	return setAdmin(ctx, users, u.FinCode, true)
}

func setAdmin(ctx context.Context, users *identity.Service, fin string, admin bool) (identity.User, error) {
	u, err := users.FindByFinCode(ctx, fin)
	if err != nil {
		return identity.User{}, fmt.Errorf("%s: %w", fin, err)
	}
	if u.IsAdmin == admin {
		return u, nil
	}
	return users.UpdateProfile(ctx, u.ID, identity.ProfileUpdate{IsAdmin: &admin})
}

func printUsers(w io.Writer, users []identity.User) {
	for _, u := range users {
		role := "user"
		if u.IsAdmin {
			role = "admin"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.FinCode, u.FullName(), role, u.ID)
	}
}
