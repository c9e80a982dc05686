package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskbase/internal/access"
	"taskbase/internal/app"
	"taskbase/internal/config"
	"taskbase/internal/db"
	"taskbase/internal/domain"
	"taskbase/internal/engine"
	"taskbase/internal/migrate"
	"taskbase/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tb",
	Short: "Taskbase CLI",
	Long: `Taskbase is a multi-tenant task management backend.
Organizations own workspaces, workspaces hold tasks, and every task is a
sequence of steps that carry their own approval and evidence requirements.
The CLI manages the local workspace database, the plan catalog, and runs
the HTTP API server. Day-to-day task work happens over the API.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKBASE")
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "root", "actor recorded for CLI-driven changes")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(logCmd())
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := app.Build(conn, cfg)
			if err := app.SeedDefaultPlans(cmd.Context(), e); err != nil {
				return err
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.Auth.JWTSecret, TokenTTLHours: cfg.Auth.TokenTTLHours},
				Uploads:  app.BlobStore(workspace, cfg),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Taskbase API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace config",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default taskbase.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func adminCmd() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Platform administration",
	}
	admin.AddCommand(adminCreateCmd())
	admin.AddCommand(adminTokenCmd())
	return admin
}

func adminTokenCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for a user (development use)",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user, err := e.Repo.GetUserByEmail(ctx, email)
				if err != nil {
					return err
				}
				token, err := server.IssueToken(server.AuthConfig{
					JWTSecret:     cfg.Auth.JWTSecret,
					TokenTTLHours: cfg.Auth.TokenTTLHours,
				}, user.ID, user.Role, user.OrgID, time.Now())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"token": token})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func adminCreateCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-super",
		Short: "Create the platform super admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user, err := app.EnsureSuperAdmin(ctx, e, name, email, password)
				if err != nil {
					return err
				}
				return printJSONOrTable(user)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{
		Use:   "plan",
		Short: "Manage the subscription plan catalog",
	}
	plan.AddCommand(planListCmd())
	plan.AddCommand(planCreateCmd())
	plan.AddCommand(planUpdateCmd())
	plan.AddCommand(planDeleteCmd())
	plan.AddCommand(planSeedCmd())
	return plan
}

func planListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plans, err := e.ListPlans(ctx, !all)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(plans)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Price", "Interval", "Active"})
				for _, p := range plans {
					tw.AppendRow(table.Row{p.ID, p.Name, fmt.Sprintf("%d %s", p.PriceCents, p.Currency), p.Interval, p.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include inactive plans")
	return cmd
}

func planCreateCmd() *cobra.Command {
	var plan domain.Plan
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.CreatePlan(ctx, cliPrincipal(), plan)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&plan.Name, "name", "", "plan name")
	cmd.Flags().StringVar(&plan.Description, "description", "", "description")
	cmd.Flags().Int64Var(&plan.PriceCents, "price-cents", 0, "price in minor units")
	cmd.Flags().StringVar(&plan.Currency, "currency", "USD", "ISO currency code")
	cmd.Flags().StringVar(&plan.Interval, "interval", "monthly", "billing interval (monthly, yearly)")
	cmd.Flags().IntVar(&plan.MaxWorkspaces, "max-workspaces", 0, "workspace cap (0 for unlimited)")
	cmd.Flags().IntVar(&plan.MaxMembers, "max-members", 0, "member cap (0 for unlimited)")
	cmd.Flags().BoolVar(&plan.Active, "active", true, "offered to customers")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func planUpdateCmd() *cobra.Command {
	var name, description, interval, currency string
	var priceCents int64
	var maxWorkspaces, maxMembers int
	var active bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plan, err := e.GetPlan(ctx, args[0])
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("name") {
					plan.Name = name
				}
				if cmd.Flags().Changed("description") {
					plan.Description = description
				}
				if cmd.Flags().Changed("price-cents") {
					plan.PriceCents = priceCents
				}
				if cmd.Flags().Changed("currency") {
					plan.Currency = currency
				}
				if cmd.Flags().Changed("interval") {
					plan.Interval = interval
				}
				if cmd.Flags().Changed("max-workspaces") {
					plan.MaxWorkspaces = maxWorkspaces
				}
				if cmd.Flags().Changed("max-members") {
					plan.MaxMembers = maxMembers
				}
				if cmd.Flags().Changed("active") {
					plan.Active = active
				}
				updated, err := e.UpdatePlan(ctx, cliPrincipal(), plan)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "plan name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().Int64Var(&priceCents, "price-cents", 0, "price in minor units")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO currency code")
	cmd.Flags().StringVar(&interval, "interval", "", "billing interval (monthly, yearly)")
	cmd.Flags().IntVar(&maxWorkspaces, "max-workspaces", 0, "workspace cap")
	cmd.Flags().IntVar(&maxMembers, "max-members", 0, "member cap")
	cmd.Flags().BoolVar(&active, "active", true, "offered to customers")
	return cmd
}

func planDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeletePlan(ctx, cliPrincipal(), args[0])
			})
		},
	}
}

func planSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the default plan catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := app.SeedDefaultPlans(ctx, e); err != nil {
					return err
				}
				plans, err := e.ListPlans(ctx, false)
				if err != nil {
					return err
				}
				return printJSONOrTable(plans)
			})
		},
	}
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{
		Use:   "org",
		Short: "Inspect organizations",
	}
	org.AddCommand(orgListCmd())
	org.AddCommand(orgStatsCmd())
	return org
}

func orgListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				orgs, err := e.ListOrgs(ctx, cliPrincipal())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orgs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, o := range orgs {
					tw.AppendRow(table.Row{o.ID, o.Name, o.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func orgStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <id>",
		Short: "Show organization counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stats, err := e.OrgStats(ctx, cliPrincipal(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(stats)
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var orgID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.Events(ctx, n, orgID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&orgID, "org", "", "organization filter")
	return cmd
}

// --- helpers ---

// cliPrincipal is the local operator identity. The CLI runs against the
// workspace database directly, so it acts with platform authority.
func cliPrincipal() access.Principal {
	return access.Principal{UserID: viper.GetString("actor-id"), Role: access.RoleSuperAdmin}
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, app.Build(conn, cfg))
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
