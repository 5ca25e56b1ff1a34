package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iudanet/gophstorage/internal/catalog"
	"github.com/iudanet/gophstorage/internal/config"
	"github.com/iudanet/gophstorage/internal/server/app"
	"github.com/iudanet/gophstorage/internal/server/audit"
	"github.com/iudanet/gophstorage/internal/server/identity"
	"github.com/iudanet/gophstorage/internal/server/storage"
	"github.com/iudanet/gophstorage/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.NewServerViper()
	var configFile string

	load := func() (*config.Server, error) {
		if err := config.ReadFile(v, configFile); err != nil {
			return nil, err
		}
		return config.ServerFromViper(v)
	}

	root := &cobra.Command{
		Use:           "gophstorage-server",
		Short:         "Storage terminal authority",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML config")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "text", "log format: text or json")
	bind(v, root, config.KeyLogLevel, "log-level")
	bind(v, root, config.KeyLogFormat, "log-format")

	root.AddCommand(
		newServeCommand(v, load),
		newSeedCommand(v, load),
		newTokenCommand(load),
		newDropsCommand(v, load),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, _ []string) {
				printVersion()
			},
		},
	)
	return root
}

func bind(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	f := cmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = cmd.Flags().Lookup(flag)
	}
	_ = v.BindPFlag(key, f)
}

func newServeCommand(v *viper.Viper, load func() (*config.Server, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the terminal authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(os.Stderr, cfg.Log)
			if err != nil {
				return err
			}
			logger.Info("Starting GophStorage server",
				"version", Version,
				"world", cfg.World.Driver,
				"listen", cfg.Listen)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger, Version)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Error("Failed to close world", "error", err)
				}
			}()
			return a.Run(ctx)
		},
	}
	cmd.Flags().String("listen", ":8080", "listen address")
	cmd.Flags().String("world", config.DriverMemory, "world driver: memory or sqlite")
	cmd.Flags().String("dsn", "", "sqlite database path")
	cmd.Flags().String("seed", "", "YAML seed applied at startup")
	cmd.Flags().String("audit-dir", "", "directory for the world drop audit trail")
	// привязка в PreRun: audit.dir также привязан к флагу drops
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		bind(v, cmd, config.KeyListen, "listen")
		bind(v, cmd, config.KeyWorldDriver, "world")
		bind(v, cmd, config.KeyWorldDSN, "dsn")
		bind(v, cmd, config.KeyWorldSeed, "seed")
		bind(v, cmd, config.KeyAuditDir, "audit-dir")
	}
	return cmd
}

// newSeedCommand наполняет sqlite мир без запуска сервера
func newSeedCommand(v *viper.Viper, load func() (*config.Server, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Load containers and players from a YAML seed into the sqlite world",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			seed, err := storage.LoadSeed(args[0])
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.Catalog)
			if err != nil {
				return fmt.Errorf("failed to load catalog: %w", err)
			}

			world, err := sqlite.New(cmd.Context(), cfg.World.DSN, cat)
			if err != nil {
				return fmt.Errorf("failed to open world database: %w", err)
			}
			defer world.Close()

			if err := seed.Apply(cmd.Context(), world); err != nil {
				return fmt.Errorf("failed to apply seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d containers and %d players into %s\n",
				len(seed.Containers), len(seed.Players), cfg.World.DSN)
			return nil
		},
	}
	cmd.Flags().String("dsn", "", "sqlite database path")
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		_ = v.BindPFlag(config.KeyWorldDSN, cmd.Flags().Lookup("dsn"))
		v.Set(config.KeyWorldDriver, config.DriverSQLite)
	}
	return cmd
}

// newTokenCommand выпускает токен без HTTP, для отладки
func newTokenCommand(load func() (*config.Server, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "token <player>",
		Short: "Issue an identity token for a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Identity.Secret == "" {
				return fmt.Errorf("%w: set %s", app.ErrNoSecret, config.KeyIdentitySecret)
			}
			token, expiresIn, err := identity.Issue(identity.Config{
				Secret:   []byte(cfg.Identity.Secret),
				TokenTTL: cfg.Identity.TokenTTL,
			}, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires in %s\n", time.Duration(expiresIn)*time.Second)
			return nil
		},
	}
}

func newDropsCommand(v *viper.Viper, load func() (*config.Server, error)) *cobra.Command {
	var terminalID string
	cmd := &cobra.Command{
		Use:   "drops",
		Short: "Summarize the world drop audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.AuditDir == "" {
				return fmt.Errorf("%w: %s is not set", config.ErrInvalidConfig, config.KeyAuditDir)
			}
			entries, err := audit.ReadDir(cfg.AuditDir)
			if err != nil {
				return err
			}

			totals := make(map[string]int)
			count := 0
			out := cmd.OutOrStdout()
			for _, e := range entries {
				if terminalID != "" && e.TerminalID != terminalID {
					continue
				}
				fmt.Fprintf(out, "%s %-20s %-24s x%-5d %s\n",
					e.DroppedAt.Format(time.RFC3339), e.TerminalID, e.Item, e.Amount, e.Reason)
				totals[e.Item] += e.Amount
				count++
			}

			items := make([]string, 0, len(totals))
			for item := range totals {
				items = append(items, item)
			}
			sort.Strings(items)
			fmt.Fprintf(out, "\n%d drops\n", count)
			for _, item := range items {
				fmt.Fprintf(out, "  %-24s x%d\n", item, totals[item])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&terminalID, "terminal", "", "only drops of this terminal")
	cmd.Flags().String("audit-dir", "", "directory of the world drop audit trail")
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		bind(v, cmd, config.KeyAuditDir, "audit-dir")
	}
	return cmd
}

func printVersion() {
	fmt.Printf("GophStorage Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
