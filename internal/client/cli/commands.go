package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iudanet/gophstorage/internal/catalog"
	"github.com/iudanet/gophstorage/internal/client/iocli"
	"github.com/iudanet/gophstorage/internal/client/storage/boltdb"
	"github.com/iudanet/gophstorage/internal/config"
)

// BuildInfo is printed by the version command
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// Options wires the root command; zero fields get production defaults
type Options struct {
	IO        iocli.IO
	Viper     *viper.Viper
	OpenStore func(ctx context.Context, path string) (Store, error)
	Dial      Dialer
	LogOutput io.Writer
	Build     BuildInfo
}

func openBoltStore(ctx context.Context, path string) (Store, error) {
	return boltdb.New(ctx, path)
}

// NewRootCommand builds the gophstorage client command tree
func NewRootCommand(opts Options) *cobra.Command {
	if opts.IO == nil {
		opts.IO = iocli.NewStdio()
	}
	if opts.Viper == nil {
		opts.Viper = config.NewClientViper()
	}
	if opts.OpenStore == nil {
		opts.OpenStore = openBoltStore
	}
	if opts.Dial == nil {
		opts.Dial = DialWebsocket
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}

	var (
		configFile string
		app        *Cli
	)
	v := opts.Viper

	root := &cobra.Command{
		Use:           "gophstorage",
		Short:         "Storage terminal client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// setup открывает хранилище только для команд, которым оно нужно
	setup := func(cmd *cobra.Command, _ []string) error {
		if err := config.ReadFile(v, configFile); err != nil {
			return err
		}
		cfg, err := config.ClientFromViper(v)
		if err != nil {
			return err
		}
		logger, err := config.NewLogger(opts.LogOutput, cfg.Log)
		if err != nil {
			return err
		}
		cat, err := catalog.Load(cfg.Catalog)
		if err != nil {
			return err
		}
		store, err := opts.OpenStore(cmd.Context(), cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to open local storage: %w", err)
		}
		app = New(opts.IO, cfg, store, cat, opts.Dial, logger)
		return nil
	}
	teardown := func(*cobra.Command, []string) error {
		if app == nil {
			return nil
		}
		return app.store.Close()
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (yaml)")
	pf.String("server", "", "server URL")
	pf.String("db", "", "path to local database")
	pf.Int("columns", 0, "view columns")
	pf.Duration("timeout", 0, "how long to wait for the terminal")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	bind := map[string]string{
		config.KeyServer:   "server",
		config.KeyDB:       "db",
		config.KeyColumns:  "columns",
		config.KeyTimeout:  "timeout",
		config.KeyLogLevel: "log-level",
	}
	for key, flag := range bind {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}

	withApp := func(cmd *cobra.Command, run func(ctx context.Context, c *Cli, args []string) error) *cobra.Command {
		cmd.PreRunE = setup
		cmd.PostRunE = teardown
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			err := run(cmd.Context(), app, args)
			if err != nil {
				// PostRunE не вызывается при ошибке
				_ = teardown(cmd, args)
				app = nil
			}
			return err
		}
		return cmd
	}

	root.AddCommand(
		withApp(&cobra.Command{
			Use:   "login <player>",
			Short: "Obtain an identity token for a player",
			Args:  cobra.MaximumNArgs(1),
		}, RunLogin),
		withApp(&cobra.Command{
			Use:   "logout",
			Short: "Forget the stored identity",
			Args:  cobra.NoArgs,
		}, RunLogout),
		withApp(&cobra.Command{
			Use:   "status",
			Short: "Show the stored identity and server health",
			Args:  cobra.NoArgs,
		}, RunStatus),
		newViewCommand(withApp),
		newTakeCommand(withApp),
		newPutCommand(withApp),
		withApp(&cobra.Command{
			Use:   "filter <terminal> [text]",
			Short: "Set or clear the item filter of a terminal",
			Args:  cobra.RangeArgs(1, 2),
		}, RunFilter),
		withApp(&cobra.Command{
			Use:   "bag",
			Short: "List items the client holds for the player",
			Args:  cobra.NoArgs,
		}, RunBag),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Args:  cobra.NoArgs,
			Run: func(*cobra.Command, []string) {
				printVersion(opts.IO, opts.Build)
			},
		},
	)

	return root
}

func printVersion(out iocli.IO, b BuildInfo) {
	out.Printf("GophStorage Client\n")
	out.Printf("Version:    %s\n", b.Version)
	out.Printf("Build Date: %s\n", b.BuildDate)
	out.Printf("Git Commit: %s\n", b.GitCommit)
}
