// Package cli implements the mdstore command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mdstore/internal/app"
	"mdstore/internal/config"
	"mdstore/internal/metrics"
	"mdstore/internal/service/catalog"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = printJSON(os.Stdout, map[string]interface{}{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// rootOptions holds the global flags and the configuration resolved from them.
type rootOptions struct {
	backend   string
	path      string
	dsn       string
	redisAddr string
	output    string
	profile   string
	logLevel  string

	cfg    *config.Config
	cfgErr error // reported by the commands that need a store
	logger *slog.Logger
}

// flagEnv maps persistent flags onto the environment variables they override.
var flagEnv = map[string]string{
	"backend":    "MDSTORE_BACKEND",
	"path":       "MDSTORE_PATH",
	"dsn":        "MDSTORE_DSN",
	"redis-addr": "MDSTORE_REDIS_ADDR",
	"log-level":  "LOG_LEVEL",
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "mdstore",
		Short:         "Metadata catalog for schemas, tables, columns and their constraints",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.backend, "backend", "", "Storage backend: memory, sqlite, postgres, redis")
	pf.StringVar(&opts.path, "path", "", "SQLite file, or snapshot location for the memory backend")
	pf.StringVar(&opts.dsn, "dsn", "", "PostgreSQL connection string")
	pf.StringVar(&opts.redisAddr, "redis-addr", "", "Redis address (host:port)")
	pf.StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	pf.StringVarP(&opts.profile, "profile", "p", "", "Config profile to use")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newInitCmd(opts))
	rootCmd.AddCommand(newSchemaCmd(opts))
	rootCmd.AddCommand(newTableCmd(opts))
	rootCmd.AddCommand(newColumnCmd(opts))
	rootCmd.AddCommand(newCollectionCmd(opts))
	rootCmd.AddCommand(newFindCmd(opts))
	rootCmd.AddCommand(newLocationTypesCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// resolve applies precedence flag > env > .env > profile > default and
// builds the configuration and logger.
func (o *rootOptions) resolve(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	userCfg, err := LoadUserConfig()
	if err != nil {
		// Config file is optional
		userCfg = &UserConfig{CurrentProfile: "default", Profiles: map[string]Profile{}}
	}
	p := userCfg.ActiveProfile(o.profile)

	if !cmd.Flags().Changed("output") {
		if v := os.Getenv("MDSTORE_OUTPUT"); v != "" {
			o.output = v
		} else if p.Output != "" {
			o.output = p.Output
		}
	}
	if err := validateOutputFormat(o.output); err != nil {
		return err
	}

	flags := cmd.Flags()
	profileEnv := p.env()
	getenv := func(key string) string {
		for flag, env := range flagEnv {
			if env == key && flags.Changed(flag) {
				v, _ := flags.GetString(flag)
				return v
			}
		}
		if v := os.Getenv(key); v != "" {
			return v
		}
		return profileEnv[key]
	}

	o.cfg, o.cfgErr = config.Load(getenv)
	level := slog.LevelInfo
	if o.cfg != nil {
		level = o.cfg.SlogLevel()
	}
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	if o.cfg != nil {
		for _, w := range o.cfg.Warnings {
			o.logger.Warn(w)
		}
	}
	return nil
}

// storeConfig returns the resolved configuration or the error that prevented it.
func (o *rootOptions) storeConfig() (*config.Config, error) {
	if o.cfgErr != nil {
		return nil, o.cfgErr
	}
	return o.cfg, nil
}

// withStore opens the configured store, runs fn and closes the store, which
// flushes it.
func (o *rootOptions) withStore(ctx context.Context, m *metrics.Metrics, fn func(*catalog.Store) error) (err error) {
	cfg, err := o.storeConfig()
	if err != nil {
		return err
	}
	store, err := app.OpenStore(ctx, cfg, o.logger, m)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(store)
}

func (o *rootOptions) json() bool { return o.output == "json" }

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, _ := cmd.Root().PersistentFlags().GetString("output")
			if out == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "mdstore version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch strings.ToLower(args[0]) {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
