package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mdstore/internal/app"
	"mdstore/internal/config"
	"mdstore/internal/domain"
	"mdstore/internal/service/catalog"
	"mdstore/internal/snapshot"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	var (
		tableBits  int
		columnBits int
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty metadata store",
		Long: `Create an empty metadata store on the configured backend.

The identifier bit widths are fixed when the store is created. An existing
store is left alone unless --force is given, which drops it first.`,
		Example: `  mdstore init --backend sqlite --path catalog.sqlite
  mdstore init --backend memory --path s3://bucket/catalog.json --table-bits 12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := opts.storeConfig()
			if err != nil {
				return err
			}
			storeOpts := catalog.Options{
				TableBits:  cfg.TableBits,
				ColumnBits: cfg.ColumnBits,
				Logger:     opts.logger.With("component", "catalog"),
			}
			if cmd.Flags().Changed("table-bits") {
				storeOpts.TableBits = tableBits
			}
			if cmd.Flags().Changed("column-bits") {
				storeOpts.ColumnBits = columnBits
			}

			var store *catalog.Store
			if cfg.Backend == config.BackendMemory {
				store, err = initSnapshot(cmd, cfg, storeOpts, force)
			} else {
				store, err = initGateway(cmd, cfg, storeOpts, force, opts)
			}
			if err != nil {
				return err
			}
			codec := store.Codec()
			if err := store.Close(ctx); err != nil {
				return err
			}

			if opts.json() {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"backend":     cfg.Backend,
					"table_bits":  codec.TableBits(),
					"column_bits": codec.ColumnBits(),
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s store (table bits %d, column bits %d)\n",
				cfg.Backend, codec.TableBits(), codec.ColumnBits())
			return nil
		},
	}
	cmd.Flags().IntVar(&tableBits, "table-bits", 0, "Bits reserved for the table level of identifiers")
	cmd.Flags().IntVar(&columnBits, "column-bits", 0, "Bits reserved for the column level of identifiers")
	cmd.Flags().BoolVar(&force, "force", false, "Drop an existing store first")
	return cmd
}

// initSnapshot prepares an empty in-memory store whose Close writes the
// first snapshot.
func initSnapshot(cmd *cobra.Command, cfg *config.Config, storeOpts catalog.Options, force bool) (*catalog.Store, error) {
	sink, err := snapshot.ParseLocation(cfg.Path, app.S3Options(cfg))
	if err != nil {
		return nil, err
	}
	if !force {
		_, err := sink.Read(cmd.Context())
		var nf *domain.NotFoundError
		switch {
		case err == nil:
			return nil, domain.ErrConflict("a snapshot already exists at %s (use --force to replace it)", sink)
		case !errors.As(err, &nf):
			return nil, err
		}
	}
	storeOpts.Sink = sink
	return catalog.New(storeOpts)
}

func initGateway(cmd *cobra.Command, cfg *config.Config, storeOpts catalog.Options, force bool, opts *rootOptions) (*catalog.Store, error) {
	ctx := cmd.Context()
	gw, err := app.OpenGateway(ctx, cfg, opts.logger)
	if err != nil {
		return nil, err
	}
	if force {
		if err := gw.DropIfExists(ctx); err != nil {
			_ = gw.Close()
			return nil, fmt.Errorf("drop existing store: %w", err)
		}
	} else {
		exists, err := gw.TablesExist(ctx)
		if err != nil {
			_ = gw.Close()
			return nil, err
		}
		if exists {
			_ = gw.Close()
			return nil, domain.ErrConflict("%s store is already initialized (use --force to recreate it)", cfg.Backend)
		}
	}
	storeOpts.Gateway = gw
	store, err := catalog.Open(ctx, storeOpts)
	if err != nil {
		_ = gw.Close()
		return nil, err
	}
	return store, nil
}
