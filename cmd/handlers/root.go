package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"umapembed/internal/config"
	"umapembed/internal/logger"
	"umapembed/internal/pipeline"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Exit codes returned by Execute.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// NewRootCmd creates the umapembed command. Each call gets its own viper
// instance, so commands built in tests do not share state.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var (
		cfgFile string
		verbose bool
		compute bool
		catalog bool
		plotCl  bool
	)

	rootCmd := &cobra.Command{
		Use:   "umapembed",
		Short: "Embed a numeric dataset with PCA and UMAP, plot it and cluster it",
		Long: `umapembed - PCA + UMAP embedding driver

Loads a numeric table, reduces it with PCA, lays it out with UMAP,
renders a 2000x2000 scatter plot and optionally clusters the layout
with HDBSCAN. Artifacts are namespaced by --tag:

  intermediate_data/<tag>/            PCA model, UMAP parameters, coordinates
  intermediate_data/<tag>/hdbscan_*   HDBSCAN clusterer and labels
  product/figures/<tag>_embedding.png embedding plot

Examples:
  # Embed with defaults
  umapembed --dataset intermediate_data/cells.csv --tag cells

  # Tighter layout, no clustering
  umapembed --dataset cells.tsv --tag cells --umap_min_dist 0.1 --compute_hdbscan_clusters false

  # Show recorded runs
  umapembed runs --tag cells`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return embedRun(cmd, v, cfgFile)
		},
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is .umapembed.yaml in . or $HOME)")
	pf.String("intermediate_dir", "intermediate_data", "Directory for intermediate artifacts and the run catalog")
	pf.String("log_level", "info", "Log level: debug, info, warn, error")
	pf.String("log_format", "text", "Log format: text or json")

	f := rootCmd.Flags()
	f.String("dataset", "", "Path to the input table (.csv, .tsv or pandas split .json)")
	f.String("tag", "", "Name used to namespace output artifacts")
	f.Int("pca_n_components", 20, "Number of PCA components kept before UMAP")
	f.Int("umap_n_neighbors", 0, "UMAP neighbourhood size (0 uses 15)")
	f.Float64("umap_min_dist", 0.0, "UMAP minimum distance between embedded points")
	f.String("umap_init", config.InitSpectral, "UMAP initialization: spectral, random or pca")
	f.Int("umap_n_components", 2, "Embedding dimensionality")
	f.Int("umap_n_epochs", 0, "UMAP optimisation epochs (0 picks by dataset size)")
	f.Float64("umap_spread", 1.0, "UMAP spread")
	f.Int64("random_seed", 42, "Seed for UMAP initialization and sampling")
	f.Int("hdbscan_min_cluster_size", 3, "Smallest HDBSCAN cluster")
	f.String("figures_dir", filepath.Join("product", "figures"), "Directory for rendered figures")
	f.Int("plot_width", 2000, "Plot width in pixels")
	f.Int("plot_height", 2000, "Plot height in pixels")
	boolVar(f, &compute, "compute_hdbscan_clusters", true, "Cluster the embedding with HDBSCAN (true|false)")
	boolVar(f, &verbose, "verbose", false, "Enable debug logging (true|false)")
	boolVar(f, &plotCl, "plot_clusters", false, "Also plot the embedding coloured by cluster (true|false)")
	boolVar(f, &catalog, "catalog", true, "Record the run in the SQLite run catalog (true|false)")

	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &flagError{err: err}
	})

	rootCmd.AddCommand(NewRunsCmd(v, &cfgFile))

	return rootCmd
}

// loadConfig binds cmd's flags into v and resolves the configuration.
func loadConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) (*config.Config, error) {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	logger.Configure(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.ConfigFile != "" {
		logger.Debug("Using config file", "path", cfg.ConfigFile)
	}
	return cfg, nil
}

func embedRun(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	cfg, err := loadConfig(cmd, v, cfgFile)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	p, err := pipeline.NewBuilder(cfg).Build()
	if err != nil {
		return err
	}
	res, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), res)
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if isUsageError(err) {
			fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", rootCmd.Name())
			return ExitUsage
		}
		return ExitError
	}
	return ExitOK
}

// isUsageError reports whether err came from flag parsing or validation.
func isUsageError(err error) bool {
	if errors.Is(err, config.ErrInvalidOption) {
		return true
	}
	var flagErr *flagError
	return errors.As(err, &flagErr)
}
