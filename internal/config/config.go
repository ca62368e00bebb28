package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. UMAPEMBED_TAG.
const EnvPrefix = "UMAPEMBED"

// DefaultNeighbors is used when umap_n_neighbors is left at 0.
const DefaultNeighbors = 15

// ErrInvalidOption marks usage errors in the resolved configuration.
var ErrInvalidOption = errors.New("invalid option")

// Init strategies accepted by umap_init.
const (
	InitSpectral = "spectral"
	InitRandom   = "random"
	InitPCA      = "pca"
)

// Config holds all options for one embedding run
type Config struct {
	Dataset    string     `mapstructure:"dataset"`
	Tag        string     `mapstructure:"tag"`
	Verbose    bool       `mapstructure:"verbose"`
	Embedding  Embedding  `mapstructure:",squash"`
	Clustering Clustering `mapstructure:",squash"`
	Output     Output     `mapstructure:",squash"`
	Logging    Logging    `mapstructure:",squash"`

	// ConfigFile is the config file viper read, if any.
	ConfigFile string `mapstructure:"-"`
}

// Embedding holds PCA and UMAP parameters
type Embedding struct {
	PCANComponents  int     `mapstructure:"pca_n_components"`
	UMAPNNeighbors  int     `mapstructure:"umap_n_neighbors"`
	UMAPMinDist     float64 `mapstructure:"umap_min_dist"`
	UMAPInit        string  `mapstructure:"umap_init"`
	UMAPNComponents int     `mapstructure:"umap_n_components"`
	UMAPNEpochs     int     `mapstructure:"umap_n_epochs"`
	UMAPSpread      float64 `mapstructure:"umap_spread"`
	RandomSeed      int64   `mapstructure:"random_seed"`
}

// Clustering holds HDBSCAN parameters
type Clustering struct {
	ComputeHDBSCANClusters bool `mapstructure:"compute_hdbscan_clusters"`
	MinClusterSize         int  `mapstructure:"hdbscan_min_cluster_size"`
}

// Output holds artifact locations
type Output struct {
	IntermediateDir string `mapstructure:"intermediate_dir"`
	FiguresDir      string `mapstructure:"figures_dir"`
	PlotWidth       int    `mapstructure:"plot_width"`
	PlotHeight      int    `mapstructure:"plot_height"`
	PlotClusters    bool   `mapstructure:"plot_clusters"`
	Catalog         bool   `mapstructure:"catalog"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"log_level"`
	Format string `mapstructure:"log_format"`
}

// Load resolves the configuration from v. Flags must already be bound
// to v; configFile may be empty, in which case .umapembed.yaml is
// searched for in the working directory and $HOME. Load does not
// validate; commands that need a complete run configuration call Validate.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.SetConfigName(".umapembed")
		v.SetConfigType("yaml")
	}

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	postProcessConfig(cfg)
	return cfg, nil
}

// SetDefaults registers the default value of every option on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("dataset", "")
	v.SetDefault("tag", "")
	v.SetDefault("verbose", false)

	v.SetDefault("pca_n_components", 20)
	v.SetDefault("umap_n_neighbors", 0)
	v.SetDefault("umap_min_dist", 0.0)
	v.SetDefault("umap_init", InitSpectral)
	v.SetDefault("umap_n_components", 2)
	v.SetDefault("umap_n_epochs", 0)
	v.SetDefault("umap_spread", 1.0)
	v.SetDefault("random_seed", 42)

	v.SetDefault("compute_hdbscan_clusters", true)
	v.SetDefault("hdbscan_min_cluster_size", 3)

	v.SetDefault("intermediate_dir", "intermediate_data")
	v.SetDefault("figures_dir", filepath.Join("product", "figures"))
	v.SetDefault("plot_width", 2000)
	v.SetDefault("plot_height", 2000)
	v.SetDefault("plot_clusters", false)
	v.SetDefault("catalog", true)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

func postProcessConfig(cfg *Config) {
	cfg.Tag = strings.TrimSpace(cfg.Tag)
	cfg.Embedding.UMAPInit = strings.ToLower(strings.TrimSpace(cfg.Embedding.UMAPInit))
	if cfg.Dataset != "" {
		cfg.Dataset = expandPath(cfg.Dataset)
	}
	if cfg.Output.IntermediateDir != "" {
		cfg.Output.IntermediateDir = expandPath(cfg.Output.IntermediateDir)
	}
	if cfg.Output.FiguresDir != "" {
		cfg.Output.FiguresDir = expandPath(cfg.Output.FiguresDir)
	}
	if cfg.Verbose {
		cfg.Logging.Level = "debug"
	}
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// Validate reports every problem in cfg at once, wrapped in ErrInvalidOption.
func Validate(cfg *Config) error {
	var problems []string

	if cfg.Dataset == "" {
		problems = append(problems, "--dataset is required")
	}
	switch {
	case cfg.Tag == "":
		problems = append(problems, "--tag is required")
	case cfg.Tag == "." || cfg.Tag == ".." || strings.ContainsAny(cfg.Tag, `/\`):
		problems = append(problems, fmt.Sprintf("--tag %q must be a single path component", cfg.Tag))
	}

	e := cfg.Embedding
	if e.PCANComponents <= 0 {
		problems = append(problems, fmt.Sprintf("--pca_n_components must be positive, got %d", e.PCANComponents))
	}
	if e.UMAPNNeighbors < 0 {
		problems = append(problems, fmt.Sprintf("--umap_n_neighbors must be non-negative, got %d", e.UMAPNNeighbors))
	}
	if e.UMAPSpread <= 0 {
		problems = append(problems, fmt.Sprintf("--umap_spread must be positive, got %g", e.UMAPSpread))
	}
	if e.UMAPMinDist < 0 || e.UMAPMinDist > e.UMAPSpread {
		problems = append(problems, fmt.Sprintf("--umap_min_dist must lie in [0, umap_spread], got %g", e.UMAPMinDist))
	}
	switch e.UMAPInit {
	case InitSpectral, InitRandom, InitPCA:
	default:
		problems = append(problems, fmt.Sprintf("--umap_init %q is not one of %s, %s, %s", e.UMAPInit, InitSpectral, InitRandom, InitPCA))
	}
	if e.UMAPNComponents < 2 {
		problems = append(problems, fmt.Sprintf("--umap_n_components must be at least 2, got %d", e.UMAPNComponents))
	}
	if e.UMAPNEpochs < 0 {
		problems = append(problems, fmt.Sprintf("--umap_n_epochs must be non-negative, got %d", e.UMAPNEpochs))
	}

	if cfg.Clustering.MinClusterSize < 2 {
		problems = append(problems, fmt.Sprintf("--hdbscan_min_cluster_size must be at least 2, got %d", cfg.Clustering.MinClusterSize))
	}

	o := cfg.Output
	if o.IntermediateDir == "" {
		problems = append(problems, "--intermediate_dir must not be empty")
	}
	if o.FiguresDir == "" {
		problems = append(problems, "--figures_dir must not be empty")
	}
	if o.PlotWidth <= 0 || o.PlotHeight <= 0 {
		problems = append(problems, fmt.Sprintf("plot dimensions must be positive, got %dx%d", o.PlotWidth, o.PlotHeight))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n- %s", ErrInvalidOption, strings.Join(problems, "\n- "))
	}
	return nil
}

// Neighbors returns the neighbour count to use, mapping 0 to DefaultNeighbors.
func (e Embedding) Neighbors() int {
	if e.UMAPNNeighbors == 0 {
		return DefaultNeighbors
	}
	return e.UMAPNNeighbors
}

// EmbedDir is where embedding intermediates and clustering artifacts go.
func (c *Config) EmbedDir() string {
	return filepath.Join(c.Output.IntermediateDir, c.Tag)
}

// FigurePath is the rendered embedding plot.
func (c *Config) FigurePath() string {
	return filepath.Join(c.Output.FiguresDir, c.Tag+"_embedding.png")
}

// ClustererPath is the persisted HDBSCAN clusterer.
func (c *Config) ClustererPath() string {
	return filepath.Join(c.EmbedDir(), "hdbscan_clusterer.joblib")
}

// LabelsPath is the persisted HDBSCAN label sequence.
func (c *Config) LabelsPath() string {
	return filepath.Join(c.EmbedDir(), "hdbscan_clustering.joblib")
}

// ClusterFigurePath is the optional plot coloured by HDBSCAN label.
func (c *Config) ClusterFigurePath() string {
	return filepath.Join(c.Output.FiguresDir, c.Tag+"_hdbscan_clusters.png")
}
