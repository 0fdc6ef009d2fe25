package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/silo"
	"github.com/aretw0/silo/internal/platform"
)

var (
	verbose    bool
	configPath string
	uriFlag    string
	collection string
	readOnly   bool
	yamlOutput bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "silo",
	Short: "A document repository with diff-based partial updates",
	Long: `silo stores documents in one collection of a backing store (memory, SQLite
or a directory of JSON/YAML files) and persists updates as minimal field-level
update sets.

The repository is described by a silo.yaml file, looked up from the working
directory upwards, or by the --uri and --collection flags.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Repository file (default: nearest silo.yaml)")
	rootCmd.PersistentFlags().StringVar(&uriFlag, "uri", "", "Store URI, overrides the repository file")
	rootCmd.PersistentFlags().StringVar(&collection, "collection", "", "Collection name, overrides the repository file")
	rootCmd.PersistentFlags().BoolVar(&readOnly, "read-only", false, "Refuse every write")
	rootCmd.PersistentFlags().BoolVar(&yamlOutput, "yaml", false, "Print documents as YAML instead of JSON")
}

// loadConfig resolves the repository description from the flags and the
// repository file.
func loadConfig() (platform.FileConfig, error) {
	var cfg platform.FileConfig

	path := configPath
	if path == "" {
		if wd, err := os.Getwd(); err == nil {
			path, _ = platform.FindConfig(wd)
		}
	}
	if path != "" {
		loaded, err := platform.LoadConfig(path)
		if err != nil && (uriFlag == "" || collection == "") {
			return cfg, err
		}
		if err == nil {
			cfg = loaded
			slog.Debug("repository file loaded", "path", path)
		}
	}

	if uriFlag != "" {
		cfg.URI = uriFlag
	}
	if collection != "" {
		cfg.Collection = collection
	}
	if readOnly {
		cfg.ReadOnly = true
	}
	if cfg.Collection == "" {
		return cfg, fmt.Errorf("no collection: pass --collection or create a %s", platform.ConfigFileName)
	}
	if cfg.URI == "" {
		return cfg, fmt.Errorf("no store: pass --uri or set uri in %s", platform.ConfigFileName)
	}
	return cfg, nil
}

// openRepository opens the configured repository. The caller closes it.
func openRepository() (*silo.Handle, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return silo.Open(cfg.URI, cfg.Repository(),
		silo.WithLogger(slog.Default()),
		silo.WithReadOnly(cfg.ReadOnly),
	)
}
