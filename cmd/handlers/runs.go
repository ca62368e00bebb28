package handlers

import (
	"fmt"
	"os"
	"path/filepath"

	"umapembed/internal/store"
	"umapembed/internal/tui"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRunsCmd creates the runs command, which lists the run catalog
func NewRunsCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	var tag string
	var limit int
	var interactive bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded embedding runs",
		Long: `List embedding runs recorded in the SQLite run catalog
(<intermediate_dir>/embedding_runs.db), newest first.

Examples:
  # List the last 20 runs
  umapembed runs

  # List every run for one tag
  umapembed runs --tag cells --limit 0

  # Browse runs interactively
  umapembed runs -i`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runsRun(cmd, v, *cfgFile, tag, limit, interactive)
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "Only list runs with this tag")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Browse the runs in a terminal UI")

	return cmd
}

func runsRun(cmd *cobra.Command, v *viper.Viper, cfgFile, tag string, limit int, interactive bool) error {
	cfg, err := loadConfig(cmd, v, cfgFile)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	dbPath := filepath.Join(cfg.Output.IntermediateDir, store.DBFileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintf(out, "No runs recorded in %s\n", cfg.Output.IntermediateDir)
		return nil
	}

	s, err := store.NewStore(cfg.Output.IntermediateDir)
	if err != nil {
		return fmt.Errorf("failed to open run catalog: %w", err)
	}
	defer s.Close()

	runs, err := s.ListRuns(tag, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		if tag != "" {
			fmt.Fprintf(out, "No runs recorded for tag %q\n", tag)
		} else {
			fmt.Fprintln(out, "No runs recorded")
		}
		return nil
	}

	if interactive {
		return tui.Browse(runs)
	}
	fmt.Fprintln(out, renderRunsTable(runs))
	return nil
}
