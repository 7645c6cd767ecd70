// Package commands implements the driftflow CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/driftflow/internal/logger"
	"github.com/marmos91/driftflow/pkg/config"
)

var (
	cfgPath string
	cfg     *config.Config

	versionString = "dev"
	commitString  = "none"
	dateString    = "unknown"
)

// SetVersionInfo receives the build-time version variables from main.
func SetVersionInfo(version, commit, date string) {
	versionString = version
	commitString = commit
	dateString = date
}

var rootCmd = &cobra.Command{
	Use:   "driftflow",
	Short: "driftflow streaming dataflow engine",
	Long: `driftflow moves records through a dataflow graph of processors and
checkpoints the pipeline so it can restart without data loss.

The checkpoint commands inspect the checkpoint storage of a pipeline:
  driftflow checkpoint ls    list committed record store slices
  driftflow checkpoint show  show the latest checkpoint descriptor`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		return logger.Init(logger.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Println("Error:", err)
	}
	return err
}
