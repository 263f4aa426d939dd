package cmd

import (
	"github.com/spf13/cobra"

	"courtsim/internal/config"
	"courtsim/internal/logging"
)

// NewRootCmd builds the courtsim command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "courtsim",
		Short: "Simulated court hearings argued by language models",
		Long: `courtsim runs interlocutory hearings in which a court, plaintiff's counsel
and a defendant take turns. Any party except the defendant is played by a
language model; the defendant may be played by you or by the model.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "path to a JSON or YAML config file (default $COURTSIM_CONFIG or config.json)")
	root.PersistentFlags().String("log-level", "", "override the configured log level")

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewScenariosCmd())
	root.AddCommand(NewPlayCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads the config named by the persistent flags and sets up logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	logging.Setup(cfg.Log)
	return cfg, nil
}
