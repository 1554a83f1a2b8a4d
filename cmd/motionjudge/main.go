// Command motionjudge serves the motion judgment API and offers offline
// tools for comparing and classifying recorded pose sequences.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/heungbuja/motionjudge/internal/app"
	"github.com/heungbuja/motionjudge/internal/config"
)

// cli carries the state shared by every subcommand once the root command has
// loaded the configuration.
type cli struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "motionjudge",
		Short:        "Judge rhythm-game motions from pose landmarks",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default: ./motionjudge.yaml or ~/.motionjudge/motionjudge.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newServeCmd(c),
		newCompareCmd(c),
		newClassifyCmd(c),
		newActionsCmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	logger, err := app.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	c.cfg = cfg
	c.logger = logger
	return nil
}

// floatFlag returns a pointer to the flag's value when the user set it.
func floatFlag(cmd *cobra.Command, name string) (*float64, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	v, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &v, nil
}
