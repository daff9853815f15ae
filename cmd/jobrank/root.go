package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/jobrank/internal/config"
	"github.com/okian/jobrank/pkg/logger"
)

const app = "jobrank"

// rootOptions holds the persistent flags and the configuration they load.
type rootOptions struct {
	cfgFile string
	debug   bool
	json    bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          app,
		Short:        "jobrank aggregates job postings from several boards and ranks them against a candidate profile",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "a YAML config file (default is $JOBRANK_CONFIG)")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "verbose/debug output")
	root.PersistentFlags().BoolVarP(&opts.json, "json", "j", false, "json format for logging")

	root.AddCommand(newRunCmd(opts), newServeCmd(opts), newVersionCmd())
	return root
}

// init loads configuration (defaults -> optional file -> env) and sets up
// logging on stderr so stdout stays free for command output.
func (o *rootOptions) init(cmd *cobra.Command) error {
	ctx := cmd.Context()

	var (
		cfg *config.Config
		err error
	)
	if o.cfgFile != "" {
		cfg, err = config.LoadFile(ctx, o.cfgFile)
	} else {
		cfg, err = config.Load(ctx)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if o.debug {
		cfg.LogLevel = "debug"
	}
	if o.json {
		cfg.LogFormat = "json"
	}
	if err := logger.Init(
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
		logger.WithOutput(cmd.ErrOrStderr()),
	); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	o.cfg = cfg
	return nil
}
