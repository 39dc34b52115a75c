package main

import (
	"github.com/spf13/cobra"

	"github.com/kbukum/flowgate/bootstrap"
	"github.com/kbukum/flowgate/config"
	"github.com/kbukum/flowgate/version"
)

type rootOptions struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "flowgate",
		Short:         "Trigger, schedule and execute automation workflows",
		Version:       version.Read().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default: searched in ./config, ./ and /etc/flowgate)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", ".env file loaded before the environment")

	cmd.AddCommand(
		newServeCmd(opts),
		newSweepCmd(opts),
		newImportCmd(opts),
		newCompileCmd(),
		newTokenCmd(opts),
	)
	return cmd
}

// loadApp reads the configuration and creates the application.
func (o *rootOptions) loadApp() (*bootstrap.App[*Config], error) {
	cfg := &Config{}
	var loadOpts []config.LoaderOption
	if o.configFile != "" {
		loadOpts = append(loadOpts, config.WithConfigFile(o.configFile))
	}
	if o.envFile != "" {
		loadOpts = append(loadOpts, config.WithEnvFile(o.envFile))
	}
	if err := config.Load("flowgate", cfg, loadOpts...); err != nil {
		return nil, err
	}
	if cfg.Version == "" {
		cfg.Version = version.Version
	}
	return bootstrap.NewApp(cfg)
}
