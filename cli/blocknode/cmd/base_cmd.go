package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type blocknodeApp struct {
	baseCmd    *cobra.Command
	baseConfig *baseConfiguration
	runNode    nodeRunnable
}

// New creates a new block node application
func New() *blocknodeApp {
	baseCmd, baseConfig := newBaseCmd()
	return &blocknodeApp{baseCmd: baseCmd, baseConfig: baseConfig}
}

// withNodeRunner replaces the function starting the node, used by tests.
func (a *blocknodeApp) withNodeRunner(fn nodeRunnable) *blocknodeApp {
	a.runNode = fn
	return a
}

// Execute adds all child commands and runs the application
func (a *blocknodeApp) Execute(ctx context.Context) error {
	return a.addAndExecuteCommand(ctx)
}

func (a *blocknodeApp) addAndExecuteCommand(ctx context.Context) error {
	a.baseCmd.AddCommand(newNodeCmd(a.baseConfig, a.runNode))
	a.baseCmd.AddCommand(newBlockHashCmd())
	return a.baseCmd.ExecuteContext(ctx)
}

func newBaseCmd() (*cobra.Command, *baseConfiguration) {
	config := &baseConfiguration{}
	// baseCmd represents the base command when called without any subcommands
	var baseCmd = &cobra.Command{
		Use:           "blocknode",
		Short:         "The block node CLI",
		Long:          `The block node CLI receives block item streams from producers, verifies and stores the blocks and serves them to subscribers.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// If subcommand does not define PersistentPreRunE, the one from base cmd is used.
			if err := initializeConfig(cmd, config); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			return nil
		},
	}
	config.addConfigurationFlags(baseCmd)

	return baseCmd, config
}

func initializeConfig(cmd *cobra.Command, config *baseConfiguration) error {
	var errs []error
	if err := config.initializeConfig(cmd); err != nil {
		errs = append(errs, fmt.Errorf("reading configuration: %w", err))
	}
	if err := config.initLogger(); err != nil {
		errs = append(errs, fmt.Errorf("initializing logger: %w", err))
	}
	return errors.Join(errs...)
}

// initializeConfig reads in config file and ENV variables if set.
func (r *baseConfiguration) initializeConfig(cmd *cobra.Command) error {
	v := viper.New()

	r.initConfigFileLocation()

	if r.configFileExists() {
		v.SetConfigFile(r.CfgFile)
	}

	// A missing config file is fine, a broken one is not.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	// --db-file binds to BN_DB_FILE
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := bindFlags(cmd, v); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// Bind each cobra flag to its associated viper configuration (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindFlagErr []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == keyHome || f.Name == keyConfig {
			// "home" and "config" are special configuration values, handled separately.
			return
		}

		// Environment variables can't have dashes in them
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				bindFlagErr = append(bindFlagErr, fmt.Errorf("binding env to flag %q: %w", f.Name, err))
				return
			}
		}

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				bindFlagErr = append(bindFlagErr, fmt.Errorf("setting flag %q value: %w", f.Name, err))
				return
			}
		}
	})

	return errors.Join(bindFlagErr...)
}
