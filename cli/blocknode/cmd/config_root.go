package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blocknode-org/blocknode/internal/logger"
	"github.com/spf13/cobra"
)

type baseConfiguration struct {
	// The block node home directory
	HomeDir string
	// Configuration file URL. If it's relative, then it's relative from the HomeDir.
	CfgFile string
	// Logger configuration file URL.
	LogCfgFile string
}

const (
	// The prefix for configuration keys inside environment.
	envPrefix = "BN"
	// The default name for config file.
	defaultConfigFile = "config.props"
	// the default block node directory.
	defaultBlocknodeDir = ".blocknode"
	// The default logger configuration file name.
	defaultLoggerConfigFile = "logger-config.yaml"
	// The configuration key for home directory.
	keyHome = "home"
	// The configuration key for config file name.
	keyConfig = "config"

	flagNameLoggerCfgFile = "logger-config"
)

func (r *baseConfiguration) addConfigurationFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&r.HomeDir, keyHome, "", fmt.Sprintf("set the BN_HOME for this invocation (default is %s)", blocknodeHomeDir()))
	cmd.PersistentFlags().StringVar(&r.CfgFile, keyConfig, "", fmt.Sprintf("config file URL (default is $BN_HOME/%s)", defaultConfigFile))
	cmd.PersistentFlags().StringVar(&r.LogCfgFile, flagNameLoggerCfgFile, defaultLoggerConfigFile, "logger config file URL. Considered absolute if starts with '/'. Otherwise relative from $BN_HOME.")
}

func (r *baseConfiguration) initConfigFileLocation() {
	// Home dir is loaded from command line argument. If it's not set, then from env. If that's not set, then default is used.
	if r.HomeDir == "" {
		r.HomeDir = os.Getenv(envKey(keyHome))
		if r.HomeDir == "" {
			r.HomeDir = blocknodeHomeDir()
		}
	}

	// Config file name is loaded from command line argument. If it's not set, then from env. If that's not set, then default is used.
	if r.CfgFile == "" {
		r.CfgFile = os.Getenv(envKey(keyConfig))
		if r.CfgFile == "" {
			r.CfgFile = defaultConfigFile
		}
	}
	if !filepath.IsAbs(r.CfgFile) {
		r.CfgFile = filepath.Join(r.HomeDir, r.CfgFile)
	}
}

/*
LoggerCfgFilename always returns non-empty filename - either the value
of the flag set by user or default cfg location.
*/
func (r *baseConfiguration) LoggerCfgFilename() string {
	if !filepath.IsAbs(r.LogCfgFile) {
		return filepath.Join(r.HomeDir, r.LogCfgFile)
	}
	return r.LogCfgFile
}

func (r *baseConfiguration) configFileExists() bool {
	_, err := os.Stat(r.CfgFile)
	return err == nil
}

// initLogger loads the logger configuration file. Only the default file may be missing.
func (r *baseConfiguration) initLogger() error {
	loggerCfgFile := filepath.Clean(r.LoggerCfgFilename())
	if _, err := os.Stat(loggerCfgFile); err != nil {
		defaultLoggerCfg := filepath.Join(r.HomeDir, defaultLoggerConfigFile)
		if errors.Is(err, os.ErrNotExist) && loggerCfgFile == defaultLoggerCfg {
			logger.InitializeGlobalLogger()
			return nil
		}
		return fmt.Errorf("opening logger configuration file: %w", err)
	}
	if err := logger.UpdateGlobalConfigFromFile(loggerCfgFile); err != nil {
		return fmt.Errorf("loading logger configuration (%s): %w", loggerCfgFile, err)
	}
	return nil
}

// defaultPath returns the file name joined to the home dir when it's not absolute.
func (r *baseConfiguration) defaultPath(fileName string) string {
	if fileName == "" || filepath.IsAbs(fileName) {
		return fileName
	}
	return filepath.Join(r.HomeDir, fileName)
}

func envKey(key string) string {
	return strings.ToUpper(envPrefix + "_" + key)
}

func blocknodeHomeDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		panic("default user home dir not defined: " + err.Error())
	}
	return filepath.Join(dir, defaultBlocknodeDir)
}
