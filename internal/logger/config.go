package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

/*
fileConfig is the YAML representation of the logger configuration:

	defaultLevel: INFO
	outputPath: /var/log/blocknode.log # or stdout, stderr, discard
	consoleFormat: false
	showCaller: true
	timeLocation: UTC
	showGoroutineID: false
	maxSizeMB: 100
	maxAgeDays: 7
	maxBackups: 3
	packageLevels:
	  internal_hasher: TRACE
*/
type fileConfig struct {
	DefaultLevel    string            `yaml:"defaultLevel"`
	OutputPath      string            `yaml:"outputPath"`
	ConsoleFormat   *bool             `yaml:"consoleFormat"`
	ShowCaller      *bool             `yaml:"showCaller"`
	TimeLocation    string            `yaml:"timeLocation"`
	ShowGoroutineID bool              `yaml:"showGoroutineID"`
	MaxSizeMB       int               `yaml:"maxSizeMB"`
	MaxAgeDays      int               `yaml:"maxAgeDays"`
	MaxBackups      int               `yaml:"maxBackups"`
	PackageLevels   map[string]string `yaml:"packageLevels"`
}

func loadGlobalConfigFromFile(fileName string) (GlobalConfig, io.Closer, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return GlobalConfig{}, nil, fmt.Errorf("reading logger config file: %w", err)
	}
	return parseGlobalConfig(data)
}

func parseGlobalConfig(data []byte) (GlobalConfig, io.Closer, error) {
	fc := fileConfig{}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return GlobalConfig{}, nil, fmt.Errorf("parsing logger config: %w", err)
	}
	conf := developerConfiguration()
	if fc.DefaultLevel != "" {
		conf.DefaultLevel = LevelFromString(fc.DefaultLevel)
	}
	for name, lvl := range fc.PackageLevels {
		conf.PackageLevels[name] = LevelFromString(lvl)
	}
	if fc.ConsoleFormat != nil {
		conf.ConsoleFormat = *fc.ConsoleFormat
	}
	if fc.ShowCaller != nil {
		conf.ShowCaller = *fc.ShowCaller
	}
	if fc.TimeLocation != "" {
		conf.TimeLocation = fc.TimeLocation
	}
	conf.ShowGoroutineID = fc.ShowGoroutineID

	var closer io.Closer
	conf.Writer, closer = outputWriter(fc)
	return conf, closer, nil
}

func outputWriter(fc fileConfig) (io.Writer, io.Closer) {
	switch strings.ToLower(fc.OutputPath) {
	case "", "stderr":
		return zerolog.SyncWriter(os.Stderr), nil
	case "stdout":
		return zerolog.SyncWriter(os.Stdout), nil
	case "discard":
		return io.Discard, nil
	default:
		lj := &lumberjack.Logger{
			Filename:   fc.OutputPath,
			MaxSize:    fc.MaxSizeMB,
			MaxAge:     fc.MaxAgeDays,
			MaxBackups: fc.MaxBackups,
		}
		return lj, lj
	}
}
