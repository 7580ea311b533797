package logger

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultTimeLocation      = "UTC"
	defaultConsoleTimeFormat = "15:04:05.0000"
	basePackage              = "blocknode-org/blocknode"
)

type globalFactory struct {
	sync.Mutex
	config                  GlobalConfig
	loggers                 map[string]*ContextLogger
	context                 Context
	consoleTimeFormat       string
	callerSkipFrames        int // frames to skip to get real caller
	packageNameResolver     *PackageNameResolver
	nonAlphaNumericRegex    *regexp.Regexp
	globalLoggerInitialized bool
	closer                  io.Closer // rotating file writer, if any
}

// Singleton for managing application wide logging.
var globalFactoryImpl = newGlobalFactory()

func newGlobalFactory() *globalFactory {
	return &globalFactory{
		loggers:              make(map[string]*ContextLogger),
		context:              make(Context),
		consoleTimeFormat:    defaultConsoleTimeFormat,
		callerSkipFrames:     3,
		packageNameResolver:  &PackageNameResolver{BasePackage: basePackage},
		nonAlphaNumericRegex: regexp.MustCompile("[^a-zA-Z0-9]+"),
	}
}

// developerConfiguration is used when nothing else has been configured.
func developerConfiguration() GlobalConfig {
	return GlobalConfig{
		DefaultLevel:    DEBUG,
		PackageLevels:   map[string]LogLevel{},
		Writer:          zerolog.SyncWriter(consoleOut()),
		ConsoleFormat:   true,
		ShowCaller:      true,
		TimeLocation:    defaultTimeLocation,
		ShowGoroutineID: false,
	}
}

// SetContext sets context for all loggers
func SetContext(key string, value interface{}) {
	globalFactoryImpl.setContext(key, value)
}

// ClearContext will clear a context key from all loggers
func ClearContext(key string) {
	globalFactoryImpl.clearContext(key)
}

// CreateForPackage creates logger named after the caller package.
func CreateForPackage() Logger {
	return Create(globalFactoryImpl.packageNameResolver.PackageName())
}

// Create creates custom named logger
func Create(name string) Logger {
	return globalFactoryImpl.create(name)
}

// UpdateGlobalConfig updates global config and all loggers accordingly.
func UpdateGlobalConfig(config GlobalConfig) {
	globalFactoryImpl.Lock()
	defer globalFactoryImpl.Unlock()

	globalFactoryImpl.updateFromConfig(config)
}

// UpdateGlobalConfigFromFile reads the file and parses it as YAML. Global logger configuration is updated accordingly.
// In case of an error, logger won't be updated.
func UpdateGlobalConfigFromFile(fileURL string) error {
	conf, closer, err := loadGlobalConfigFromFile(fileURL)
	if err != nil {
		return err
	}
	globalFactoryImpl.Lock()
	defer globalFactoryImpl.Unlock()
	if globalFactoryImpl.closer != nil {
		_ = globalFactoryImpl.closer.Close()
	}
	globalFactoryImpl.closer = closer
	globalFactoryImpl.updateFromConfig(conf)
	return nil
}

// InitializeGlobalLogger initializes global logger with default configuration if it hasn't been initialized already.
func InitializeGlobalLogger() {
	globalFactoryImpl.Lock()
	defer globalFactoryImpl.Unlock()
	if !globalFactoryImpl.globalLoggerInitialized {
		globalFactoryImpl.updateFromConfig(developerConfiguration())
	}
}

// Close releases the log file, if logging to a file was configured.
func Close() error {
	globalFactoryImpl.Lock()
	defer globalFactoryImpl.Unlock()
	if globalFactoryImpl.closer == nil {
		return nil
	}
	err := globalFactoryImpl.closer.Close()
	globalFactoryImpl.closer = nil
	return err
}

// Loggers returns names and levels of all the loggers created so far.
func Loggers() []string {
	globalFactoryImpl.Lock()
	defer globalFactoryImpl.Unlock()
	names := make([]string, 0, len(globalFactoryImpl.loggers))
	for name, l := range globalFactoryImpl.loggers {
		names = append(names, fmt.Sprintf("%s=%s", name, l.GetLevel()))
	}
	sort.Strings(names)
	return names
}

func (gf *globalFactory) setContext(key string, value interface{}) {
	gf.Lock()
	defer gf.Unlock()

	ctx := make(Context, len(gf.context)+1)
	for k, v := range gf.context {
		ctx[k] = v
	}
	ctx[key] = value
	gf.context = ctx
	gf.updateAllLoggers()
}

func (gf *globalFactory) clearContext(key string) {
	gf.Lock()
	defer gf.Unlock()

	ctx := make(Context, len(gf.context))
	for k, v := range gf.context {
		if k != key {
			ctx[k] = v
		}
	}
	gf.context = ctx
	gf.updateAllLoggers()
}

func (gf *globalFactory) updateFromConfig(config GlobalConfig) {
	newWriter := config.Writer != nil && config.Writer != gf.config.Writer

	updateOutputFormat := !gf.globalLoggerInitialized ||
		newWriter ||
		gf.config.ConsoleFormat != config.ConsoleFormat ||
		gf.config.ShowCaller != config.ShowCaller

	if newWriter {
		gf.config.Writer = config.Writer
	}
	if gf.config.Writer == nil {
		gf.config.Writer = zerolog.SyncWriter(consoleOut())
	}
	gf.config.DefaultLevel = config.DefaultLevel
	gf.config.PackageLevels = config.PackageLevels
	gf.config.ConsoleFormat = config.ConsoleFormat
	gf.config.ShowCaller = config.ShowCaller
	gf.config.ShowGoroutineID = config.ShowGoroutineID

	if updateOutputFormat {
		gf.updateOutputFormat()
	}
	if config.TimeLocation != "" {
		gf.updateTimeLocation(config.TimeLocation)
	}
	gf.updateAllLoggers()
}

func (gf *globalFactory) updateTimeLocation(location string) {
	loc, err := time.LoadLocation(location)
	if err != nil {
		loc = time.UTC
	}
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().In(loc)
	}
}

// updateOutputFormat replaces the zerolog global logger. Package loggers are
// derived from it so they must be rebuilt afterwards.
func (gf *globalFactory) updateOutputFormat() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var newGlobalLogger zerolog.Logger
	if gf.config.ConsoleFormat {
		newGlobalLogger = zerolog.New(zerolog.ConsoleWriter{
			Out:          gf.config.Writer,
			TimeFormat:   gf.consoleTimeFormat,
			FormatCaller: consoleFormatCallerLastTwoDirs,
		}).With().Timestamp().Logger()
	} else {
		newGlobalLogger = zerolog.New(gf.config.Writer).With().Timestamp().Logger()
	}
	if gf.config.ShowCaller {
		newGlobalLogger = newGlobalLogger.With().CallerWithSkipFrameCount(gf.callerSkipFrames).Logger()
	}
	log.Logger = newGlobalLogger
	gf.globalLoggerInitialized = true
}

func (gf *globalFactory) updateAllLoggers() {
	for name, logger := range gf.loggers {
		logger.update(gf.loggerLevel(name), gf.context, gf.config.ShowGoroutineID)
	}
}

func (gf *globalFactory) create(name string) Logger {
	gf.Lock()
	defer gf.Unlock()

	normName := gf.normalizeName(name)
	if logger, ok := gf.loggers[normName]; ok {
		return logger
	}
	// configuration can specify the log levels based on logger names, by convention
	// each package creates one named after the package path.
	cl := newContextLogger(gf.loggerLevel(normName), gf.context, gf.config.ShowGoroutineID)
	gf.loggers[normName] = cl
	return cl
}

func (gf *globalFactory) normalizeName(name string) string {
	return gf.nonAlphaNumericRegex.ReplaceAllString(name, "_")
}

func (gf *globalFactory) loggerLevel(loggerName string) LogLevel {
	if level, ok := gf.config.PackageLevels[loggerName]; ok {
		return level
	}
	return gf.config.DefaultLevel
}
