package logger

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type (
	ContextLogger struct {
		mu              sync.RWMutex
		zeroLogger      *zerolog.Logger
		level           LogLevel
		context         Context
		fields          Context // logger specific fields added with With
		showGoroutineID bool
	}

	Context map[string]interface{}
)

// newContextLogger creates the logger, but doesn't initialize it yet.
// Loggers are created in var phase, global configuration is applied later.
func newContextLogger(level LogLevel, context Context, showGoroutineID bool) *ContextLogger {
	return &ContextLogger{
		level:           level,
		context:         context,
		fields:          Context{},
		showGoroutineID: showGoroutineID,
	}
}

func (c *ContextLogger) logger() *zerolog.Logger {
	c.mu.RLock()
	zl := c.zeroLogger
	c.mu.RUnlock()
	if zl != nil {
		return zl
	}
	InitializeGlobalLogger()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zeroLogger == nil {
		c.rebuild()
	}
	return c.zeroLogger
}

func (c *ContextLogger) update(level LogLevel, context Context, showGoroutineID bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = level
	c.context = context
	c.showGoroutineID = showGoroutineID
	c.rebuild()
}

// rebuild must be called while holding the write lock.
func (c *ContextLogger) rebuild() {
	zeroLogger := log.Level(toZeroLevel(c.level))
	for key, value := range c.context {
		zeroLogger = zeroLogger.With().Interface(key, value).Logger()
	}
	for key, value := range c.fields {
		zeroLogger = zeroLogger.With().Interface(key, value).Logger()
	}
	if c.showGoroutineID {
		zeroLogger = zeroLogger.Hook(goRoutineIDHook{})
	}
	c.zeroLogger = &zeroLogger
}

func (c *ContextLogger) Trace(format string, args ...interface{}) {
	logMessage(c.logger().Trace(), format, args)
}

func (c *ContextLogger) Debug(format string, args ...interface{}) {
	logMessage(c.logger().Debug(), format, args)
}

func (c *ContextLogger) Info(format string, args ...interface{}) {
	logMessage(c.logger().Info(), format, args)
}

func (c *ContextLogger) Warning(format string, args ...interface{}) {
	logMessage(c.logger().Warn(), format, args)
}

func (c *ContextLogger) Error(format string, args ...interface{}) {
	logMessage(c.logger().Error(), format, args)
}

/*
With creates a detached child logger. The child is not tracked by the global
factory, ie later level changes of the parent are not propagated to it.
*/
func (c *ContextLogger) With(key string, value interface{}) Logger {
	c.mu.RLock()
	fields := make(Context, len(c.fields)+1)
	for k, v := range c.fields {
		fields[k] = v
	}
	fields[key] = value
	child := &ContextLogger{
		level:           c.level,
		context:         c.context,
		fields:          fields,
		showGoroutineID: c.showGoroutineID,
	}
	c.mu.RUnlock()
	return child
}

func logMessage(event *zerolog.Event, format string, args []interface{}) {
	if len(args) == 0 {
		event.Msg(format)
	} else {
		event.Msgf(format, args...)
	}
}

// ChangeLevel changes the level of the context logger.
func (c *ContextLogger) ChangeLevel(newLevel LogLevel) {
	c.logger()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = newLevel
	c.rebuild()
}

func (c *ContextLogger) GetLevel() LogLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.level
}

// A hook that adds goroutine ID to the log event
type goRoutineIDHook struct{}

func (h goRoutineIDHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	e.Uint64("GoID", goroutineID())
}

func toZeroLevel(lvl LogLevel) zerolog.Level {
	switch lvl {
	case NONE:
		return zerolog.Disabled
	case TRACE:
		return zerolog.TraceLevel
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARNING:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		panic(fmt.Sprintf("unknown level: %d", lvl))
	}
}
