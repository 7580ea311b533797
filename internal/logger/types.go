package logger

import (
	"io"
	"strings"
)

type Logger interface {
	Trace(format string, args ...interface{})
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Error(format string, args ...interface{})
	// With returns a child logger which adds key=value to every message.
	With(key string, value interface{}) Logger
	// ChangeLevel changes logger level to the newLevel
	ChangeLevel(newLevel LogLevel)
	GetLevel() LogLevel
}

type LogLevel uint

const (
	NONE LogLevel = iota
	ERROR
	WARNING
	INFO
	DEBUG
	TRACE
)

// GlobalConfig is the process wide logging configuration shared by all package loggers.
type GlobalConfig struct {
	DefaultLevel    LogLevel
	PackageLevels   map[string]LogLevel
	Writer          io.Writer
	ConsoleFormat   bool
	ShowCaller      bool
	TimeLocation    string
	ShowGoroutineID bool
}

func LevelFromString(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "NONE":
		return NONE
	case "ERROR":
		return ERROR
	case "WARNING", "WARN":
		return WARNING
	case "INFO":
		return INFO
	case "DEBUG":
		return DEBUG
	case "TRACE":
		return TRACE
	default:
		return DEBUG
	}
}

func (l LogLevel) String() string {
	switch l {
	case NONE:
		return "NONE"
	case ERROR:
		return "ERROR"
	case WARNING:
		return "WARNING"
	case INFO:
		return "INFO"
	case DEBUG:
		return "DEBUG"
	case TRACE:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}
