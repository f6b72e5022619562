// Package log wraps op/go-logging with named, leveled loggers shared by every
// engine subsystem.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/op/go-logging"
)

// Level is the verbosity threshold applied to every named logger.
type Level logging.Level

// The levels that can be passed to the SetLevel function.
const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
	Critical
)

var format = logging.MustStringFormatter(
	`%{color}%{time:2006-01-02 15:04:05.000} [%{module}] %{level:.4s}%{color:reset} %{message}`,
)

var (
	mu             sync.Mutex
	leveledBackend logging.LeveledBackend
	currentLevel   = Notice
)

// Logger is the subset of the go-logging API used across the engine.
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Notice(v ...interface{})
	Noticef(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})

	Critical(v ...interface{})
	Criticalf(format string, v ...interface{})
}

// New creates a named logger. The name is printed as the module of every record.
func New(name string) Logger {
	return logging.MustGetLogger(name)
}

// SetSink overrides the output sink. The current level is preserved.
func SetSink(sink io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	backend := logging.NewLogBackend(sink, "", 0)
	backendWithFormatter := logging.NewBackendFormatter(backend, format)
	leveledBackend = logging.AddModuleLevel(backendWithFormatter)
	leveledBackend.SetLevel(toLoggingLevel(currentLevel), "")
	logging.SetBackend(leveledBackend)
}

// SetLevel sets logger verbosity for all modules.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()

	currentLevel = level
	leveledBackend.SetLevel(toLoggingLevel(level), "")
}

// SetModuleLevel overrides the verbosity of one named logger.
func SetModuleLevel(module string, level Level) {
	mu.Lock()
	defer mu.Unlock()

	leveledBackend.SetLevel(toLoggingLevel(level), module)
}

func toLoggingLevel(level Level) logging.Level {
	switch level {
	case Debug:
		return logging.DEBUG
	case Info:
		return logging.INFO
	case Warning:
		return logging.WARNING
	case Error:
		return logging.ERROR
	case Critical:
		return logging.CRITICAL
	default:
		return logging.NOTICE
	}
}

func init() {
	SetSink(os.Stdout)
	SetLevel(Notice)
}
