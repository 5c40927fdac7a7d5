// Package logging provides leveled logging for triplanar. Messages go to the
// standard logger unless a rotating log file is configured with SetLogger.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
)

type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

// Logger is the set of logging calls components depend on.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})
}

// LogConfig controls where log output goes.
type LogConfig struct {
	// Logfile is the rotating log file. Empty means stderr.
	Logfile    string `yaml:"file" toml:"file"`
	MaxSize    int    `yaml:"maxSize" toml:"max_log_size"` // megabytes
	MaxAge     int    `yaml:"maxAge" toml:"max_log_age"`   // days
	MaxBackups int    `yaml:"maxBackups" toml:"max_log_backups"`
	Verbose    bool   `yaml:"verbose" toml:"verbose"`
}

var (
	mu     sync.Mutex
	mode   = InfoMode
	std    = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	closer io.Closer
)

// SetLogger configures the package logger from c. Rotated files are
// gzip-compressed.
func (c *LogConfig) SetLogger() {
	mu.Lock()
	defer mu.Unlock()
	if c != nil && c.Verbose {
		mode = DebugMode
	}
	if c == nil || c.Logfile == "" {
		return
	}
	l := &lumberjack.Logger{
		Filename:   c.Logfile,
		MaxSize:    c.MaxSize,
		MaxAge:     c.MaxAge,
		MaxBackups: c.MaxBackups,
		Compress:   true,
	}
	std.SetOutput(l)
	closer = l
}

// SetOutput redirects log output, used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	std.SetOutput(w)
	mu.Unlock()
}

// SetLogMode sets the severity required for a message to be written.
func SetLogMode(newMode ModeFlag) {
	mu.Lock()
	mode = newMode
	mu.Unlock()
}

// Shutdown closes the log file if one is open.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		closer.Close()
		closer = nil
	}
	std.SetOutput(os.Stderr)
}

func output(level ModeFlag, tag, format string, args ...interface{}) {
	mu.Lock()
	enabled := mode <= level
	mu.Unlock()
	if !enabled {
		return
	}
	std.Output(3, tag+" "+fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...interface{}) {
	output(DebugMode, "DEBUG", format, args...)
}

func Infof(format string, args ...interface{}) {
	output(InfoMode, "INFO", format, args...)
}

func Warningf(format string, args ...interface{}) {
	output(WarningMode, "WARNING", format, args...)
}

func Errorf(format string, args ...interface{}) {
	output(ErrorMode, "ERROR", format, args...)
}

func Criticalf(format string, args ...interface{}) {
	output(CriticalMode, "CRITICAL", format, args...)
}

type stdLogger struct{}

// Default returns a Logger backed by the package-level functions.
func Default() Logger {
	return stdLogger{}
}

func (stdLogger) Debugf(format string, args ...interface{})    { Debugf(format, args...) }
func (stdLogger) Infof(format string, args ...interface{})     { Infof(format, args...) }
func (stdLogger) Warningf(format string, args ...interface{})  { Warningf(format, args...) }
func (stdLogger) Errorf(format string, args ...interface{})    { Errorf(format, args...) }
func (stdLogger) Criticalf(format string, args ...interface{}) { Criticalf(format, args...) }
