// Package logger wraps the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var (
	log  *zerolog.Logger
	sink io.Closer
)

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Init configures the global logger.
// Console output goes to stderr so command output on stdout stays clean.
// When file is set, plain JSON lines are appended there as well; Close
// releases it.
func Init(level string, file string) error {
	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}

	var fileWriter *os.File
	if file != "" {
		var err error
		fileWriter, err = os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		output = zerolog.MultiLevelWriter(output, fileWriter)
	}

	if err := Close(); err != nil {
		return err
	}
	if fileWriter != nil {
		sink = fileWriter
	}

	l := zerolog.New(output).With().Timestamp().Logger().Level(ParseLevel(level))
	log = &l
	return nil
}

// Close closes the log file opened by Init, if any.
func Close() error {
	if sink == nil {
		return nil
	}
	err := sink.Close()
	sink = nil
	return err
}

// Set replaces the global logger. Mostly useful in tests.
func Set(l zerolog.Logger) {
	log = &l
}

// Get returns the global logger, or a discard logger before Init.
func Get() *zerolog.Logger {
	if log == nil {
		l := zerolog.New(io.Discard)
		log = &l
	}
	return log
}
