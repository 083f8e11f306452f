// Package logging builds the process-wide loggers.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger with the given prefix writing to stderr and, when
// logFile is non-empty, to a size-rotated file as well.
func New(prefix, logFile string) *log.Logger {
	var out io.Writer = os.Stderr

	if logFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotated)
	}

	return log.New(out, prefix, log.LstdFlags)
}
