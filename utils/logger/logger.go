// Package logger is a thin, timestamped wrapper over the standard
// library's log package.
package logger

import (
	"log"
	"os"
)

var (
	infoLog = log.New(os.Stdout, "INFO  ", log.LstdFlags)
	warnLog = log.New(os.Stderr, "WARN  ", log.LstdFlags)
	errLog  = log.New(os.Stderr, "ERROR ", log.LstdFlags)
)

// Info logs an informational message to stdout.
func Info(msg string) {
	infoLog.Println(msg)
}

// Warn logs a warning to stderr, e.g. a LowConfidence result.
func Warn(msg string) {
	warnLog.Println(msg)
}

// Error logs an error to stderr.
func Error(err error) {
	errLog.Println(err)
}
