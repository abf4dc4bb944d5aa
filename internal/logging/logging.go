// Package logging builds the leveled loggers shared by the scan components.
// They are the same gommon loggers echo uses for e.Logger, so component and
// HTTP logs come out in one format.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/labstack/gommon/log"
)

const header = `{"time":"${time_rfc3339}","level":"${level}","prefix":"${prefix}"}`

// ParseLevel maps a config level name onto a gommon level. Unknown names
// fall back to INFO.
func ParseLevel(level string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off", "none":
		return log.OFF
	default:
		return log.INFO
	}
}

// New returns a logger for one component writing to stderr.
func New(prefix, level string) *log.Logger {
	return NewWithOutput(prefix, level, os.Stderr)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(prefix, level string, w io.Writer) *log.Logger {
	l := log.New(prefix)
	l.SetHeader(header)
	l.SetLevel(ParseLevel(level))
	l.SetOutput(w)
	return l
}

// Discard returns a logger that drops everything, for tests.
func Discard() *log.Logger {
	return NewWithOutput("test", "off", io.Discard)
}
