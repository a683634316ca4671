// Package logging builds the structured logger shared by the bench tools.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Levels lists the accepted --log-level values
var Levels = []string{"DEBUG", "INFO", "WARNING", "ERROR"}

// ParseLevel maps a level name to its slog level. WARN is accepted as an
// alias of WARNING.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q (choose from %s)", name, strings.Join(Levels, ", "))
}

// New returns a text logger on stderr
func New(level string) (*slog.Logger, error) {
	return NewWriter(os.Stderr, level)
}

// NewWriter returns a text logger writing to w
func NewWriter(w io.Writer, level string) (*slog.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}
