package logging

import (
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration
type Config struct {
	Level string
	// File enables a rotating log file alongside stderr.
	File   string
	JSON   bool
	Prefix string
}

// New builds the process logger. The returned closer flushes the rotating
// file, if any.
func New(cfg Config) (*log.Logger, io.Closer, error) {
	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		level = parsed
	}

	var writer io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		writer = io.MultiWriter(os.Stderr, fileWriter)
		closer = fileWriter
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "trainlog"
	}
	opts := log.Options{
		ReportTimestamp: true,
		ReportCaller:    level == log.DebugLevel,
		Level:           level,
		Prefix:          prefix,
	}
	if cfg.JSON {
		opts.Formatter = log.JSONFormatter
	}
	return log.NewWithOptions(writer, opts), closer, nil
}

// Discard returns a logger that drops everything, for tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// OrDefault returns l, or the package default logger when l is nil.
func OrDefault(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}

// SafeURL strips credentials, query and fragment from an endpoint so it can
// be logged.
func SafeURL(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		if idx := strings.Index(endpoint, "?"); idx >= 0 {
			return endpoint[:idx]
		}
		return endpoint
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		return parsed.Path
	}
	return parsed.Scheme + "://" + parsed.Host + parsed.Path
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
