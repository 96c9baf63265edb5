// internal/infra/logger/logger.go
package logger

import (
	"io"
	"os"
	"strings"

	"stockpile_manager/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// Log is the global logger instance
var Log = logrus.New()

// Init configures the global logger from the application configuration:
// JSON lines in production and staging, coloured text elsewhere.
func Init(cfg *config.AppConfig) *logrus.Logger {
	Configure(Log, os.Stdout, cfg.LogLevel, cfg.Environment)
	Log.WithFields(logrus.Fields{
		"level":       Log.GetLevel().String(),
		"environment": cfg.Environment,
	}).Debug("Logger initialized")
	return Log
}

// Configure applies level and formatter to l. An unknown level falls back to info.
func Configure(l *logrus.Logger, out io.Writer, level, environment string) {
	l.SetOutput(out)

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		l.SetLevel(logrus.InfoLevel)
		l.Warnf("Invalid log level '%s', defaulting to 'info'", level)
	} else {
		l.SetLevel(parsed)
	}

	switch strings.ToLower(environment) {
	case config.EnvProduction, "staging":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00", // ISO8601
		})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
}
