package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iwvelando/whatif/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// logFormats maps the logging.format setting to a zap base config.
var logFormats = map[string]func() zap.Config{
	"json":    zap.NewProductionConfig,
	"console": zap.NewDevelopmentConfig,
}

// initializeLogger builds the process logger. A non-empty levelOverride
// (the --log-level flag) replaces the configured level.
func initializeLogger(conf config.LoggingConfig, levelOverride string) (*zap.Logger, error) {
	name := conf.Level
	if levelOverride != "" {
		name = levelOverride
	}
	level, err := parseLogLevel(name)
	if err != nil {
		return nil, err
	}

	format := conf.Format
	if format == "" {
		format = "json"
	}
	base, ok := logFormats[format]
	if !ok {
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	zc := base()
	zc.Level = zap.NewAtomicLevelAt(level)

	if path := conf.OutputFile; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory for %s: %w", path, err)
		}
		zc.OutputPaths = []string{path}
		zc.ErrorOutputPaths = []string{path}
	}
	return zc.Build()
}

// parseLogLevel accepts debug, info, warn (or warning) and error.
func parseLogLevel(name string) (zapcore.Level, error) {
	switch name {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(name)); err != nil || level > zapcore.ErrorLevel {
		return level, fmt.Errorf("invalid log level: %s", name)
	}
	return level, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": %q}\n", err.Error())
		os.Exit(1)
	}
}
