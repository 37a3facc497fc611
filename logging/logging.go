// Package logging builds the application logger: a zap.Logger that tees
// to console and a rotating log file, with automatic redaction of API
// keys and other secrets in string fields.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger construction options.
type Config struct {
	// Development selects colored console output at debug level. Production
	// uses JSON at info level.
	Development bool

	// FilePath is the log file location. Empty disables file output.
	FilePath string

	// FileWriter overrides the rotation settings for the log file.
	FileWriter FileWriterConfig
}

// New builds the application logger.
//
// Console output goes to stderr so generated output on stdout stays
// clean. File output rotates via lumberjack. All string fields pass
// through the redaction filter before encoding.
//
// Example:
//
//	logger, err := logging.New(logging.Config{
//	    Development: true,
//	    FilePath:    "imagestudio.log",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Development {
		level = zapcore.DebugLevel
	}

	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	if cfg.Development {
		consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	)

	cores := []zapcore.Core{consoleCore}

	if cfg.FilePath != "" {
		fileEncoderConfig := zap.NewProductionEncoderConfig()
		fileEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEncoderConfig),
			NewFileWriterWithConfig(cfg.FilePath, cfg.FileWriter),
			level,
		)
		cores = append(cores, fileCore)
	}

	core := newRedactingCore(zapcore.NewTee(cores...))

	logger := zap.New(core, zap.AddCaller())
	if logger == nil {
		return nil, fmt.Errorf("logging: failed to construct logger")
	}
	return logger, nil
}
