// Package logger - process-wide zap logger shared by the CLI, the HTTP server
// and the detection pipeline.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Mode selects the encoder and level preset.
type Mode string

const (
	// ModeProduction writes JSON at info level.
	ModeProduction Mode = "production"
	// ModeDevelopment writes console lines at debug level.
	ModeDevelopment Mode = "development"
)

var (
	logMu sync.RWMutex
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

// Init builds and installs the logger for mode. Unknown modes fall back to
// production.
func Init(mode Mode) error {
	if mode == ModeDevelopment {
		return InitDevelopment()
	}
	return InitProduction()
}

// InitProduction installs a JSON logger at info level.
func InitProduction() error {
	return build(zap.NewProductionConfig())
}

// InitDevelopment installs a console logger at debug level.
func InitDevelopment() error {
	return build(zap.NewDevelopmentConfig())
}

func build(cfg zap.Config) error {
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// Set replaces the package and zap global loggers with l, flushing the
// previous one.
func Set(l *zap.Logger) {
	logMu.Lock()
	defer logMu.Unlock()

	zap.ReplaceGlobals(l)
	if log != nil {
		_ = log.Sync()
	}
	log = l
	sugar = l.Sugar()
}

// Log returns the installed logger, or zap's global one before Init.
func Log() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		return log
	}
	return zap.L()
}

// S returns the sugared form of Log.
func S() *zap.SugaredLogger {
	logMu.RLock()
	defer logMu.RUnlock()
	if sugar != nil {
		return sugar
	}
	return zap.S()
}

// Sync flushes buffered entries.
func Sync() {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}
