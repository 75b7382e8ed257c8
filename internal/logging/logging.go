// Package logging constructs the zap logger used across imploid's
// subsystems, following 3leaps-gonimbus's internal/cmd/doctor.go choice of
// go.uber.org/zap for structured logging.
package logging

import "go.uber.org/zap"

// New builds a *zap.SugaredLogger for the given level name
// (debug/info/warn/error) and verbosity flag. verbose forces debug level
// and a development (console, colorized) encoder regardless of level.
func New(level string, verbose bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	if !verbose {
		var zl zap.AtomicLevel
		if err := zl.UnmarshalText([]byte(level)); err == nil {
			cfg.Level = zl
		}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
