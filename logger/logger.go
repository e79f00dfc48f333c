package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log starts as a production logger so failures before Init still print.
var Log = Default()

// Default builds an info-level production logger.
func Default() *zap.SugaredLogger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewExample().Sugar()
	}
	return logger.Sugar()
}

// Init replaces Log with a production logger at level. development switches
// to the console encoder with stack traces on warnings.
func Init(level string, development bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	Log = logger.Sugar()
	return nil
}

// Named returns a child of Log for one component.
func Named(name string) *zap.SugaredLogger {
	return Log.Named(name)
}

// Nop is a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func Sync() {
	_ = Log.Sync()
}
