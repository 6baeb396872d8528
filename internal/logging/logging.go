package logging

import (
	"go.uber.org/zap"
)

type Logger struct {
	*zap.SugaredLogger
}

func Build(debug bool) (*Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "time"
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.Encoding = "json"
	}
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}
	return &Logger{logger.Sugar()}, nil
}

// New builds a logger, falling back to a no-op logger if the zap config
// cannot be built.
func New(debug bool) *Logger {
	l, err := Build(debug)
	if err != nil {
		return Nop()
	}
	return l
}

func Nop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

// Component returns a named child logger for one subsystem.
func (l *Logger) Component(name string) *zap.SugaredLogger {
	return l.Named(name)
}
