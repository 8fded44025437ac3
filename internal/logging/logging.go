// Package logging builds the zap.Logger every other package in this
// module assumes (Named, Sugar, structured fields), matching the call
// sites already present across internal/bot, internal/cache and
// internal/routes in the teacher repository this module was adapted from.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// New builds a zap.Logger. In dev mode it writes colorized console output
// to stderr; otherwise it writes JSON to both stderr and a rotating log
// file under ./logs/gateway.log.
func New(dev bool, level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	if dev {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			panic(err)
		}
		return logger
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encoderCfg)

	rotator := &lumberjack.Logger{
		Filename:   "logs/gateway.log",
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}

	core := zapcore.NewTee(
		zapcore.NewCore(jsonEncoder, zapcore.AddSync(os.Stderr), lvl),
		zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), lvl),
	)
	return zap.New(core, zap.AddCaller())
}
