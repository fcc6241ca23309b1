// common/logger/zap_config.go
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// сэмплинг прод-логов: первые 100 одинаковых записей в секунду, затем каждая 100-я.
const (
	sampleInitial    = 100
	sampleThereafter = 100
)

// buildZapConfig собирает zap.Config по Config: консоль в DevMode, JSON с сэмплингом иначе.
func buildZapConfig(cfg Config) (zap.Config, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		return zap.Config{}, err
	}

	zc := zap.NewProductionConfig()
	if cfg.DevMode {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc.Sampling = &zap.SamplingConfig{Initial: sampleInitial, Thereafter: sampleThereafter}
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	tuneEncoder(&zc.EncoderConfig)
	return zc, nil
}

func tuneEncoder(ec *zapcore.EncoderConfig) {
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.CallerKey = "caller"
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	ec.NameKey = "component"
	ec.StacktraceKey = "stacktrace"
}
