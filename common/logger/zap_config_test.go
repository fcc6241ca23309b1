// common/logger/zap_config_test.go
package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestBuildZapConfig(t *testing.T) {
	cases := []struct {
		name         string
		cfg          Config
		wantLevel    zapcore.Level
		wantEncoding string
		wantSampling bool
	}{
		{"prod", Config{Level: "warn"}, zapcore.WarnLevel, "json", true},
		{"dev", Config{Level: "debug", DevMode: true}, zapcore.DebugLevel, "console", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			zc, err := buildZapConfig(c.cfg)
			if err != nil {
				t.Fatalf("buildZapConfig: %v", err)
			}
			if got := zc.Level.Level(); got != c.wantLevel {
				t.Errorf("level = %v; want %v", got, c.wantLevel)
			}
			if zc.Encoding != c.wantEncoding {
				t.Errorf("encoding = %q; want %q", zc.Encoding, c.wantEncoding)
			}
			if (zc.Sampling != nil) != c.wantSampling {
				t.Errorf("sampling = %+v; want enabled=%v", zc.Sampling, c.wantSampling)
			}
			if zc.EncoderConfig.TimeKey != "ts" || zc.EncoderConfig.NameKey != "component" {
				t.Errorf("unexpected encoder keys: %+v", zc.EncoderConfig)
			}
		})
	}

	if _, err := buildZapConfig(Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
