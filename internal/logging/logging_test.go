package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input   string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"bogus", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := LevelFromString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LevelFromString(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("LevelFromString(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"console format valid", func(c *Config) { c.Format = "console" }, false},
		{"bad format", func(c *Config) { c.Format = "xml" }, true},
		{"no outputs", func(c *Config) { c.Output = OutputConfig{} }, true},
		{"negative caller skip", func(c *Config) { c.Caller.Skip = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestContextFields(t *testing.T) {
	ctx := WithProject(context.Background(), "payments")
	ctx = WithRequestID(ctx, "req-1")

	fields := ContextFields(ctx)
	if len(fields) != 2 {
		t.Fatalf("ContextFields() returned %d fields, want 2", len(fields))
	}
}

func TestLoggerCarriesContextFields(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithProject(context.Background(), "payments")

	tl.Info(ctx, "gate evaluated", zap.String("phase", "build"))

	entries := tl.FilterMessage("gate evaluated").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fieldMap := entries[0].ContextMap()
	if fieldMap["project"] != "payments" {
		t.Errorf("project field = %v, want payments", fieldMap["project"])
	}
	if fieldMap["phase"] != "build" {
		t.Errorf("phase field = %v, want build", fieldMap["phase"])
	}
}

func TestFromContextFallsBackToNop(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil {
		t.Fatal("FromContext returned nil")
	}
	// Must not panic.
	l.Info(context.Background(), "ignored")
}
