package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{Port: 8080, ReadTimeout: 10, WriteTimeout: 10},
		Grid:   GridConfig{Source: GridSourceFile, Path: "data/EGM96.dat", ValkeyKey: "egm96:grid"},
		NATS:   NATSConfig{URL: "nats://localhost:4222"},
		Valkey: ValkeyConfig{Addr: "localhost:6379"},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, "server.read_timeout"},
		{"unknown source", func(c *Config) { c.Grid.Source = "s3" }, "grid.source"},
		{"file without path", func(c *Config) { c.Grid.Path = "" }, "grid.path"},
		{"valkey source without valkey", func(c *Config) { c.Grid.Source = GridSourceValkey }, "valkey.enabled"},
		{"valkey source", func(c *Config) {
			c.Grid.Source = GridSourceValkey
			c.Valkey.Enabled = true
		}, ""},
		{"nats enabled without url", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.URL = ""
		}, "nats.url"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Grid.Source = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "server.port") || !strings.Contains(err.Error(), "grid.source") {
		t.Errorf("expected both problems reported, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("EGM96_GRID_PATH", "/srv/geoid/EGM96.dat.zst")
	t.Setenv("EGM96_SERVER_PORT", "9090")

	cfg, err := Load("egm96-test")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Grid.Path != "/srv/geoid/EGM96.dat.zst" {
		t.Errorf("grid.path = %q", cfg.Grid.Path)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d", cfg.Server.Port)
	}
	if cfg.Telemetry.ServiceName != "egm96-test" {
		t.Errorf("telemetry.service_name = %q", cfg.Telemetry.ServiceName)
	}
}
