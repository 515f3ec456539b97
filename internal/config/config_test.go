package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Queue.Fsync != "always" {
		t.Fatalf("default fsync mode")
	}
	if cfg.Queue.Name != "default" {
		t.Fatalf("default queue name")
	}
	if cfg.Queue.MaxInlineBytes != 4096 {
		t.Fatalf("default inline threshold")
	}
	if cfg.Server.Addr != ":7777" {
		t.Fatalf("default server addr")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sluice.yaml")
	data := []byte("dataDir: /data/sluice\n" +
		"queue:\n" +
		"  fsync: never\n" +
		"  name: prod\n" +
		"server:\n" +
		"  addr: 0.0.0.0:9000\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/data/sluice" {
		t.Fatalf("expected /data/sluice, got %s", cfg.DataDir)
	}
	if cfg.Queue.Fsync != "never" {
		t.Fatalf("expected never, got %s", cfg.Queue.Fsync)
	}
	if cfg.Queue.Name != "prod" {
		t.Fatalf("expected prod, got %s", cfg.Queue.Name)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("expected 0.0.0.0:9000, got %s", cfg.Server.Addr)
	}
	// Fields the file never mentioned keep their Default() value.
	if cfg.Queue.MaxInlineBytes != 4096 {
		t.Fatalf("expected default inline threshold to survive merge, got %d", cfg.Queue.MaxInlineBytes)
	}
	if cfg.Server.RateLimitRPS != 200 {
		t.Fatalf("expected default rate limit to survive merge, got %v", cfg.Server.RateLimitRPS)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// LogConfig.RedactFields is a slice, so Config is no longer comparable
	// with ==; compare deeply instead.
	if want := Default(); !reflect.DeepEqual(cfg, want) {
		t.Fatalf("expected defaults unchanged, got %+v want %+v", cfg, want)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("SLUICE_DATA_DIR", "/var/lib/sluice-test")
	os.Setenv("SLUICE_QUEUE_NAME", "staging")
	os.Setenv("SLUICE_QUEUE_FSYNC", "interval")
	os.Setenv("SLUICE_SERVER_RATE_LIMIT_BURST", "999")
	t.Cleanup(func() {
		os.Unsetenv("SLUICE_DATA_DIR")
		os.Unsetenv("SLUICE_QUEUE_NAME")
		os.Unsetenv("SLUICE_QUEUE_FSYNC")
		os.Unsetenv("SLUICE_SERVER_RATE_LIMIT_BURST")
	})
	FromEnv(&cfg)
	if cfg.DataDir != "/var/lib/sluice-test" {
		t.Fatalf("env override data dir")
	}
	if cfg.Queue.Name != "staging" {
		t.Fatalf("env override queue name")
	}
	if cfg.Queue.Fsync != "interval" {
		t.Fatalf("env override fsync")
	}
	if cfg.Server.RateLimitBurst != 999 {
		t.Fatalf("env override rate limit burst")
	}
}
