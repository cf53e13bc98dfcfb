package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvMissingFileIsIgnored(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestLoadEnvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TB_CFG_A=file\nTB_CFG_B=file\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("TB_CFG_A", "process")
	t.Setenv("TB_CFG_B", "")
	os.Unsetenv("TB_CFG_B")
	t.Cleanup(func() { os.Unsetenv("TB_CFG_B") })

	if err := LoadEnv(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("TB_CFG_A"); got != "process" {
		t.Fatalf("expected process value to win, got %q", got)
	}
	if got := os.Getenv("TB_CFG_B"); got != "file" {
		t.Fatalf("expected file value, got %q", got)
	}
}

func TestIntAndDuration(t *testing.T) {
	t.Setenv("TB_CFG_INT", "")
	n, err := Int("TB_CFG_INT", 7)
	if err != nil || n != 7 {
		t.Fatalf("expected fallback 7, got %d, %v", n, err)
	}
	t.Setenv("TB_CFG_INT", "12")
	if n, _ := Int("TB_CFG_INT", 7); n != 12 {
		t.Fatalf("expected 12, got %d", n)
	}
	t.Setenv("TB_CFG_INT", "-1")
	if _, err := Int("TB_CFG_INT", 7); err == nil {
		t.Fatal("expected error for non-positive value")
	}

	t.Setenv("TB_CFG_DUR", "250ms")
	d, err := Duration("TB_CFG_DUR", time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v, %v", d, err)
	}
	t.Setenv("TB_CFG_DUR", "soon")
	if _, err := Duration("TB_CFG_DUR", time.Second); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRequireListsMissingKeys(t *testing.T) {
	t.Setenv("TB_CFG_SET", "x")
	t.Setenv("TB_CFG_EMPTY", " ")
	_, err := Require("TB_CFG_SET", "TB_CFG_EMPTY", "TB_CFG_UNSET")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "missing config: TB_CFG_EMPTY, TB_CFG_UNSET" {
		t.Fatalf("unexpected error: %v", err)
	}

	vals, err := Require("TB_CFG_SET")
	if err != nil || vals["TB_CFG_SET"] != "x" {
		t.Fatalf("unexpected result: %v, %v", vals, err)
	}
}

func TestRedisOptions(t *testing.T) {
	opts, err := RedisOptions("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options: %+v", opts)
	}

	opts, err = RedisOptions("cache.example.net:6380,password=pw,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("parse connection string: %v", err)
	}
	if opts.Addr != "cache.example.net:6380" || opts.Password != "pw" || opts.TLSConfig == nil {
		t.Fatalf("unexpected options: %+v", opts)
	}

	if _, err := RedisOptions(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}
