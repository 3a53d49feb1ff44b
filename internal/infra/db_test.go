package infra

import (
	"testing"
	"time"
)

func TestPoolConfigAppliesLimits(t *testing.T) {
	pc, err := poolConfig(&Config{DatabaseURL: "postgres://u:p@localhost:5432/charagen", DBMaxConns: 7, DBMinConns: 2})
	if err != nil {
		t.Fatalf("poolConfig: %v", err)
	}
	if pc.MaxConns != 7 || pc.MinConns != 2 {
		t.Fatalf("conns = %d/%d, want 7/2", pc.MaxConns, pc.MinConns)
	}
	if pc.MaxConnLifetime != time.Hour {
		t.Fatalf("MaxConnLifetime = %s", pc.MaxConnLifetime)
	}
	if got := pc.ConnConfig.RuntimeParams["application_name"]; got != "charagen" {
		t.Fatalf("application_name = %q", got)
	}
}

func TestPoolConfigKeepsExplicitApplicationName(t *testing.T) {
	pc, err := poolConfig(&Config{DatabaseURL: "postgres://localhost/charagen?application_name=ops", DBMaxConns: 1})
	if err != nil {
		t.Fatalf("poolConfig: %v", err)
	}
	if got := pc.ConnConfig.RuntimeParams["application_name"]; got != "ops" {
		t.Fatalf("application_name = %q, want ops", got)
	}
}

func TestPoolConfigErrors(t *testing.T) {
	if _, err := poolConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := poolConfig(&Config{DatabaseURL: "postgres://%zz"}); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions(&Config{RedisURL: "redis://localhost:6379/2"})
	if err != nil {
		t.Fatalf("redisOptions: %v", err)
	}
	if opts.DB != 2 || opts.Addr != "localhost:6379" || opts.ClientName != "charagen" {
		t.Fatalf("unexpected options: db=%d addr=%s name=%s", opts.DB, opts.Addr, opts.ClientName)
	}
	if _, err := redisOptions(&Config{}); err == nil {
		t.Fatal("expected error without url")
	}
}
