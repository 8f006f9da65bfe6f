package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

// TestRun_ServeCommand_FailsWithoutDatabase はserveコマンドがDB接続を確認し、
// 接続できない場合にサーバーを起動せずエラーを返すことを検証する。
func TestRun_ServeCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run(serve) should fail when the database is unreachable")
	}
	if !strings.Contains(err.Error(), "database") {
		t.Errorf("error = %v, want database related error", err)
	}
}

// TestRun_DefaultCommand_FailsWithoutDatabase はデフォルトコマンド（serve）でも同様にDB接続を確認することを検証する。
func TestRun_DefaultCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{}); err == nil {
		t.Fatal("Run([]) should fail when the database is unreachable")
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_MigrateUnknownAction_ReturnsError(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"migrate", "sideways"})
	if err == nil || !strings.Contains(err.Error(), "sideways") {
		t.Errorf("expected unknown action error, got %v", err)
	}
}

func TestRun_Healthcheck_FailsWhenServerIsDown(t *testing.T) {
	t.Setenv("SERVER_PORT", "1")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"healthcheck"}); err == nil {
		t.Fatal("healthcheck should fail when nothing listens on the port")
	}
}

func TestNewSessionRegistry_RedisUnreachable_ReturnsError(t *testing.T) {
	cfg := testConfig()
	cfg.SessionStore = "redis"
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	if _, _, err := newSessionRegistry(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}

func TestNewSessionRegistry_MemoryByDefault(t *testing.T) {
	registry, closeFn, err := newSessionRegistry(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer closeFn()

	if n, err := registry.Count(context.Background()); err != nil || n != 0 {
		t.Errorf("Count() = %d, %v, want 0, nil", n, err)
	}
}
