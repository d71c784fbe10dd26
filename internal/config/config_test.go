package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_REDIS_URL", "redis://example:6379")

	path := writeConfig(t, `{
		"server": {"port": 9090, "log_level": "debug"},
		"database": {
			"redis": {"url": "${TEST_REDIS_URL}"},
			"postgres": {"dsn": "${TEST_PG_DSN:postgres://localhost/gatehouse}"}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Database.Redis.URL != "redis://example:6379" {
		t.Errorf("redis url = %q", cfg.Database.Redis.URL)
	}
	if cfg.Database.Postgres.DSN != "postgres://localhost/gatehouse" {
		t.Errorf("default not applied: %q", cfg.Database.Postgres.DSN)
	}
}

func TestLoadApprovalPolicies(t *testing.T) {
	path := writeConfig(t, `{
		"approvals": {
			"create_issue": {"require_approval": true, "timeout_seconds": 300},
			"run_query": {"require_approval": true, "require_reason_on_reject": true}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	p := cfg.Approvals["create_issue"]
	if !p.RequireApproval || p.Timeout() != 5*time.Minute {
		t.Errorf("create_issue policy = %+v", p)
	}
	q := cfg.Approvals["run_query"]
	if !q.RequireReasonOnReject || q.Timeout() != 0 {
		t.Errorf("run_query policy = %+v", q)
	}
}

func TestLoadDefaultsPort(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("missing file should fail")
	}
}
