// cliparse/cliparse_test.go
package cliparse

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://test")
	t.Setenv("ADMIN_KEY_SALT", "test-salt")
	t.Setenv("SLACK_BOT_ACCESS_TOKEN", "xoxb-test")
	t.Setenv("SLACK_SIGNING_SECRET", "signing")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
}

func noEnvFile(t *testing.T) string {
	return "-env-file=" + filepath.Join(t.TempDir(), "missing.env")
}

func TestParseFlags_EnvVars(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("REQUIRE_DISCLAIMER", "false")
	t.Setenv("PUSH_NUMBER_REGIONS", "+15555550199=Florida, +15555550198=Ohio")
	t.Setenv("DEMO_GATEWAY_NUMBERS", "+15555550000,+15555550001")

	cfg, err := ParseFlags([]string{noEnvFile(t)})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.RequireDisclaimer {
		t.Error("expected disclaimer to be disabled")
	}
	if cfg.PushNumberRegions["+15555550198"] != "Ohio" {
		t.Errorf("unexpected push regions: %v", cfg.PushNumberRegions)
	}
	if len(cfg.DemoGatewayNumbers) != 2 {
		t.Errorf("expected 2 demo gateways, got %v", cfg.DemoGatewayNumbers)
	}
	if cfg.PushInterval != 2*time.Second {
		t.Errorf("expected default push interval 2s, got %s", cfg.PushInterval)
	}
	if cfg.Mode != ModeServer {
		t.Errorf("expected server mode, got %s", cfg.Mode)
	}
}

func TestParseFlags_CLIOverridesEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9000")

	cfg, err := ParseFlags([]string{noEnvFile(t), "-p", "8081", "-d", "file:test.db", "-t", "sqlite", "-mode", "worker"})
	if err != nil {
		t.Fatal(err)
	}

	// CLI should override env
	if cfg.Port != 8081 {
		t.Errorf("CLI should override env: expected 8081, got %d", cfg.Port)
	}
	if cfg.DatabaseType != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.DatabaseType)
	}
	if cfg.Mode != ModeWorker {
		t.Errorf("expected worker mode, got %s", cfg.Mode)
	}
}

func TestParseFlags_DemoNumbers(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DEMO_VOTER_NUMBERS", "+15555550300")

	cfg, err := ParseFlags([]string{noEnvFile(t)})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.DemoVoterNumbers) != 1 || cfg.DemoVoterNumbers[0] != "+15555550300" {
		t.Errorf("expected demo voter from env, got %v", cfg.DemoVoterNumbers)
	}

	cfg, err = ParseFlags([]string{noEnvFile(t), "-demo-voters", "+15555550301, +15555550302"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.DemoVoterNumbers) != 2 || cfg.DemoVoterNumbers[1] != "+15555550302" {
		t.Errorf("CLI should override env: got %v", cfg.DemoVoterNumbers)
	}
}

func TestParseFlags_DotEnv(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CLIENT_ORGANIZATION=VOTE_AMERICA\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("CLIENT_ORGANIZATION") })

	cfg, err := ParseFlags([]string{"-env-file", path})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ClientOrganization != "VOTE_AMERICA" {
		t.Errorf("expected organization from .env, got %q", cfg.ClientOrganization)
	}
}

func TestParseFlags_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"bad port", map[string]string{"PORT": "abc"}, nil},
		{"bad database type", map[string]string{"DATABASE_TYPE": "mysql"}, nil},
		{"bad region pair", map[string]string{"PUSH_NUMBER_REGIONS": "+1555"}, nil},
		{"bad mode", nil, []string{"-mode", "batch"}},
		{"missing slack token", map[string]string{"SLACK_BOT_ACCESS_TOKEN": ""}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			args := append([]string{noEnvFile(t)}, tt.args...)
			if _, err := ParseFlags(args); err == nil {
				t.Error("expected error")
			}
		})
	}
}
