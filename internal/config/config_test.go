package config

import (
	"os"
	"testing"
	"time"

	"mail-relay-bot/internal/models"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Remove(tmpFile.Name())
	})

	if _, err := tmpFile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	_ = tmpFile.Close()
	return tmpFile.Name()
}

func TestLoad(t *testing.T) {
	yamlContent := `email:
  imap: "imap.test.com:993"
  login: "test@example.com"
  password: "testpass"
  refreshTime: 30s
  mailbox: "INBOX"
redis:
  addr: "redis:6379"
  channel: "mails"
relay:
  transport: " Memory "
watermark:
  backend: SQL
archive:
  dsn: "/var/lib/relay/data.db"
telegram:
  token: "bot-token"
  accessToken: "secret"
  webappURL: "https://relay.example.com/"
senders:
  app1@example.com: "001 First app"
  app2@example.com: "002 Second app"
`

	cfg, err := Load(writeTempConfig(t, yamlContent))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Email.Imap != "imap.test.com:993" {
		t.Errorf("Expected imap 'imap.test.com:993', got '%s'", cfg.Email.Imap)
	}

	if cfg.Email.RefreshTime != 30*time.Second {
		t.Errorf("Expected refreshTime 30s, got %v", cfg.Email.RefreshTime)
	}

	if cfg.Redis.Channel != "mails" {
		t.Errorf("Expected channel 'mails', got '%s'", cfg.Redis.Channel)
	}

	if cfg.Watermark.Backend != WatermarkSQL {
		t.Errorf("Expected watermark backend normalized to 'sql', got '%s'", cfg.Watermark.Backend)
	}

	if cfg.Relay.Transport != TransportMemory {
		t.Errorf("Expected relay transport normalized to 'memory', got '%s'", cfg.Relay.Transport)
	}

	if cfg.Telegram.WebAppURL != "https://relay.example.com" {
		t.Errorf("Expected trailing slash trimmed from webappURL, got '%s'", cfg.Telegram.WebAppURL)
	}

	if len(cfg.Senders) != 2 {
		t.Errorf("Expected 2 sender labels, got %d", len(cfg.Senders))
	}

	if cfg.Senders["app2@example.com"] != "002 Second app" {
		t.Errorf("Expected label '002 Second app', got '%s'", cfg.Senders["app2@example.com"])
	}
}

func TestLoad_Defaults(t *testing.T) {
	yamlContent := `email:
  imap: "imap.test.com:993"
  login: "test@example.com"
`

	cfg, err := Load(writeTempConfig(t, yamlContent))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Email.RefreshTime != DefaultRefreshTime {
		t.Errorf("Expected default refreshTime %v, got %v", DefaultRefreshTime, cfg.Email.RefreshTime)
	}
	if cfg.Email.MailBox != DefaultMailBox {
		t.Errorf("Expected default mailbox %q, got %q", DefaultMailBox, cfg.Email.MailBox)
	}
	if cfg.Redis.Channel != DefaultChannel {
		t.Errorf("Expected default channel %q, got %q", DefaultChannel, cfg.Redis.Channel)
	}
	if cfg.Watermark.Backend != WatermarkRedis {
		t.Errorf("Expected default watermark backend %q, got %q", WatermarkRedis, cfg.Watermark.Backend)
	}
	if cfg.Relay.Transport != TransportRedis {
		t.Errorf("Expected default relay transport %q, got %q", TransportRedis, cfg.Relay.Transport)
	}
	if cfg.Archive.DSN != DefaultArchiveDSN {
		t.Errorf("Expected default archive dsn %q, got %q", DefaultArchiveDSN, cfg.Archive.DSN)
	}
	if cfg.Senders == nil {
		t.Error("Expected empty sender map, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MAIL_IMAP_SERVER": "imap.env.com:993",
		"MAIL_PASSWORD":    "env-pass",
		"REDIS_HOST":       "redis.internal",
		"BOT_TOKEN":        "env-token",
		"ACCESS_TOKEN":     "",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := &models.Config{}
	cfg.Email.Imap = "imap.file.com:993"
	cfg.Telegram.AccessToken = "from-file"

	applyEnv(cfg, lookup)

	if cfg.Email.Imap != "imap.env.com:993" {
		t.Errorf("Expected env imap override, got '%s'", cfg.Email.Imap)
	}
	if cfg.Email.Password != "env-pass" {
		t.Errorf("Expected env password, got '%s'", cfg.Email.Password)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Errorf("Expected REDIS_HOST with default port, got '%s'", cfg.Redis.Addr)
	}
	if cfg.Telegram.AccessToken != "from-file" {
		t.Errorf("Expected empty env value to be ignored, got '%s'", cfg.Telegram.AccessToken)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.Config)
		wantErr bool
	}{
		{name: "Valid", mutate: func(*models.Config) {}, wantErr: false},
		{name: "Missing imap", mutate: func(c *models.Config) { c.Email.Imap = "" }, wantErr: true},
		{name: "Missing login", mutate: func(c *models.Config) { c.Email.Login = "" }, wantErr: true},
		{name: "Unknown backend", mutate: func(c *models.Config) { c.Watermark.Backend = "etcd" }, wantErr: true},
		{name: "Memory backend", mutate: func(c *models.Config) { c.Watermark.Backend = WatermarkMemory }, wantErr: false},
		{name: "Memory transport", mutate: func(c *models.Config) { c.Relay.Transport = TransportMemory }, wantErr: false},
		{name: "Unknown transport", mutate: func(c *models.Config) { c.Relay.Transport = "nats" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &models.Config{}
			cfg.Email.Imap = "imap.test.com:993"
			cfg.Email.Login = "user@test.com"
			cfg.Watermark.Backend = WatermarkRedis
			cfg.Relay.Transport = TransportRedis
			tt.mutate(cfg)

			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
