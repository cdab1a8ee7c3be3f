package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"mail-relay-bot/internal/models"

	"gopkg.in/yaml.v2"
)

const (
	DefaultRefreshTime = 5 * time.Second
	DefaultMailBox     = "INBOX"
	DefaultChannel     = "channel_mails"
	DefaultArchiveDSN  = "data/data.db"
	DefaultListen      = ":5000"
	DefaultSendRate    = 25
	DefaultSendBurst   = 1
	DefaultAccessToken = "123"

	WatermarkRedis  = "redis"
	WatermarkSQL    = "sql"
	WatermarkMemory = "memory"

	TransportRedis  = "redis"
	TransportMemory = "memory"
)

// Load reads the configuration from the specified YAML file, applies environment
// overrides and defaults, and returns a validated Config struct
func Load(filepath string) (*models.Config, error) {
	configFile, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := yaml.Unmarshal(configFile, &config); err != nil {
		return nil, err
	}

	applyEnv(&config, os.LookupEnv)
	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv lets deployment environments override secrets and endpoints without editing the file
func applyEnv(cfg *models.Config, lookup lookupFunc) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set("MAIL_IMAP_SERVER", &cfg.Email.Imap)
	set("MAIL_USERNAME", &cfg.Email.Login)
	set("MAIL_PASSWORD", &cfg.Email.Password)
	set("BOT_TOKEN", &cfg.Telegram.Token)
	set("ACCESS_TOKEN", &cfg.Telegram.AccessToken)
	set("BOT_WEBAPP_URL", &cfg.Telegram.WebAppURL)
	set("ARCHIVE_DSN", &cfg.Archive.DSN)

	if host, ok := lookup("REDIS_HOST"); ok && host != "" {
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = net.JoinHostPort(host, "6379")
		}
		cfg.Redis.Addr = host
	}
}

func applyDefaults(cfg *models.Config) {
	if cfg.Email.RefreshTime <= 0 {
		cfg.Email.RefreshTime = DefaultRefreshTime
	}
	if cfg.Email.MailBox == "" {
		cfg.Email.MailBox = DefaultMailBox
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = DefaultChannel
	}
	if cfg.Watermark.Backend == "" {
		cfg.Watermark.Backend = WatermarkRedis
	}
	cfg.Watermark.Backend = strings.ToLower(strings.TrimSpace(cfg.Watermark.Backend))
	if cfg.Relay.Transport == "" {
		cfg.Relay.Transport = TransportRedis
	}
	cfg.Relay.Transport = strings.ToLower(strings.TrimSpace(cfg.Relay.Transport))
	if cfg.Archive.DSN == "" {
		cfg.Archive.DSN = DefaultArchiveDSN
	}
	if cfg.Telegram.AccessToken == "" {
		cfg.Telegram.AccessToken = DefaultAccessToken
	}
	if cfg.Telegram.SendRate <= 0 {
		cfg.Telegram.SendRate = DefaultSendRate
	}
	if cfg.Telegram.SendBurst <= 0 {
		cfg.Telegram.SendBurst = DefaultSendBurst
	}
	cfg.Telegram.WebAppURL = strings.TrimRight(cfg.Telegram.WebAppURL, "/")
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = DefaultListen
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Senders == nil {
		cfg.Senders = map[string]string{}
	}
}

// Validate reports configuration that cannot possibly work
func Validate(cfg *models.Config) error {
	if cfg.Email.Imap == "" {
		return fmt.Errorf("email.imap is required")
	}
	if cfg.Email.Login == "" {
		return fmt.Errorf("email.login is required")
	}
	switch cfg.Watermark.Backend {
	case WatermarkRedis, WatermarkSQL, WatermarkMemory:
	default:
		return fmt.Errorf("unknown watermark backend %q", cfg.Watermark.Backend)
	}
	switch cfg.Relay.Transport {
	case TransportRedis, TransportMemory:
	default:
		return fmt.Errorf("unknown relay transport %q", cfg.Relay.Transport)
	}
	return nil
}
