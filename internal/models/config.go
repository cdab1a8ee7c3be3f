package models

import "time"

// Config represents the application configuration
type Config struct {
	Email     EmailConfig       `yaml:"email"`
	Redis     RedisConfig       `yaml:"redis"`
	Relay     RelayConfig       `yaml:"relay"`
	Watermark WatermarkConfig   `yaml:"watermark"`
	Archive   ArchiveConfig     `yaml:"archive"`
	Telegram  TelegramConfig    `yaml:"telegram"`
	HTTP      HTTPConfig        `yaml:"http"`
	Log       LogConfig         `yaml:"log"`
	Senders   map[string]string `yaml:"senders"`
}

// EmailConfig represents IMAP email configuration
type EmailConfig struct {
	Imap        string        `yaml:"imap"`
	Login       string        `yaml:"login"`
	Password    string        `yaml:"password"`
	RefreshTime time.Duration `yaml:"refreshTime"`
	MailBox     string        `yaml:"mailbox"`
}

// RedisConfig configures the relay channel and the default watermark backend
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// RelayConfig selects the channel between synchronizer and subscriber ("redis" or "memory")
type RelayConfig struct {
	Transport string `yaml:"transport"`
}

// WatermarkConfig selects where the last processed UID is kept ("redis", "sql" or "memory")
type WatermarkConfig struct {
	Backend string `yaml:"backend"`
}

// ArchiveConfig holds the archive DSN: a SQLite path or a postgres:// URL
type ArchiveConfig struct {
	DSN string `yaml:"dsn"`
}

// TelegramConfig represents the notification bot configuration
type TelegramConfig struct {
	Token       string  `yaml:"token"`
	AccessToken string  `yaml:"accessToken"`
	WebAppURL   string  `yaml:"webappURL"`
	SendRate    float64 `yaml:"sendRate"`
	SendBurst   int     `yaml:"sendBurst"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}
