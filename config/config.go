package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Twilio    TwilioConfig    `yaml:"twilio"`
	Pipedrive PipedriveConfig `yaml:"pipedrive"`
	Slack     SlackConfig     `yaml:"slack"`
	Media     MediaConfig     `yaml:"media"`
	Store     StoreConfig     `yaml:"store"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Users     []User          `yaml:"users"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type TwilioConfig struct {
	APIURL     string `yaml:"api_url"`
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

type PipedriveConfig struct {
	APIURL   string `yaml:"api_url"`
	APIToken string `yaml:"api_token"`
	NoteTag  string `yaml:"note_tag"`
}

type SlackConfig struct {
	APIURL            string   `yaml:"api_url"`
	BotToken          string   `yaml:"bot_token"`
	ChannelID         string   `yaml:"channel_id"`
	WebhookURL        string   `yaml:"webhook_url"`
	AllowedWorkspaces []string `yaml:"allowed_workspaces"`
}

type MediaConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

type StoreConfig struct {
	MaxMessages int `yaml:"max_messages"`
}

type DedupeConfig struct {
	RetentionMinutes int `yaml:"retention_minutes"`
	SweepSeconds     int `yaml:"sweep_seconds"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

var GlobalConfig *Config

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Secrets can be kept out of the file as ${VAR} references.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Auth.TokenExpireHours == 0 {
		cfg.Auth.TokenExpireHours = 24
	}
	if cfg.Twilio.APIURL == "" {
		cfg.Twilio.APIURL = "https://api.twilio.com"
	}
	if cfg.Pipedrive.APIURL == "" {
		cfg.Pipedrive.APIURL = "https://api.pipedrive.com/v1"
	}
	if cfg.Pipedrive.NoteTag == "" {
		cfg.Pipedrive.NoteTag = "SMS:"
	}
	if cfg.Slack.APIURL == "" {
		cfg.Slack.APIURL = "https://slack.com/api"
	}
	if cfg.Media.ExpireDays == 0 {
		cfg.Media.ExpireDays = 7
	}
	if cfg.Store.MaxMessages == 0 {
		cfg.Store.MaxMessages = 500
	}
	if cfg.Dedupe.RetentionMinutes == 0 {
		cfg.Dedupe.RetentionMinutes = 10
	}
	if cfg.Dedupe.SweepSeconds == 0 {
		cfg.Dedupe.SweepSeconds = 60
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}

// WorkspaceAllowed reports whether a chat workspace ID is on the allow-list.
func (c *Config) WorkspaceAllowed(teamID string) bool {
	for _, id := range c.Slack.AllowedWorkspaces {
		if id == teamID {
			return true
		}
	}
	return false
}
