package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	// server
	ListenAddr  string `yaml:"listen_addr"`
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	SessionTTLSec  int `yaml:"session_ttl_sec"`
	FinishGraceSec int `yaml:"finish_grace_sec"`
	BoardSize      int `yaml:"board_size"`

	// shared rules
	MaxStrikes int `yaml:"max_strikes"`

	// client
	ServerURL       string `yaml:"server_url"`
	UserID          string `yaml:"user_id"`
	PollIntervalMS  int    `yaml:"poll_interval_ms"`
	QuestionFile    string `yaml:"question_file"`
	MessageOverride string `yaml:"message_override_dir"`
	HTTPRetries     int    `yaml:"http_retries"`
}

// Load builds the config from defaults, then the YAML file named by
// DUEL_CONFIG_FILE if set, then environment variables.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:     ":8080",
		SessionTTLSec:  86400,
		FinishGraceSec: 10,
		BoardSize:      10,
		MaxStrikes:     3,
		ServerURL:      "http://127.0.0.1:8080",
		PollIntervalMS: 2000,
		HTTPRetries:    3,
	}

	if path := strings.TrimSpace(os.Getenv("DUEL_CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.ServerURL, "DUEL_SERVER_URL")
	setString(&cfg.UserID, "DUEL_USER_ID")
	setString(&cfg.QuestionFile, "QUESTION_FILE")
	setString(&cfg.MessageOverride, "MESSAGE_OVERRIDE_DIR")

	setPositive(&cfg.SessionTTLSec, "SESSION_TTL_SEC")
	setPositive(&cfg.FinishGraceSec, "FINISH_GRACE_SEC")
	setPositive(&cfg.BoardSize, "LEADERBOARD_SIZE")
	setPositive(&cfg.MaxStrikes, "MAX_STRIKES")
	setPositive(&cfg.PollIntervalMS, "POLL_INTERVAL_MS")
	setPositive(&cfg.HTTPRetries, "HTTP_RETRIES")

	return cfg, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setPositive(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

// RequireServer checks the fields duel-server cannot start without.
func (c *AppConfig) RequireServer() error {
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR is required")
	}
	return nil
}

// RequireClient checks the fields duel-client cannot start without.
func (c *AppConfig) RequireClient() error {
	if c.ServerURL == "" {
		return errors.New("DUEL_SERVER_URL is required")
	}
	if c.UserID == "" {
		return errors.New("DUEL_USER_ID is required")
	}
	return nil
}

func (c *AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSec) * time.Second
}

func (c *AppConfig) FinishGrace() time.Duration {
	return time.Duration(c.FinishGraceSec) * time.Second
}

func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}
