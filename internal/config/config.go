package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr string

	RedisURL    string
	DatabaseURL string

	// Identity provider. When AuthBaseURL is empty the static token map is
	// used instead (development / tests).
	AuthBaseURL      string
	AuthStaticTokens map[string]string // token -> user id

	VotingWindow   time.Duration
	VotingMaxVotes int

	MsgOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:       ":8080",
		VotingWindow:   24 * time.Hour,
		VotingMaxVotes: 20,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.AuthBaseURL = strings.TrimSpace(os.Getenv("AUTH_BASE_URL"))
	cfg.MsgOverrideDir = strings.TrimSpace(os.Getenv("MSG_OVERRIDE_DIR"))

	// AUTH_STATIC_TOKENS=token1:user1,token2:user2
	if v := strings.TrimSpace(os.Getenv("AUTH_STATIC_TOKENS")); v != "" {
		cfg.AuthStaticTokens = make(map[string]string)
		for _, pair := range strings.Split(v, ",") {
			parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
			if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
				cfg.AuthStaticTokens[parts[0]] = parts[1]
			}
		}
	}

	if v := strings.TrimSpace(os.Getenv("VOTING_WINDOW_HOURS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.VotingWindow = time.Duration(n) * time.Hour
		}
	}
	if v := strings.TrimSpace(os.Getenv("VOTING_MAX_VOTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.VotingMaxVotes = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.AuthBaseURL == "" && len(cfg.AuthStaticTokens) == 0 {
		return nil, errors.New("AUTH_BASE_URL or AUTH_STATIC_TOKENS is required")
	}

	return cfg, nil
}
