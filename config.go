package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"todogenie-api/api"
	"todogenie-api/llm"
)

type config struct {
	DatabaseURL    string
	AutoMigrate    bool
	Debug          bool
	ListenAddr     string
	AllowedOrigins []string

	Model llm.Config

	RedisConn   string
	CacheTTL    time.Duration
	LeaseTTL    time.Duration
	LeaseWait   time.Duration
	JWTSecret   string
	JWKSURL     string
	JWTAudience string
	JWTIssuer   string
}

// loadConfig reads the service configuration through getenv.
func loadConfig(getenv func(string) string) (config, error) {
	cfg := config{
		DatabaseURL: getenv("DATABASE_URL"),
		ListenAddr:  ":8080",
		Model: llm.Config{
			APIKey:  getenv("GEMINI_API_KEY"),
			BaseURL: getenv("GEMINI_BASE_URL"),
			Model:   getenv("GEMINI_MODEL"),
		},
		RedisConn:   getenv("REDIS_CONNECTION_STRING"),
		JWTSecret:   getenv("AUTH_JWT_SECRET"),
		JWKSURL:     getenv("AUTH_JWKS_URL"),
		JWTAudience: api.DefaultAudience,
		JWTIssuer:   getenv("AUTH_ISSUER"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("missing DATABASE_URL")
	}
	if v := getenv("FUNCTIONS_CUSTOMHANDLER_PORT"); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := getenv("AUTH_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if (cfg.JWTSecret == "") == (cfg.JWKSURL == "") {
		return cfg, errors.New("exactly one of AUTH_JWT_SECRET and AUTH_JWKS_URL must be set")
	}

	var err error
	if cfg.AutoMigrate, err = parseBool(getenv, "AUTO_MIGRATE"); err != nil {
		return cfg, err
	}
	if cfg.Debug, err = parseBool(getenv, "DEBUG"); err != nil {
		return cfg, err
	}

	durations := []struct {
		name string
		def  time.Duration
		dst  *time.Duration
	}{
		{"MODEL_TIMEOUT", 60 * time.Second, &cfg.Model.Timeout},
		{"MODEL_RETRY_BACKOFF", 250 * time.Millisecond, &cfg.Model.Backoff},
		{"TRANSLATION_CACHE_TTL", time.Hour, &cfg.CacheTTL},
		{"TRANSLATION_LEASE_TTL", 30 * time.Second, &cfg.LeaseTTL},
		{"TRANSLATION_LEASE_WAIT", 5 * time.Second, &cfg.LeaseWait},
	}
	for _, d := range durations {
		*d.dst = d.def
		v := getenv(d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		if parsed <= 0 {
			return cfg, fmt.Errorf("invalid %s: must be greater than zero", d.name)
		}
		*d.dst = parsed
	}

	cfg.AllowedOrigins = api.DefaultAllowedOrigins
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.AllowedOrigins = origins
		}
	}
	return cfg, nil
}

func parseBool(getenv func(string) string, name string) (bool, error) {
	v := getenv(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, nil
}
