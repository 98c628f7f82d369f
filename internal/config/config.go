package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

type Config struct {
	ServerAddr     string
	DatabaseDriver string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
}

// Load reads configuration from an optional yaml file and LANCHAT_*
// environment variables. The signing secret is required and must be
// base64 encoded.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server.addr", "0.0.0.0:3030")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "file:lanchat.db?_foreign_keys=on")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetEnvPrefix("LANCHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(envKeyReplacer)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	secret := v.GetString("auth.signing_secret")
	if secret == "" {
		return nil, errors.New("signing secret cannot be empty")
	}

	signingKey, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	cfg := &Config{
		ServerAddr:     v.GetString("server.addr"),
		DatabaseDriver: v.GetString("database.driver"),
		DatabaseDSN:    v.GetString("database.dsn"),
		SigningKey:     signingKey,
		AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
	}

	if cfg.ServerAddr == "" {
		return nil, errors.New("server address cannot be empty")
	}
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("database DSN cannot be empty")
	}

	return cfg, nil
}
