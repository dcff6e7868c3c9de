package config

import (
	"encoding/base64"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerAddr     string   `envconfig:"CONVERSE_ADDR" default:"localhost:8000"`
	DatabaseDSN    string   `envconfig:"CONVERSE_DB_DSN"`
	SigningSecret  string   `envconfig:"CONVERSE_SIGNING_SECRET"`
	AllowedOrigins []string `envconfig:"CONVERSE_ALLOWED_ORIGINS"`
	UploadDir      string   `envconfig:"CONVERSE_UPLOAD_DIR" default:"uploads"`

	// SigningKey is the decoded form of SigningSecret.
	SigningKey []byte `ignored:"true"`
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}

	return key, nil
}

func (c *Config) validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}

	key, err := decodeSigningSecret(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = key

	return nil
}

// NewConfig builds a config from explicit values, typically flags.
func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, uploadDir string) (*Config, error) {
	cfg := &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		SigningSecret:  base64Secret,
		AllowedOrigins: allowedOrigins,
		UploadDir:      uploadDir,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromEnv builds a config from CONVERSE_* environment variables.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
