package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/schilltyler/capstone-0/internal/auth"
	"github.com/schilltyler/capstone-0/internal/protocol/session"
)

// ControllerConfig is the controlctl file format.
type ControllerConfig struct {
	Listen       string   `toml:"listen"`
	Tokens       []string `toml:"auth_tokens"`
	OnConnect    string   `toml:"oncon"`
	RCFile       string   `toml:"rc"`
	DownloadsDir string   `toml:"downloads_dir"`
}

func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Listen:       "0.0.0.0:4444",
		DownloadsDir: "./downloads",
	}
}

func LoadControllerConfig(path string) (ControllerConfig, error) {
	cfg := DefaultControllerConfig()
	if err := loadToml(path, &cfg); err != nil {
		return ControllerConfig{}, err
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultControllerConfig().Listen
	}
	if strings.TrimSpace(cfg.DownloadsDir) == "" {
		cfg.DownloadsDir = DefaultControllerConfig().DownloadsDir
	}
	if err := ValidateControllerConfig(cfg); err != nil {
		return ControllerConfig{}, err
	}
	return cfg, nil
}

func ValidateControllerConfig(cfg ControllerConfig) error {
	if !strings.Contains(cfg.Listen, ":") {
		return fmt.Errorf("controller config listen must be host:port, got %q", cfg.Listen)
	}
	for i, raw := range cfg.Tokens {
		if _, err := session.ParseToken(raw); err != nil {
			return fmt.Errorf("auth_tokens[%d] invalid: %w", i, err)
		}
	}
	return nil
}

// SessionConfig applies the file's tokens to base. With more than one token
// the controller accepts any of them.
func (c ControllerConfig) SessionConfig(base session.Config) (session.Config, error) {
	if len(c.Tokens) == 0 {
		return base, nil
	}
	accepted := make(auth.AnyToken, 0, len(c.Tokens))
	for i, raw := range c.Tokens {
		token, err := session.ParseToken(raw)
		if err != nil {
			return session.Config{}, fmt.Errorf("auth_tokens[%d] invalid: %w", i, err)
		}
		if i == 0 {
			base.Token = token
		}
		accepted = append(accepted, auth.StaticToken{Token: token[:]})
	}
	base.Validator = accepted
	return base, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}
