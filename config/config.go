// Package config defines the Dispatch application configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Dispatch configuration.
type Config struct {
	Server   ServerConfig `json:"server" yaml:"server"`
	Auth     AuthConfig   `json:"auth" yaml:"auth"`
	Agents   []AgentSeed  `json:"agents" yaml:"agents"`
	DBPath   string       `json:"db_path" yaml:"db_path"`
	SkillDir string       `json:"skill_dir" yaml:"skill_dir"`
	MinScore float64      `json:"min_score" yaml:"min_score"` // minimum acceptance score, 0 accepts any best
	LogLevel string       `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":9070"
}

// AuthConfig controls dashboard authentication.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser string `json:"admin_user" yaml:"admin_user"`
	AdminPass string `json:"admin_pass" yaml:"admin_pass"` // bcrypt hash
}

// AgentSeed defines one agent of the seed roster, registered idempotently at
// startup.
type AgentSeed struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Skills   []string `json:"skills" yaml:"skills"`
	Capacity int      `json:"capacity" yaml:"capacity"`
}

// DefaultConfig returns a config with sensible defaults, including the
// default five-agent roster.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9070",
		},
		Auth: AuthConfig{
			AdminUser: "admin",
		},
		DBPath:   "./data/dispatch.db",
		SkillDir: "./skills",
		LogLevel: "info",
		Agents: []AgentSeed{
			{ID: "healer", Name: "Healer", Skills: []string{"debugging", "troubleshooting"}, Capacity: 5},
			{ID: "guardian", Name: "Guardian", Skills: []string{"monitoring", "security"}, Capacity: 10},
			{ID: "builder", Name: "Builder", Skills: []string{"backend", "api", "database"}, Capacity: 4},
			{ID: "artisan", Name: "Artisan", Skills: []string{"frontend", "ui", "design"}, Capacity: 4},
			{ID: "sage", Name: "Sage", Skills: []string{"architecture", "review", "planning"}, Capacity: 3},
		},
	}
}

// Load reads a YAML config file and returns the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
