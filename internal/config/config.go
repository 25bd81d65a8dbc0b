// Package config provides centralized configuration management using Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultModel is used when no model is configured anywhere. The effective
// model is resolved once at process start and passed into the loop
// explicitly; core code never reads the environment.
const DefaultModel = "anthropic/claude-sonnet-4"

// Config holds all configuration values for cheetah.
type Config struct {
	Model      string `mapstructure:"model" yaml:"model"`
	Agent      string `mapstructure:"agent" yaml:"agent"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	Iterations int    `mapstructure:"iterations" yaml:"iterations"`
	Sandbox    bool   `mapstructure:"sandbox" yaml:"sandbox"`
	Spec       string `mapstructure:"spec" yaml:"spec"`
	Template   string `mapstructure:"template" yaml:"template"`
}

// Load loads configuration with full precedence:
// CLI flags > ENV vars > project config > XDG global config > defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("cheetah")

	v.SetDefault("model", DefaultModel)
	v.SetDefault("agent", "openrouter")
	v.SetDefault("data_dir", ".cheetah")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("iterations", 0)
	v.SetDefault("sandbox", true)
	v.SetDefault("spec", "")
	v.SetDefault("template", "")

	v.SetEnvPrefix("CHEETAH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit ENV bindings for better bool/int parsing. The API key also
	// honors the provider's conventional variable.
	bindings := map[string][]string{
		"model":      {"CHEETAH_MODEL", "OPENROUTER_MODEL"},
		"agent":      {"CHEETAH_AGENT"},
		"api_key":    {"CHEETAH_API_KEY", "OPENROUTER_API_KEY"},
		"data_dir":   {"CHEETAH_DATA_DIR"},
		"log_level":  {"CHEETAH_LOG_LEVEL"},
		"log_file":   {"CHEETAH_LOG_FILE"},
		"iterations": {"CHEETAH_ITERATIONS"},
		"sandbox":    {"CHEETAH_SANDBOX"},
		"spec":       {"CHEETAH_SPEC"},
		"template":   {"CHEETAH_TEMPLATE"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", key, err)
		}
	}

	// Load global config first (if exists)
	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	// Merge project config on top (if exists)
	projectPath := ProjectPath()
	if fileExists(projectPath) {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Exists returns true if any config file exists (global or project).
func Exists() bool {
	return fileExists(GlobalPath()) || fileExists(ProjectPath())
}

// GlobalPath returns the XDG global config path:
// $XDG_CONFIG_HOME/cheetah/cheetah.yml or ~/.config/cheetah/cheetah.yml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cheetah", "cheetah.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cheetah", "cheetah.yml")
}

// ProjectPath returns the project-local config path in the current working
// directory.
func ProjectPath() string {
	return "cheetah.yml"
}

// WriteProject writes the config to the project-local location. The API key
// is never written to disk.
func WriteProject(cfg *Config) error {
	clean := *cfg
	clean.APIKey = ""

	data, err := yaml.Marshal(&clean)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(ProjectPath(), data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
