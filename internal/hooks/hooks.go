// Package hooks runs optional user-defined commands around the session
// loop. Hooks are configured in a .cheetah.hooks.yml file next to the
// project; a missing file simply disables them.
package hooks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/winwintangelo/cheetah-autonomous-coding/internal/logger"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the hooks configuration file.
const ConfigFileName = ".cheetah.hooks.yml"

// DefaultTimeout is the default hook execution timeout in seconds.
const DefaultTimeout = 30

// Config is the top-level hooks configuration.
type Config struct {
	Version int         `yaml:"version"`
	Hooks   HooksConfig `yaml:"hooks"`
}

// HooksConfig contains all hook configurations.
type HooksConfig struct {
	PreSession *HookConfig `yaml:"pre_session"`
}

// HookConfig defines a single hook's configuration.
type HookConfig struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout"` // seconds, default 30
}

// Variables holds template variables expanded in hook commands.
type Variables struct {
	ProjectDir string
	Iteration  string
}

// LoadConfig loads the hooks configuration from dir. Returns nil if the
// config file doesn't exist; errors only if the file exists but cannot be
// parsed.
func LoadConfig(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("No hooks config found at %s", configPath)
			return nil, nil
		}
		return nil, fmt.Errorf("reading hooks config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing hooks config: %w", err)
	}

	logger.Debug("Loaded hooks config from %s (version: %d)", configPath, cfg.Version)
	return &cfg, nil
}

// Execute runs a hook command with variable expansion and returns its
// combined output. The command runs through sh -c in the project directory.
func Execute(ctx context.Context, hook *HookConfig, vars Variables) (string, error) {
	if hook == nil || hook.Command == "" {
		return "", nil
	}

	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	command := strings.ReplaceAll(hook.Command, "{{project_dir}}", vars.ProjectDir)
	command = strings.ReplaceAll(command, "{{iteration}}", vars.Iteration)

	logger.Debug("Running pre-session hook: %s", command)
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = vars.ProjectDir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("hook timed out after %ds", timeout)
		}
		return "", fmt.Errorf("hook failed: %w (output: %s)", err, strings.TrimSpace(out.String()))
	}

	return strings.TrimSpace(out.String()), nil
}
