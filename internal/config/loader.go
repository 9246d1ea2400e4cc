package config

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultFileName is the per-project configuration file.
	DefaultFileName = "gatehouse.yaml"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Load assembles configuration for the project rooted at root.
//
// Precedence (highest to lowest):
//  1. GATEHOUSE_-prefixed environment variables (GATEHOUSE_ROUTER_CONFIDENCE_FLOOR, ...)
//  2. gatehouse.yaml in the project root (or the explicit configPath)
//  3. The embedded default pipeline
//
// The configPath parameter overrides the default file location; pass "" to
// use <root>/gatehouse.yaml.
func Load(root, configPath string) (*Config, error) {
	if root == "" {
		return nil, fmt.Errorf("project root is required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	k := koanf.New(".")

	// Embedded defaults first.
	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load embedded defaults: %w", err)
	}

	if configPath == "" {
		configPath = filepath.Join(absRoot, DefaultFileName)
	}

	// Project file, if present.
	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("config file %s is not a regular file", configPath)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
		}
		if info.Mode().Perm()&0o077 != 0 {
			return nil, fmt.Errorf("config file %s must not be group/world accessible (found %04o, want 0600)", configPath, info.Mode().Perm())
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment overrides. GATEHOUSE_ROUTER_CONFIDENCE_FLOOR maps to
	// router.confidence_floor: the first underscore after the prefix
	// separates the section, the rest stays a field name.
	if err := k.Load(env.Provider("GATEHOUSE_", ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, "GATEHOUSE_"))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Project.Root = absRoot
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// StatePath resolves the durable state directory against the project root.
func (c *Config) StatePath() string {
	if filepath.IsAbs(c.Project.StateDir) {
		return c.Project.StateDir
	}
	return filepath.Join(c.Project.Root, c.Project.StateDir)
}
