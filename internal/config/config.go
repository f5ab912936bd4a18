// Package config provides hierarchical configuration for vetloop using
// koanf. Values are loaded with priority: environment variables > project
// config (.vetloop/config.yml) > user config (~/.config/vetloop/config.yml)
// > defaults. Legacy JSON project configs are still read, with a warning.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides, e.g. VETLOOP_MAX_LOOPS.
const EnvPrefix = "VETLOOP_"

// Default paths relative to the project root.
const (
	ProjectDir        = ".vetloop"
	projectConfigName = "config.yml"
	legacyConfigName  = "config.json"
)

// VerifyCommands maps tiers to the verification commands they run.
type VerifyCommands struct {
	// Light runs the fast signal set (lint, compile).
	Light string `koanf:"light"`
	// Standard adds the unit test suite.
	Standard string `koanf:"standard"`
	// Thorough adds integration checks and deep analysis.
	Thorough string `koanf:"thorough"`
}

// AnomalyConfig tunes the statistical monitor.
type AnomalyConfig struct {
	WindowSessions int     `koanf:"window_sessions"`
	ZThreshold     float64 `koanf:"z_threshold"`
	TrendFactor    float64 `koanf:"trend_factor"`
}

// AdvisorConfig controls how suspended sessions get a resume/abort decision.
type AdvisorConfig struct {
	// Mode is "interactive" (prompt on the terminal), "ai" (ask the model),
	// or "none" (always suspend and exit).
	Mode string `koanf:"mode"`
	// Model is the model used in ai mode.
	Model string `koanf:"model"`
	// RequestsPerMinute rate-limits ai mode.
	RequestsPerMinute int `koanf:"requests_per_minute"`
}

// Configuration is the resolved vetloop configuration.
type Configuration struct {
	// DBPath is the SQLite database location. Default: .vetloop/vetloop.db.
	DBPath string `koanf:"db_path"`

	// MaxLoops bounds the verify/fix loop. Default 1: one verification, one
	// fix attempt, one re-verification. Values below 1 are clamped to 1.
	MaxLoops int `koanf:"max_loops"`

	// SecurityKeywords extends the built-in security keyword set. The
	// built-ins can never be removed.
	SecurityKeywords []string `koanf:"security_keywords"`

	// Layers maps layer names to path prefixes for the changeset collector.
	Layers map[string][]string `koanf:"layers"`

	// ArchPaths are path prefixes that flag a change as
	// architecture-affecting when touched.
	ArchPaths []string `koanf:"arch_paths"`

	// FingerprintInputs are the files hashed into the profile cache
	// fingerprint, relative to the project root.
	FingerprintInputs []string `koanf:"fingerprint_inputs"`

	// SourceSuffix is counted across the tree as a fingerprint input
	// (default ".go").
	SourceSuffix string `koanf:"source_suffix"`

	// ParallelLayers caps concurrent per-layer verification workers.
	ParallelLayers int `koanf:"parallel_layers"`

	Verify  VerifyCommands `koanf:"verify"`
	Fix     string         `koanf:"fix"`
	Anomaly AnomalyConfig  `koanf:"anomaly"`
	Advisor AdvisorConfig  `koanf:"advisor"`

	// MinToolVersion is the minimum version of the external verify tool the
	// doctor command accepts, as a semver string like "v1.2.0".
	MinToolVersion string `koanf:"min_tool_version"`
}

// GetDefaults returns the default configuration values as koanf keys.
func GetDefaults() map[string]any {
	return map[string]any{
		"db_path":   filepath.Join(ProjectDir, "vetloop.db"),
		"max_loops": 1,
		"fingerprint_inputs": []string{
			"go.mod", "go.sum", filepath.Join(ProjectDir, projectConfigName),
		},
		"source_suffix":   ".go",
		"parallel_layers": 4,
		"verify": map[string]any{
			"light":    "go vet ./...",
			"standard": "go test ./...",
			"thorough": "go test -race -count=1 ./...",
		},
		"anomaly": map[string]any{
			"window_sessions": 5,
			"z_threshold":     2.0,
			"trend_factor":    1.5,
		},
		"advisor": map[string]any{
			"mode":                "interactive",
			"model":               "claude-sonnet-4-5-20250929",
			"requests_per_minute": 10,
		},
	}
}

// LoadOptions configures loading.
type LoadOptions struct {
	// ProjectConfigPath overrides the project config path.
	ProjectConfigPath string
	// WarningWriter receives warnings (default os.Stderr).
	WarningWriter io.Writer
	// SkipWarnings suppresses warnings.
	SkipWarnings bool
}

// Load loads configuration with the default options.
func Load(projectConfigPath string) (*Configuration, error) {
	return LoadWithOptions(LoadOptions{ProjectConfigPath: projectConfigPath})
}

// LoadWithOptions loads configuration from defaults, user config, project
// config, and environment, in increasing priority.
func LoadWithOptions(opts LoadOptions) (*Configuration, error) {
	k := koanf.New(".")
	warningWriter := opts.WarningWriter
	if warningWriter == nil {
		warningWriter = os.Stderr
	}

	for key, value := range GetDefaults() {
		k.Set(key, value)
	}

	if userPath, err := UserConfigPath(); err == nil && fileExists(userPath) {
		if err := k.Load(file.Provider(userPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading user config %s: %w", userPath, err)
		}
	}

	if err := loadProjectConfig(k, opts.ProjectConfigPath, warningWriter, opts.SkipWarnings); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment config: %w", err)
	}

	var cfg Configuration
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.DBPath = expandHomePath(cfg.DBPath)
	if cfg.MaxLoops < 1 {
		cfg.MaxLoops = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadProjectConfig prefers YAML and falls back to legacy JSON with a
// warning.
func loadProjectConfig(k *koanf.Koanf, customPath string, warningWriter io.Writer, skipWarnings bool) error {
	yamlPath := ProjectConfigPath()
	if customPath != "" {
		yamlPath = customPath
	}
	legacyPath := filepath.Join(ProjectDir, legacyConfigName)

	switch {
	case fileExists(yamlPath):
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			return fmt.Errorf("loading project config %s: %w", yamlPath, err)
		}
	case fileExists(legacyPath):
		if err := k.Load(file.Provider(legacyPath), json.Parser()); err != nil {
			return fmt.Errorf("loading legacy project config %s: %w", legacyPath, err)
		}
		if !skipWarnings {
			fmt.Fprintf(warningWriter, "Warning: using deprecated JSON config at %s; convert it to %s\n", legacyPath, yamlPath)
		}
	}
	return nil
}

// Validate rejects configurations that cannot drive a session.
func (c *Configuration) Validate() error {
	switch c.Advisor.Mode {
	case "", "interactive", "ai", "none":
	default:
		return fmt.Errorf("invalid advisor mode %q (want interactive, ai, or none)", c.Advisor.Mode)
	}
	if c.ParallelLayers < 0 {
		return fmt.Errorf("parallel_layers must not be negative, got %d", c.ParallelLayers)
	}
	if c.Anomaly.ZThreshold < 0 {
		return fmt.Errorf("anomaly z_threshold must not be negative, got %g", c.Anomaly.ZThreshold)
	}
	return nil
}

// CommandForTier returns the verify command for a tier name as produced by
// Tier.String(). Unknown names fall back to the thorough command.
func (c *Configuration) CommandForTier(tier string) string {
	switch tier {
	case "LIGHT":
		return c.Verify.Light
	case "STANDARD":
		return c.Verify.Standard
	default:
		return c.Verify.Thorough
	}
}

// UserConfigPath returns the XDG-style user config path.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "vetloop", projectConfigName), nil
}

// ProjectConfigPath returns the project config path relative to the working
// directory.
func ProjectConfigPath() string {
	return filepath.Join(ProjectDir, projectConfigName)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// envTransform converts VETLOOP_MAX_LOOPS to max_loops. Nested keys use a
// double underscore: VETLOOP_ADVISOR__MODE -> advisor.mode.
func envTransform(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
