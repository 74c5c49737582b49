package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/canon/internal/autok"
	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/matrix"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

const (
	DefaultDBPath   = "~/.canon/canon.db"
	DefaultMode     = canon.ModeGraph
	DefaultLogLevel = "info"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath  string
	CLIDBPath   string
	CLIMode     string
	CLILogLevel string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath   ResolvedValue `json:"db_path"`
	Mode     ResolvedValue `json:"default_mode"`
	LogLevel ResolvedValue `json:"log_level"`

	AutoK  AutoKConfig  `json:"auto_k"`
	Matrix MatrixConfig `json:"matrix"`
}

// AutoKConfig mirrors the auto_k block of the config file.
type AutoKConfig struct {
	MinK          int  `json:"min_k,omitempty" yaml:"min_k"`
	MaxK          int  `json:"max_k,omitempty" yaml:"max_k"`
	ReferenceRuns int  `json:"reference_runs,omitempty" yaml:"reference_runs"`
	Gap           bool `json:"gap,omitempty" yaml:"gap"`
}

// MatrixConfig mirrors the matrix block of the config file.
type MatrixConfig struct {
	NormalizeWithinPlotPoint bool               `json:"normalize_within_plot_point,omitempty" yaml:"normalize_within_plot_point"`
	CollaboratorWeights      map[string]float64 `json:"collaborator_weights,omitempty" yaml:"collaborator_weights"`
}

type fileConfig struct {
	DBPath      string       `yaml:"db_path"`
	LogLevel    string       `yaml:"log_level"`
	DefaultMode string       `yaml:"default_mode"`
	AutoK       AutoKConfig  `yaml:"auto_k"`
	Matrix      MatrixConfig `yaml:"matrix"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".canon", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("CANON_CONFIG"))
	}
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		DBPath:     ResolvedValue{Value: DefaultDBPath, Source: SourceDefault, From: "built-in default"},
		Mode:       ResolvedValue{Value: string(DefaultMode), Source: SourceDefault, From: "built-in default"},
		LogLevel:   ResolvedValue{Value: DefaultLogLevel, Source: SourceDefault, From: "built-in default"},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.Mode, cfg.DefaultMode, SourceConfig, path)
		apply(&out.LogLevel, cfg.LogLevel, SourceConfig, path)
		out.AutoK = cfg.AutoK
		out.Matrix = cfg.Matrix
	}

	applyEnv(&out.DBPath, "CANON_DB")
	applyEnv(&out.Mode, "CANON_MODE")
	applyEnv(&out.LogLevel, "CANON_LOG_LEVEL")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.Mode, opts.CLIMode, SourceCLI, "--mode")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")

	out.DBPath.Value = expandUserPath(out.DBPath.Value)

	if _, err := canon.ParseMode(out.Mode.Value); err != nil {
		return out, fmt.Errorf("default_mode from %s: %w", out.Mode.Source, err)
	}
	if _, err := parseLevel(out.LogLevel.Value); err != nil {
		return out, fmt.Errorf("log_level from %s: %w", out.LogLevel.Source, err)
	}
	for name, w := range out.Matrix.CollaboratorWeights {
		if w < 0 {
			return out, fmt.Errorf("matrix.collaborator_weights[%s]: weight must be non-negative (got %s)",
				name, strconv.FormatFloat(w, 'g', -1, 64))
		}
	}
	return out, nil
}

// CanonMode returns the resolved default canonicalization mode.
func (r ResolvedConfig) CanonMode() canon.Mode {
	mode, err := canon.ParseMode(r.Mode.Value)
	if err != nil {
		return DefaultMode
	}
	return mode
}

// SlogLevel returns the resolved log level.
func (r ResolvedConfig) SlogLevel() slog.Level {
	level, err := parseLevel(r.LogLevel.Value)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// AutoKOptions returns detector options from the auto_k block.
func (r ResolvedConfig) AutoKOptions() autok.Options {
	return autok.Options{
		MinK:          r.AutoK.MinK,
		MaxK:          r.AutoK.MaxK,
		Gap:           r.AutoK.Gap,
		ReferenceRuns: r.AutoK.ReferenceRuns,
	}
}

// MatrixOptions returns assignment matrix options from the matrix block.
func (r ResolvedConfig) MatrixOptions() matrix.AssignmentOptions {
	var weights map[string]float64
	if len(r.Matrix.CollaboratorWeights) > 0 {
		weights = make(map[string]float64, len(r.Matrix.CollaboratorWeights))
		for k, v := range r.Matrix.CollaboratorWeights {
			weights[k] = v
		}
	}
	return matrix.AssignmentOptions{
		CollaboratorWeights:      weights,
		NormalizeWithinPlotPoint: r.Matrix.NormalizeWithinPlotPoint,
	}
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
	return level, nil
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
