// Package config loads tool settings and sets up console logging.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables overriding settings.
const EnvPrefix = "HAILOCONV_"

// Settings holds the tool configuration. Per-job options come from the
// archive's JSON document instead.
type Settings struct {
	HWArch       string `koanf:"hw_arch"`
	Engine       string `koanf:"engine"`
	ModelName    string `koanf:"model_name"`
	OutputSuffix string `koanf:"output_suffix"`
	MIMEType     string `koanf:"mime_type"`

	// ScratchDir is the extraction directory, relative to the output directory.
	ScratchDir  string `koanf:"scratch_dir"`
	KeepScratch bool   `koanf:"keep_scratch"`

	// LogFile is the run record file name, relative to the output directory.
	LogFile  string `koanf:"log_file"`
	LogLevel string `koanf:"log_level"`
	// ConsoleLogFile receives a JSON copy of console logging when set.
	ConsoleLogFile string `koanf:"console_log_file"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		HWArch:       "hailo8",
		Engine:       "emulator",
		ModelName:    "model",
		OutputSuffix: ".hailo8.onnx",
		MIMEType:     "application/x-onnx; device=hailo-8",
		ScratchDir:   "tmp",
		LogFile:      "logs.json",
		LogLevel:     "info",
	}
}

// Load builds settings from the defaults, the optional YAML file at path and
// HAILOCONV_* environment variables, in increasing precedence.
func Load(path string) (Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Settings{}, fmt.Errorf("failed to load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Settings{}, fmt.Errorf("failed to load settings file %s: %w", path, err)
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load environment: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings the converter cannot run with.
func (s Settings) Validate() error {
	var errs []error
	for _, f := range []struct{ key, value string }{
		{"hw_arch", s.HWArch},
		{"engine", s.Engine},
		{"model_name", s.ModelName},
		{"output_suffix", s.OutputSuffix},
		{"scratch_dir", s.ScratchDir},
		{"log_file", s.LogFile},
	} {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", f.key))
		}
	}
	if strings.TrimSpace(s.ScratchDir) != "" {
		if err := checkLocalName(s.ScratchDir); err != nil {
			errs = append(errs, fmt.Errorf("scratch_dir: %w", err))
		}
	}
	if _, ok := parseLogLevel(s.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("unknown log_level %q", s.LogLevel))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// ScratchPath returns the extraction directory inside outputDir.
func (s Settings) ScratchPath(outputDir string) (string, error) {
	if err := checkLocalName(s.ScratchDir); err != nil {
		return "", fmt.Errorf("invalid scratch_dir: %w", err)
	}
	return filepath.Join(outputDir, s.ScratchDir), nil
}

// checkLocalName accepts a single path element naming an entry of the
// output directory. The scratch directory is deleted recursively, so "."
// and ".." are refused.
func checkLocalName(name string) error {
	if strings.TrimSpace(name) == "" || name == "." || !filepath.IsLocal(name) || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%q must be a single directory name inside the output directory", name)
	}
	return nil
}

// Level returns the slog level for LogLevel, defaulting to info.
func (s Settings) Level() slog.Level {
	level, _ := parseLogLevel(s.LogLevel)
	return level
}

func parseLogLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "", "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
