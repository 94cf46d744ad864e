package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
	assert.Equal(t, slog.LevelInfo, s.Level())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hw_arch: hailo8l
keep_scratch: true
log_level: debug
`), 0o644))

	t.Setenv("HAILOCONV_HW_ARCH", "hailo15h")
	t.Setenv("HAILOCONV_MODEL_NAME", "net")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hailo15h", s.HWArch, "env wins over file")
	assert.Equal(t, "net", s.ModelName)
	assert.True(t, s.KeepScratch)
	assert.Equal(t, slog.LevelDebug, s.Level())
	assert.Equal(t, "emulator", s.Engine, "defaults fill the rest")
	assert.Equal(t, ".hailo8.onnx", s.OutputSuffix)
}

func TestLoadEnvBool(t *testing.T) {
	t.Setenv("HAILOCONV_KEEP_SCRATCH", "true")
	s, err := Load("")
	require.NoError(t, err)
	assert.True(t, s.KeepScratch)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("hw_arch: [unterminated"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv("HAILOCONV_LOG_LEVEL", "verbose")
	_, err = Load("")
	assert.ErrorContains(t, err, `unknown log_level "verbose"`)
}

func TestValidate(t *testing.T) {
	s := Defaults()
	s.Engine = ""
	s.ScratchDir = " "
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine must not be empty")
	assert.Contains(t, err.Error(), "scratch_dir must not be empty")
}

func TestValidateScratchDir(t *testing.T) {
	tests := []struct {
		dir     string
		wantErr bool
	}{
		{"tmp", false},
		{".scratch", false},
		{".", true},
		{"..", true},
		{"../elsewhere", true},
		{"a/b", true},
		{"/tmp", true},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			s := Defaults()
			s.ScratchDir = tt.dir
			err := s.Validate()
			_, pathErr := s.ScratchPath(t.TempDir())
			if tt.wantErr {
				assert.ErrorContains(t, err, "scratch_dir")
				assert.Error(t, pathErr)
			} else {
				assert.NoError(t, err)
				assert.NoError(t, pathErr)
			}
		})
	}
}

func TestScratchPathRejectsEmpty(t *testing.T) {
	s := Defaults()
	s.ScratchDir = ""
	_, err := s.ScratchPath("/out")
	assert.Error(t, err)
}

func TestLoadRejectsParentScratchDirFromEnv(t *testing.T) {
	t.Setenv("HAILOCONV_SCRATCH_DIR", "..")
	_, err := Load("")
	assert.ErrorContains(t, err, "scratch_dir")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"Error", slog.LevelError, true},
		{"loud", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := parseLogLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}
