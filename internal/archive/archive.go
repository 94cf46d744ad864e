// Package archive validates and unpacks a conversion job archive into one ONNX
// model, one JSON configuration document and any number of calibration images.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Errors reported by Ingest. Match with errors.Is.
var (
	ErrMissingInput   = errors.New("missing input")
	ErrAmbiguousInput = errors.New("ambiguous input")
	ErrInvalidConfig  = errors.New("invalid configuration document")
	ErrUnsafePath     = errors.New("unsafe archive entry")
)

const (
	modelExt  = ".onnx"
	configExt = ".json"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// IsCalibrationImage reports whether name has a supported image extension.
func IsCalibrationImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// JobConfig holds the optional per-job settings of the configuration document.
// Empty node name lists mean the whole graph. The remaining fields override
// what introspection derives from the model.
type JobConfig struct {
	StartNodeNames []string  `json:"start_node_names"`
	EndNodeNames   []string  `json:"end_node_names"`
	Means          []float64 `json:"means,omitempty"`
	Stds           []float64 `json:"stds,omitempty"`
	Height         *int      `json:"height,omitempty"`
	Width          *int      `json:"width,omitempty"`
	Channels       *int      `json:"channels,omitempty"`
	NCHW           *bool     `json:"nchw,omitempty"`
}

// Job is the unpacked content of one archive.
type Job struct {
	Dir               string    // scratch directory owned by the job
	ModelPath         string    // the single .onnx file
	ConfigPath        string    // the single .json file
	Config            JobConfig // parsed ConfigPath
	CalibrationImages []string  // in traversal order, may be empty
}

// ModelName returns the model file name without directory and extension.
func (j *Job) ModelName() string {
	base := filepath.Base(j.ModelPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Cleanup removes the job's scratch directory.
func (j *Job) Cleanup() error {
	return os.RemoveAll(j.Dir)
}

// Ingest extracts archivePath into destDir and validates its content.
// destDir is removed and recreated first so that nothing from an earlier
// attempt can leak into this one.
func Ingest(archivePath, destDir string) (*Job, error) {
	if err := os.RemoveAll(destDir); err != nil {
		return nil, fmt.Errorf("failed to reset %s: %w", destDir, err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil { //nolint:gosec // scratch directory
		return nil, fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	if err := extract(archivePath, destDir); err != nil {
		return nil, err
	}

	files, err := listFiles(destDir)
	if err != nil {
		return nil, err
	}

	job := &Job{Dir: destDir}

	job.ModelPath, err = locateUnique(files, hasExt(modelExt)).require("ONNX model", destDir)
	if err != nil {
		return nil, err
	}
	job.ConfigPath, err = locateUnique(files, hasExt(configExt)).require("JSON configuration", destDir)
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		if IsCalibrationImage(f) {
			job.CalibrationImages = append(job.CalibrationImages, f)
		}
	}

	job.Config, err = LoadConfig(job.ConfigPath)
	if err != nil {
		return nil, err
	}

	return job, nil
}

// LoadConfig parses a job configuration document.
func LoadConfig(path string) (JobConfig, error) {
	var cfg JobConfig
	data, err := os.ReadFile(path) //nolint:gosec // path comes from our own extraction
	if err != nil {
		return cfg, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, filepath.Base(path), err)
	}
	return cfg, nil
}

func hasExt(ext string) func(string) bool {
	return func(name string) bool {
		return strings.EqualFold(filepath.Ext(name), ext)
	}
}

// listFiles returns every regular file under root in lexical walk order,
// skipping macOS archive metadata.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "__MACOSX" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), "._") || !d.Type().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan extracted files: %w", err)
	}
	return files, nil
}

type matchKind int

const (
	matchNone matchKind = iota
	matchFound
	matchAmbiguous
)

// match is the outcome of locateUnique.
type match struct {
	kind  matchKind
	paths []string
}

// locateUnique selects the files accepted by accept and classifies the result.
func locateUnique(files []string, accept func(string) bool) match {
	var paths []string
	for _, f := range files {
		if accept(f) {
			paths = append(paths, f)
		}
	}

	switch len(paths) {
	case 0:
		return match{kind: matchNone}
	case 1:
		return match{kind: matchFound, paths: paths}
	default:
		return match{kind: matchAmbiguous, paths: paths}
	}
}

// require turns a match into the single path or the matching taxonomy error.
func (m match) require(what, root string) (string, error) {
	switch m.kind {
	case matchFound:
		return m.paths[0], nil
	case matchAmbiguous:
		rel := make([]string, len(m.paths))
		for i, p := range m.paths {
			rel[i] = relativeTo(root, p)
		}
		return "", fmt.Errorf("%w: more than one %s file found in the archive: %s",
			ErrAmbiguousInput, what, strings.Join(rel, ", "))
	default:
		return "", fmt.Errorf("%w: no %s file found in the archive", ErrMissingInput, what)
	}
}

func relativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
