package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/hailoconv/internal/onnx"
)

func writeArchive(t *testing.T, files map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, data := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func modelBytes() []byte {
	return onnx.Marshal(&onnx.ModelProto{
		IRVersion:   8,
		OpsetImport: []onnx.OperatorSetID{{Version: 13}},
		Graph: &onnx.GraphProto{
			Name: "gray",
			Nodes: []onnx.NodeProto{
				{Name: "conv", OpType: "Conv", Inputs: []string{"x", "w"}, Outputs: []string{"y"}},
			},
			Inputs: []onnx.ValueInfoProto{onnx.TensorInput("x", onnx.TensorProtoFloat,
				onnx.StaticDim(1), onnx.StaticDim(12), onnx.StaticDim(12), onnx.StaticDim(1))},
			Outputs:      []onnx.ValueInfoProto{onnx.TensorInput("y", onnx.TensorProtoFloat)},
			Initializers: []onnx.TensorProto{{Name: "w", DataType: onnx.TensorProtoFloat, Dims: []int64{1, 1, 3, 3}}},
		},
	})
}

type runLog struct {
	Messages []struct {
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"messages"`
	Data map[string]any `json:"data"`
}

func readLog(t *testing.T, path string) runLog {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var l runLog
	require.NoError(t, json.Unmarshal(raw, &l))
	return l
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConvertWithEmulator(t *testing.T) {
	archivePath := writeArchive(t, map[string][]byte{
		"gray.onnx":   modelBytes(),
		"config.json": []byte(`{}`),
	})
	outDir := filepath.Join(t.TempDir(), "out")

	stdout, err := execute(t, "--zip-path", archivePath, "--output-dir", outDir, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "gray.hailo8.onnx")
	assert.FileExists(t, filepath.Join(outDir, "gray.hailo8.onnx"))

	l := readLog(t, filepath.Join(outDir, "logs.json"))
	require.NotEmpty(t, l.Messages)
	assert.Equal(t, "Successful Conversion", l.Messages[len(l.Messages)-1].Message)
	assert.Equal(t, filepath.Join(outDir, "logs.json"), l.Data["Logs path"])
	assert.Equal(t, "hailo8", l.Data["Target Hardware"])
	assert.NotEmpty(t, l.Data["Run ID"])
	assert.Equal(t, "Done", l.Data["Compiling Model"])
}

func TestConversionFailureStillExitsCleanly(t *testing.T) {
	archivePath := writeArchive(t, map[string][]byte{"gray.onnx": modelBytes()})
	outDir := t.TempDir()

	stdout, err := execute(t, "--zip-path", archivePath, "--output-dir", outDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Conversion failed")

	l := readLog(t, filepath.Join(outDir, "logs.json"))
	require.Len(t, l.Messages, 1)
	assert.Equal(t, "Conversion Failed", l.Messages[0].Message)
	assert.NotEmpty(t, l.Messages[0].Details["Human Error"])
	assert.NotEmpty(t, l.Messages[0].Details["Technical Error"])
	assert.Contains(t, l.Data, "Logs path")
}

func TestSettingsFile(t *testing.T) {
	settings := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("hw_arch: hailo8l\nlog_file: run.json\n"), 0o644))
	archivePath := writeArchive(t, map[string][]byte{
		"gray.onnx":   modelBytes(),
		"config.json": []byte(`{}`),
	})
	outDir := t.TempDir()

	_, err := execute(t, "--zip-path", archivePath, "--output-dir", outDir, "--config", settings, "--log-level", "error")
	require.NoError(t, err)

	l := readLog(t, filepath.Join(outDir, "run.json"))
	assert.Equal(t, "hailo8l", l.Data["Target Hardware"])
}

func TestInvalidCommandLine(t *testing.T) {
	_, err := execute(t, "--zip-path", "job.zip")
	assert.ErrorContains(t, err, "output-dir")

	_, err = execute(t, "--zip-path", "job.zip", "--output-dir", t.TempDir(), "--log-level", "chatty")
	assert.ErrorContains(t, err, "log_level")

	_, err = execute(t, "--zip-path", "job.zip", "--output-dir", t.TempDir(), "--config", filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestUnwritableLog(t *testing.T) {
	outDir := t.TempDir()
	// A directory where the log file should go makes the final rename fail.
	require.NoError(t, os.Mkdir(filepath.Join(outDir, "logs.json"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "logs.json", "keep"), nil, 0o644))

	_, err := execute(t, "--zip-path", filepath.Join(t.TempDir(), "none.zip"), "--output-dir", outDir, "--log-level", "error")
	assert.ErrorContains(t, err, "failed to write run log")
}

func TestVersion(t *testing.T) {
	stdout, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "hailoconv "+Version+"\n", stdout)
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gray.onnx")
	require.NoError(t, os.WriteFile(path, modelBytes(), 0o644))

	stdout, err := execute(t, "inspect", path)
	require.NoError(t, err)

	var summary struct {
		Model struct {
			OpsetVersion int64
		} `json:"model"`
		ImageInput struct {
			Name     string `json:"name"`
			Layout   string `json:"layout"`
			Channels string `json:"channels"`
		} `json:"image_input"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, int64(13), summary.Model.OpsetVersion)
	assert.Equal(t, "x", summary.ImageInput.Name)
	assert.Equal(t, "NHWC", summary.ImageInput.Layout)
	assert.Equal(t, "1", summary.ImageInput.Channels)

	_, err = execute(t, "inspect")
	assert.Error(t, err)
}
