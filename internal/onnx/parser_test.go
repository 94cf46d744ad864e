package onnx

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

// buildClassifier returns a small image classifier: Conv(X, W) -> Relu -> Y.
func buildClassifier() *ModelProto {
	return &ModelProto{
		IRVersion:       7,
		ProducerName:    "pytorch",
		ProducerVersion: "2.1.0",
		OpsetImport:     []OperatorSetID{{Domain: "", Version: 13}},
		Graph: &GraphProto{
			Name:      "classifier",
			DocString: `{"means": [123.7, 116.3, 103.5], "vars": [58.4, 57.1, 57.4]}`,
			Nodes: []NodeProto{
				{Name: "conv", OpType: "Conv", Inputs: []string{"X", "W"}, Outputs: []string{"c"}},
				{Name: "relu", OpType: "Relu", Inputs: []string{"c"}, Outputs: []string{"Y"}},
			},
			Initializers: []TensorProto{
				{Name: "W", DataType: TensorProtoFloat, Dims: []int64{8, 3, 3, 3}},
			},
			Inputs: []ValueInfoProto{
				TensorInput("X", TensorProtoFloat, SymbolicDim("batch"), StaticDim(3), StaticDim(224), StaticDim(224)),
				TensorInput("W", TensorProtoFloat, StaticDim(8), StaticDim(3), StaticDim(3), StaticDim(3)),
			},
			Outputs: []ValueInfoProto{
				TensorInput("Y", TensorProtoFloat, SymbolicDim("batch"), StaticDim(8), StaticDim(222), StaticDim(222)),
			},
		},
	}
}

func TestParseRoundTrip(t *testing.T) {
	model, err := Parse(Marshal(buildClassifier()))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if model.IRVersion != 7 {
		t.Errorf("Expected IR version 7, got %d", model.IRVersion)
	}
	if model.ProducerName != "pytorch" {
		t.Errorf("Expected producer 'pytorch', got '%s'", model.ProducerName)
	}
	if model.OpsetVersion() != 13 {
		t.Errorf("Expected opset 13, got %d", model.OpsetVersion())
	}
	if model.Graph == nil {
		t.Fatal("Graph is nil")
	}
	if len(model.Graph.Nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(model.Graph.Nodes))
	}
	if model.Graph.Nodes[0].OpType != "Conv" {
		t.Errorf("Expected OpType 'Conv', got '%s'", model.Graph.Nodes[0].OpType)
	}

	dims := model.Graph.Inputs[0].Dims()
	if len(dims) != 4 {
		t.Fatalf("Expected 4 dims, got %d", len(dims))
	}
	if dims[0].DimParam != "batch" || dims[0].HasValue() {
		t.Errorf("Expected symbolic batch dim, got %+v", dims[0])
	}
	if dims[2].DimValue != 224 || !dims[2].HasValue() {
		t.Errorf("Expected static 224 dim, got %+v", dims[2])
	}

	init := model.Graph.Initializers[0]
	if init.Name != "W" || init.DataType != TensorProtoFloat || len(init.Dims) != 4 {
		t.Errorf("Unexpected initializer header: %+v", init)
	}
}

func TestParsePreservesUnknownFields(t *testing.T) {
	model := buildClassifier()
	encoded := Marshal(model)

	// Attach an attribute (NodeProto field 5) and raw weight data (TensorProto field 9),
	// neither of which the codec decodes.
	parsed, err := Parse(encoded)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	attr := protowire.AppendTag(nil, 1, protowire.BytesType)
	attr = protowire.AppendString(attr, "kernel_shape")
	parsed.Graph.Nodes[0].unknown = protowire.AppendBytes(protowire.AppendTag(nil, 5, protowire.BytesType), attr)
	parsed.Graph.Initializers[0].unknown = protowire.AppendBytes(protowire.AppendTag(nil, 9, protowire.BytesType), make([]byte, 16))

	first := Marshal(parsed)
	reparsed, err := Parse(first)
	if err != nil {
		t.Fatalf("Parse of re-encoded model failed: %v", err)
	}
	second := Marshal(reparsed)

	if !bytes.Equal(first, second) {
		t.Error("Round trip should be byte-stable when unknown fields are present")
	}
	if len(reparsed.Graph.Nodes[0].unknown) == 0 {
		t.Error("Node attribute bytes were dropped")
	}
}

func TestParsePackedDims(t *testing.T) {
	packed := protowire.AppendVarint(nil, 2)
	packed = protowire.AppendVarint(packed, 5)

	tensorBytes := protowire.AppendTag(nil, 1, protowire.BytesType)
	tensorBytes = protowire.AppendBytes(tensorBytes, packed)
	tensorBytes = protowire.AppendTag(tensorBytes, 8, protowire.BytesType)
	tensorBytes = protowire.AppendString(tensorBytes, "B")

	graphBytes := protowire.AppendTag(nil, 5, protowire.BytesType)
	graphBytes = protowire.AppendBytes(graphBytes, tensorBytes)

	modelBytes := protowire.AppendTag(nil, 7, protowire.BytesType)
	modelBytes = protowire.AppendBytes(modelBytes, graphBytes)

	model, err := Parse(modelBytes)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	dims := model.Graph.Initializers[0].Dims
	if len(dims) != 2 || dims[0] != 2 || dims[1] != 5 {
		t.Errorf("Expected dims [2 5], got %v", dims)
	}
}

func TestParseTruncated(t *testing.T) {
	data := Marshal(buildClassifier())
	if _, err := Parse(data[:len(data)-3]); err == nil {
		t.Error("Expected error for truncated model")
	}
}

func TestParseWrongWireType(t *testing.T) {
	// ir_version encoded as a string.
	data := protowire.AppendTag(nil, 1, protowire.BytesType)
	data = protowire.AppendString(data, "seven")
	if _, err := Parse(data); err == nil {
		t.Error("Expected error for wrong wire type")
	}
}

func TestParseEmptyNodeInputKept(t *testing.T) {
	model := buildClassifier()
	model.Graph.Nodes[0].Inputs = []string{"X", "W", ""}

	parsed, err := Parse(Marshal(model))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := len(parsed.Graph.Nodes[0].Inputs); got != 3 {
		t.Errorf("Expected 3 inputs including the empty optional one, got %d", got)
	}
}

func TestSaveFileAndParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	if err := SaveFile(buildClassifier(), path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	model, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if model.Graph.Name != "classifier" {
		t.Errorf("Expected graph 'classifier', got '%s'", model.Graph.Name)
	}
}

func TestSaveFileFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "model.onnx")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := SaveFile(buildClassifier(), target); err == nil {
		t.Fatal("Expected error when the target is a directory")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "model.onnx" || !entries[0].IsDir() {
		t.Errorf("Expected only the original directory, got %v", entries)
	}

	if err := SaveFile(buildClassifier(), filepath.Join(dir, "missing", "model.onnx")); err == nil {
		t.Error("Expected error for a missing parent directory")
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.onnx"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}
