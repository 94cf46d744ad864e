package onnx

import "testing"

func TestModelInfo(t *testing.T) {
	info := buildClassifier().Info()

	if info.IRVersion != 7 || info.OpsetVersion != 13 {
		t.Errorf("Unexpected versions: IR %d, opset %d", info.IRVersion, info.OpsetVersion)
	}
	if info.NodeCount != 2 || info.WeightCount != 1 {
		t.Errorf("Unexpected counts: nodes %d, weights %d", info.NodeCount, info.WeightCount)
	}
	// W is an initializer and must not be reported as a data input.
	if len(info.InputNames) != 1 || info.InputNames[0] != "X" {
		t.Errorf("Expected inputs [X], got %v", info.InputNames)
	}
	if len(info.OutputNames) != 1 || info.OutputNames[0] != "Y" {
		t.Errorf("Expected outputs [Y], got %v", info.OutputNames)
	}
}

func TestMetadata(t *testing.T) {
	m := &ModelProto{}
	m.SetMetadata("device", "hailo8")
	m.SetMetadata("device", "hailo8l")

	if len(m.MetadataProps) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(m.MetadataProps))
	}
	if v, ok := m.Metadata("device"); !ok || v != "hailo8l" {
		t.Errorf("Metadata(device) = %q, %v", v, ok)
	}
	if _, ok := m.Metadata("missing"); ok {
		t.Error("Metadata(missing) should not be found")
	}
}
