package onnx

import (
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes a model to the ONNX protobuf wire format.
func Marshal(m *ModelProto) []byte {
	return appendModel(nil, m)
}

// SaveFile encodes a model and writes it to path. The data goes to a
// temporary sibling that is renamed into place, so a failed save leaves no
// partial file at path.
func SaveFile(m *ModelProto, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*.onnx")
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(Marshal(m)); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close model file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil { //nolint:gosec // model files are meant to be shared
		return fmt.Errorf("failed to set model file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move model into place: %w", err)
	}
	return nil
}

func appendVarintField(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v)) //nolint:gosec // two's complement on the wire
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	return appendRepeatedString(b, num, s)
}

// appendRepeatedString always writes, empty strings are positional in node inputs.
func appendRepeatedString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendModel(b []byte, m *ModelProto) []byte {
	b = appendVarintField(b, 1, m.IRVersion)
	b = appendStringField(b, 2, m.ProducerName)
	b = appendStringField(b, 3, m.ProducerVersion)
	b = appendStringField(b, 4, m.Domain)
	b = appendVarintField(b, 5, m.ModelVersion)
	b = appendStringField(b, 6, m.DocString)
	if m.Graph != nil {
		b = appendMessageField(b, 7, appendGraph(nil, m.Graph))
	}
	for i := range m.OpsetImport {
		b = appendMessageField(b, 8, appendOperatorSetID(nil, &m.OpsetImport[i]))
	}
	for i := range m.MetadataProps {
		b = appendMessageField(b, 14, appendStringStringEntry(nil, &m.MetadataProps[i]))
	}
	return append(b, m.unknown...)
}

func appendGraph(b []byte, g *GraphProto) []byte {
	for i := range g.Nodes {
		b = appendMessageField(b, 1, appendNode(nil, &g.Nodes[i]))
	}
	b = appendStringField(b, 2, g.Name)
	for i := range g.Initializers {
		b = appendMessageField(b, 5, appendTensor(nil, &g.Initializers[i]))
	}
	b = appendStringField(b, 10, g.DocString)
	for i := range g.Inputs {
		b = appendMessageField(b, 11, appendValueInfo(nil, &g.Inputs[i]))
	}
	for i := range g.Outputs {
		b = appendMessageField(b, 12, appendValueInfo(nil, &g.Outputs[i]))
	}
	for i := range g.ValueInfo {
		b = appendMessageField(b, 13, appendValueInfo(nil, &g.ValueInfo[i]))
	}
	return append(b, g.unknown...)
}

func appendNode(b []byte, n *NodeProto) []byte {
	for _, in := range n.Inputs {
		b = appendRepeatedString(b, 1, in)
	}
	for _, out := range n.Outputs {
		b = appendRepeatedString(b, 2, out)
	}
	b = appendStringField(b, 3, n.Name)
	b = appendStringField(b, 4, n.OpType)
	b = appendStringField(b, 6, n.DocString)
	b = appendStringField(b, 7, n.Domain)
	return append(b, n.unknown...)
}

func appendTensor(b []byte, t *TensorProto) []byte {
	for _, d := range t.Dims {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d)) //nolint:gosec // two's complement on the wire
	}
	b = appendVarintField(b, 2, int64(t.DataType))
	b = appendStringField(b, 8, t.Name)
	return append(b, t.unknown...)
}

func appendValueInfo(b []byte, v *ValueInfoProto) []byte {
	b = appendStringField(b, 1, v.Name)
	if v.Type != nil {
		b = appendMessageField(b, 2, appendType(nil, v.Type))
	}
	b = appendStringField(b, 3, v.DocString)
	return append(b, v.unknown...)
}

func appendType(b []byte, t *TypeProto) []byte {
	if t.TensorType != nil {
		b = appendMessageField(b, 1, appendTensorType(nil, t.TensorType))
	}
	return append(b, t.unknown...)
}

func appendTensorType(b []byte, t *TensorTypeProto) []byte {
	b = appendVarintField(b, 1, int64(t.ElemType))
	if t.Shape != nil {
		b = appendMessageField(b, 2, appendTensorShape(nil, t.Shape))
	}
	return append(b, t.unknown...)
}

func appendTensorShape(b []byte, s *TensorShapeProto) []byte {
	for i := range s.Dims {
		b = appendMessageField(b, 1, appendDimension(nil, &s.Dims[i]))
	}
	return append(b, s.unknown...)
}

func appendDimension(b []byte, d *DimensionProto) []byte {
	if d.hasValue || d.DimValue != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d.DimValue)) //nolint:gosec // two's complement on the wire
	}
	b = appendStringField(b, 2, d.DimParam)
	b = appendStringField(b, 3, d.Denotation)
	return append(b, d.unknown...)
}

func appendOperatorSetID(b []byte, o *OperatorSetID) []byte {
	b = appendStringField(b, 1, o.Domain)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(o.Version)) //nolint:gosec // opset versions are positive
}

func appendStringStringEntry(b []byte, e *StringStringEntry) []byte {
	b = appendStringField(b, 1, e.Key)
	return appendStringField(b, 2, e.Value)
}
