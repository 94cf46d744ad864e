package onnx

// ModelInfo contains basic information about an ONNX model.
type ModelInfo struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	GraphName       string
	InputNames      []string
	OutputNames     []string
	NodeCount       int
	WeightCount     int
}

// Info summarizes a parsed model.
func (m *ModelProto) Info() ModelInfo {
	info := ModelInfo{
		IRVersion:       m.IRVersion,
		ProducerName:    m.ProducerName,
		ProducerVersion: m.ProducerVersion,
		OpsetVersion:    m.OpsetVersion(),
	}

	if m.Graph != nil {
		info.GraphName = m.Graph.Name
		for _, in := range m.Graph.DataInputs() {
			info.InputNames = append(info.InputNames, in.Name)
		}
		for i := range m.Graph.Outputs {
			info.OutputNames = append(info.OutputNames, m.Graph.Outputs[i].Name)
		}
		info.NodeCount = len(m.Graph.Nodes)
		info.WeightCount = len(m.Graph.Initializers)
	}

	return info
}

// OpsetVersion returns the default-domain opset version, or 0 if none is declared.
func (m *ModelProto) OpsetVersion() int64 {
	for _, opset := range m.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			return opset.Version
		}
	}
	return 0
}

// Metadata returns the value of a metadata_props entry.
func (m *ModelProto) Metadata(key string) (string, bool) {
	for _, prop := range m.MetadataProps {
		if prop.Key == key {
			return prop.Value, true
		}
	}
	return "", false
}

// SetMetadata sets a metadata_props entry, replacing an existing key.
func (m *ModelProto) SetMetadata(key, value string) {
	for i := range m.MetadataProps {
		if m.MetadataProps[i].Key == key {
			m.MetadataProps[i].Value = value
			return
		}
	}
	m.MetadataProps = append(m.MetadataProps, StringStringEntry{Key: key, Value: value})
}
