package onnx

// ONNX protobuf data structures. Fields not listed here survive a
// Parse/Marshal round trip through the unknown byte slices.

// ModelProto represents an ONNX model.
type ModelProto struct {
	IRVersion       int64               // IR version (e.g., 7, 8, 9)
	OpsetImport     []OperatorSetID     // Opset version(s)
	ProducerName    string              // Framework name (e.g., "pytorch", "tf")
	ProducerVersion string              // Framework version
	Domain          string              // Model domain
	ModelVersion    int64               // Model version number
	DocString       string              // Model description
	Graph           *GraphProto         // Computation graph
	MetadataProps   []StringStringEntry // Key-value metadata

	unknown []byte
}

// GraphProto represents the computation graph.
type GraphProto struct {
	Name         string           // Graph name
	Nodes        []NodeProto      // Operation nodes
	Inputs       []ValueInfoProto // Graph inputs
	Outputs      []ValueInfoProto // Graph outputs
	Initializers []TensorProto    // Weight tensors
	DocString    string           // Graph description
	ValueInfo    []ValueInfoProto // Intermediate tensor info

	unknown []byte
}

// NodeProto represents a single operation. Attributes are not decoded.
type NodeProto struct {
	Name      string   // Node name (optional)
	OpType    string   // Operation type (e.g., "Conv", "MatMul", "Relu")
	Inputs    []string // Input tensor names
	Outputs   []string // Output tensor names
	Domain    string   // Custom domain (empty for default)
	DocString string   // Node description

	unknown []byte
}

// TensorProto represents an initializer. Only the header is decoded.
type TensorProto struct {
	Name     string  // Tensor name
	DataType int32   // Element data type
	Dims     []int64 // Tensor shape

	unknown []byte
}

// ValueInfoProto describes input/output tensor specifications.
type ValueInfoProto struct {
	Name      string     // Tensor name
	Type      *TypeProto // Tensor type information
	DocString string     // Description

	unknown []byte
}

// TypeProto describes a value type. Only tensor types are decoded.
type TypeProto struct {
	TensorType *TensorTypeProto

	unknown []byte
}

// TensorTypeProto describes tensor shape and element type.
type TensorTypeProto struct {
	ElemType int32             // Element data type
	Shape    *TensorShapeProto // Tensor shape, nil when the rank is unknown

	unknown []byte
}

// TensorShapeProto describes tensor dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto

	unknown []byte
}

// DimensionProto describes a single dimension.
type DimensionProto struct {
	DimValue   int64  // Static dimension value (e.g., 224 for image size)
	DimParam   string // Dynamic dimension name (e.g., "batch_size")
	Denotation string // Semantic tag (e.g., "DATA_CHANNEL")

	hasValue bool
	unknown  []byte
}

// OperatorSetID identifies opset version.
type OperatorSetID struct {
	Domain  string // Operator domain (empty for default)
	Version int64  // Opset version number
}

// StringStringEntry represents key-value metadata.
type StringStringEntry struct {
	Key   string
	Value string
}

// StaticDim returns a dimension with a concrete value.
func StaticDim(v int64) DimensionProto {
	return DimensionProto{DimValue: v, hasValue: true}
}

// SymbolicDim returns a named dynamic dimension.
func SymbolicDim(name string) DimensionProto {
	return DimensionProto{DimParam: name}
}

// HasValue reports whether dim_value was present on the wire.
func (d DimensionProto) HasValue() bool {
	return d.hasValue
}

// TensorInput builds a ValueInfoProto for a tensor with the given dims.
func TensorInput(name string, elemType int32, dims ...DimensionProto) ValueInfoProto {
	return ValueInfoProto{
		Name: name,
		Type: &TypeProto{
			TensorType: &TensorTypeProto{
				ElemType: elemType,
				Shape:    &TensorShapeProto{Dims: dims},
			},
		},
	}
}

// Dims returns the declared dimensions of a tensor value, or nil when the value
// is not a tensor or carries no shape.
func (v *ValueInfoProto) Dims() []DimensionProto {
	if v.Type == nil || v.Type.TensorType == nil || v.Type.TensorType.Shape == nil {
		return nil
	}
	return v.Type.TensorType.Shape.Dims
}

// DataInputs returns graph inputs that are not initializers.
// Older exporters list every weight as a graph input as well.
func (g *GraphProto) DataInputs() []ValueInfoProto {
	initNames := make(map[string]bool, len(g.Initializers))
	for i := range g.Initializers {
		initNames[g.Initializers[i].Name] = true
	}

	inputs := make([]ValueInfoProto, 0, len(g.Inputs))
	for i := range g.Inputs {
		if !initNames[g.Inputs[i].Name] {
			inputs = append(inputs, g.Inputs[i])
		}
	}
	return inputs
}

// ONNX data types (TensorProto.DataType).
const (
	TensorProtoUndefined  = 0
	TensorProtoFloat      = 1  // float32
	TensorProtoUint8      = 2  // uint8
	TensorProtoInt8       = 3  // int8
	TensorProtoUint16     = 4  // uint16
	TensorProtoInt16      = 5  // int16
	TensorProtoInt32      = 6  // int32
	TensorProtoInt64      = 7  // int64
	TensorProtoString     = 8  // string
	TensorProtoBool       = 9  // bool
	TensorProtoFloat16    = 10 // float16
	TensorProtoDouble     = 11 // float64
	TensorProtoUint32     = 12 // uint32
	TensorProtoUint64     = 13 // uint64
	TensorProtoComplex64  = 14 // complex64
	TensorProtoComplex128 = 15 // complex128
	TensorProtoBfloat16   = 16 // bfloat16
)
