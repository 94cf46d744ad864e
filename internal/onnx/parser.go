package onnx

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	model := &ModelProto{}
	if err := decodeModel(data, model); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return model, nil
}

// field is a single tag/value pair; val holds the encoded value without the tag.
type field struct {
	num protowire.Number
	typ protowire.Type
	val []byte
}

func (f field) wireTypeError() error {
	return fmt.Errorf("field %d: unexpected wire type %d", f.num, f.typ)
}

func (f field) varint() (int64, error) {
	if f.typ != protowire.VarintType {
		return 0, f.wireTypeError()
	}
	v, n := protowire.ConsumeVarint(f.val)
	if n < 0 {
		return 0, fmt.Errorf("field %d: %w", f.num, protowire.ParseError(n))
	}
	return int64(v), nil //nolint:gosec // int64 fields are encoded as two's complement varints
}

func (f field) int32() (int32, error) {
	v, err := f.varint()
	return int32(v), err //nolint:gosec // enum and int32 fields
}

func (f field) bytes() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, f.wireTypeError()
	}
	v, n := protowire.ConsumeBytes(f.val)
	if n < 0 {
		return nil, fmt.Errorf("field %d: %w", f.num, protowire.ParseError(n))
	}
	return v, nil
}

func (f field) string() (string, error) {
	b, err := f.bytes()
	return string(b), err
}

// int64s reads a repeated int64 field in either packed or unpacked form.
func (f field) int64s() ([]int64, error) {
	if f.typ == protowire.VarintType {
		v, err := f.varint()
		return []int64{v}, err
	}
	data, err := f.bytes()
	if err != nil {
		return nil, err
	}
	var out []int64
	for len(data) > 0 {
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, fmt.Errorf("field %d: %w", f.num, protowire.ParseError(n))
		}
		out = append(out, int64(v)) //nolint:gosec // see varint
		data = data[n:]
	}
	return out, nil
}

// walk visits every field of an encoded message. Fields the visitor does not
// claim are appended to unknown byte-for-byte, tag included.
func walk(b []byte, unknown *[]byte, visit func(f field) (bool, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		m := protowire.ConsumeFieldValue(num, typ, b[n:])
		if m < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
		}

		handled, err := visit(field{num: num, typ: typ, val: b[n : n+m]})
		if err != nil {
			return err
		}
		if !handled {
			*unknown = append(*unknown, b[:n+m]...)
		}
		b = b[n+m:]
	}
	return nil
}

// sub decodes a length-delimited sub-message.
func sub[T any](f field, msg *T, decode func([]byte, *T) error) error {
	data, err := f.bytes()
	if err != nil {
		return err
	}
	return decode(data, msg)
}

func decodeModel(b []byte, m *ModelProto) error {
	return walk(b, &m.unknown, func(f field) (bool, error) {
		var err error
		switch f.num {
		case 1: // ir_version
			m.IRVersion, err = f.varint()
		case 2: // producer_name
			m.ProducerName, err = f.string()
		case 3: // producer_version
			m.ProducerVersion, err = f.string()
		case 4: // domain
			m.Domain, err = f.string()
		case 5: // model_version
			m.ModelVersion, err = f.varint()
		case 6: // doc_string
			m.DocString, err = f.string()
		case 7: // graph
			m.Graph = &GraphProto{}
			if err = sub(f, m.Graph, decodeGraph); err != nil {
				err = fmt.Errorf("graph: %w", err)
			}
		case 8: // opset_import
			var opset OperatorSetID
			err = sub(f, &opset, decodeOperatorSetID)
			m.OpsetImport = append(m.OpsetImport, opset)
		case 14: // metadata_props
			var entry StringStringEntry
			err = sub(f, &entry, decodeStringStringEntry)
			m.MetadataProps = append(m.MetadataProps, entry)
		default:
			return false, nil
		}
		return true, err
	})
}

//nolint:gocyclo // Protobuf decoding requires field-by-field switch logic
func decodeGraph(b []byte, g *GraphProto) error {
	return walk(b, &g.unknown, func(f field) (bool, error) {
		var err error
		switch f.num {
		case 1: // node
			var node NodeProto
			err = sub(f, &node, decodeNode)
			g.Nodes = append(g.Nodes, node)
		case 2: // name
			g.Name, err = f.string()
		case 5: // initializer
			var t TensorProto
			err = sub(f, &t, decodeTensor)
			g.Initializers = append(g.Initializers, t)
		case 10: // doc_string
			g.DocString, err = f.string()
		case 11: // input
			var v ValueInfoProto
			err = sub(f, &v, decodeValueInfo)
			g.Inputs = append(g.Inputs, v)
		case 12: // output
			var v ValueInfoProto
			err = sub(f, &v, decodeValueInfo)
			g.Outputs = append(g.Outputs, v)
		case 13: // value_info
			var v ValueInfoProto
			err = sub(f, &v, decodeValueInfo)
			g.ValueInfo = append(g.ValueInfo, v)
		default:
			return false, nil
		}
		return true, err
	})
}

func decodeNode(b []byte, n *NodeProto) error {
	return walk(b, &n.unknown, func(f field) (bool, error) {
		var (
			s   string
			err error
		)
		switch f.num {
		case 1: // input
			s, err = f.string()
			n.Inputs = append(n.Inputs, s)
		case 2: // output
			s, err = f.string()
			n.Outputs = append(n.Outputs, s)
		case 3: // name
			n.Name, err = f.string()
		case 4: // op_type
			n.OpType, err = f.string()
		case 6: // doc_string
			n.DocString, err = f.string()
		case 7: // domain
			n.Domain, err = f.string()
		default: // attributes and anything newer
			return false, nil
		}
		return true, err
	})
}

func decodeTensor(b []byte, t *TensorProto) error {
	return walk(b, &t.unknown, func(f field) (bool, error) {
		var err error
		switch f.num {
		case 1: // dims
			var dims []int64
			dims, err = f.int64s()
			t.Dims = append(t.Dims, dims...)
		case 2: // data_type
			t.DataType, err = f.int32()
		case 8: // name
			t.Name, err = f.string()
		default: // payload fields
			return false, nil
		}
		return true, err
	})
}

func decodeValueInfo(b []byte, v *ValueInfoProto) error {
	return walk(b, &v.unknown, func(f field) (bool, error) {
		var err error
		switch f.num {
		case 1: // name
			v.Name, err = f.string()
		case 2: // type
			v.Type = &TypeProto{}
			err = sub(f, v.Type, decodeType)
		case 3: // doc_string
			v.DocString, err = f.string()
		default:
			return false, nil
		}
		return true, err
	})
}

func decodeType(b []byte, t *TypeProto) error {
	return walk(b, &t.unknown, func(f field) (bool, error) {
		if f.num != 1 { // tensor_type; sequence/map/optional stay opaque
			return false, nil
		}
		t.TensorType = &TensorTypeProto{}
		return true, sub(f, t.TensorType, decodeTensorType)
	})
}

func decodeTensorType(b []byte, t *TensorTypeProto) error {
	return walk(b, &t.unknown, func(f field) (bool, error) {
		var err error
		switch f.num {
		case 1: // elem_type
			t.ElemType, err = f.int32()
		case 2: // shape
			t.Shape = &TensorShapeProto{}
			err = sub(f, t.Shape, decodeTensorShape)
		default:
			return false, nil
		}
		return true, err
	})
}

func decodeTensorShape(b []byte, s *TensorShapeProto) error {
	return walk(b, &s.unknown, func(f field) (bool, error) {
		if f.num != 1 { // dim
			return false, nil
		}
		var dim DimensionProto
		err := sub(f, &dim, decodeDimension)
		s.Dims = append(s.Dims, dim)
		return true, err
	})
}

func decodeDimension(b []byte, d *DimensionProto) error {
	return walk(b, &d.unknown, func(f field) (bool, error) {
		var err error
		switch f.num {
		case 1: // dim_value
			d.DimValue, err = f.varint()
			d.hasValue = true
		case 2: // dim_param
			d.DimParam, err = f.string()
		case 3: // denotation
			d.Denotation, err = f.string()
		default:
			return false, nil
		}
		return true, err
	})
}

func decodeOperatorSetID(b []byte, o *OperatorSetID) error {
	var unknown []byte
	return walk(b, &unknown, func(f field) (bool, error) {
		var err error
		switch f.num {
		case 1: // domain
			o.Domain, err = f.string()
		case 2: // version
			o.Version, err = f.varint()
		default:
			return false, nil
		}
		return true, err
	})
}

func decodeStringStringEntry(b []byte, e *StringStringEntry) error {
	var unknown []byte
	return walk(b, &unknown, func(f field) (bool, error) {
		var err error
		switch f.num {
		case 1: // key
			e.Key, err = f.string()
		case 2: // value
			e.Value, err = f.string()
		default:
			return false, nil
		}
		return true, err
	})
}
