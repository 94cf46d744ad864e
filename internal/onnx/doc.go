// Package onnx provides the ONNX model codec used by the converter.
//
// ONNX (Open Neural Network Exchange) is an open format for representing deep learning models.
// This package decodes and encodes .onnx files with protowire. Only the fields the
// converter reads are decoded into Go structs; every other field is carried as raw
// wire bytes and written back untouched, so Parse followed by Marshal preserves
// weights, attributes and any extension data.
//
// Key components:
//   - ModelProto: Top-level ONNX model structure with metadata and graph
//   - GraphProto: Computation graph with nodes, inputs, outputs, and initializers
//   - NodeProto: Single operation in the graph (attributes kept opaque)
//   - TensorProto: Initializer header (name, type, dims; payload kept opaque)
//   - ValueInfoProto: Input/output tensor type information
//
// Example usage:
//
//	model, err := onnx.ParseFile("resnet50.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, in := range model.Graph.DataInputs() {
//	    fmt.Printf("%s %v\n", in.Name, in.Dims())
//	}
//	if err := onnx.SaveFile(model, "copy.onnx"); err != nil {
//	    log.Fatal(err)
//	}
package onnx
