// Package introspect derives the image input description of an ONNX graph:
// the input tensor name, its spatial and channel dimensions, the memory
// layout and the normalization statistics embedded in the graph doc string.
//
// The layout is inferred from the second dimension of the image input. A
// value of 3 or less is read as a channel count (NCHW), anything larger as a
// height (NHWC). Inputs whose spatial size is 3x3 or smaller are therefore
// misread as channels-first; the job config can override the layout.
package introspect
