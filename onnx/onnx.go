// Package onnx is the public API for reading, inspecting and writing ONNX
// models with hailoconv.
//
// Models are decoded losslessly: fields hailoconv does not interpret, such as
// weights and node attributes, are written back byte for byte by [Save].
//
// # Example Usage
//
//	import "github.com/born-ml/hailoconv/onnx"
//
//	summary, err := onnx.Inspect("resnet18.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Opset:", summary.Model.OpsetVersion)
//	if summary.ImageInput != nil {
//	    fmt.Println("Layout:", summary.ImageInput.Layout)
//	}
package onnx

import (
	"fmt"

	"github.com/born-ml/hailoconv/internal/introspect"
	internalonnx "github.com/born-ml/hailoconv/internal/onnx"
)

// Model is a decoded ONNX model.
type Model = internalonnx.ModelProto

// ModelInfo contains summary metadata about an ONNX model.
type ModelInfo = internalonnx.ModelInfo

// Load reads an ONNX model from a file path.
func Load(path string) (*Model, error) {
	return internalonnx.ParseFile(path)
}

// LoadFromBytes decodes an ONNX model from raw bytes.
func LoadFromBytes(data []byte) (*Model, error) {
	return internalonnx.Parse(data)
}

// Save writes a model to path.
func Save(m *Model, path string) error {
	return internalonnx.SaveFile(m, path)
}

// ImageInput describes the image input a conversion would calibrate.
type ImageInput struct {
	Name        string    `json:"name"`
	Layout      string    `json:"layout"`
	Height      string    `json:"height"`
	Width       string    `json:"width"`
	Channels    string    `json:"channels"`
	StatsSource string    `json:"stats_source"`
	StatsReason string    `json:"stats_reason,omitempty"`
	Means       []float32 `json:"means"`
	Stds        []float32 `json:"stds"`
}

// Summary is the result of [Inspect].
type Summary struct {
	Model      ModelInfo   `json:"model"`
	ImageInput *ImageInput `json:"image_input,omitempty"`
	// ImageInputError explains why no image input could be selected.
	ImageInputError string `json:"image_input_error,omitempty"`
}

// Inspect loads the model at path and describes its metadata and image input.
// A model without a usable image input is not an error; the reason is
// reported in Summary.ImageInputError.
//
// Example:
//
//	summary, err := onnx.Inspect("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Producer: %s\n", summary.Model.ProducerName)
//	fmt.Printf("Inputs: %v\n", summary.Model.InputNames)
func Inspect(path string) (*Summary, error) {
	m, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	summary := &Summary{Model: m.Info()}
	info, err := introspect.Extract(m.Graph)
	if err != nil {
		summary.ImageInputError = err.Error()
		return summary, nil
	}

	summary.ImageInput = &ImageInput{
		Name:        info.InputName,
		Layout:      info.Layout(),
		Height:      info.Height.String(),
		Width:       info.Width.String(),
		Channels:    info.Channels.String(),
		StatsSource: info.Stats.Source.String(),
		StatsReason: info.Stats.Reason,
		Means:       info.Stats.Means,
		Stds:        info.Stats.Stds,
	}
	return summary, nil
}
