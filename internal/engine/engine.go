// Package engine defines the boundary to the hardware conversion SDK.
//
// An Engine session is opened for one target architecture and driven through
// Translate, Optimize, Compile and ExportRuntimeModel in that order. Sessions
// are created by name through a Registry; the built-in "emulator" engine
// performs the same contract in-process without a hardware SDK.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/hailoconv/internal/onnx"
	"github.com/born-ml/hailoconv/internal/tensor"
)

// Engine is one conversion session of the hardware SDK.
type Engine interface {
	// Translate parses the model at modelPath into the engine's internal
	// representation. Nil start or end node lists select the whole graph.
	Translate(ctx context.Context, modelPath, modelName string, start, end []string) error
	// Optimize quantizes the translated model using a calibration batch.
	Optimize(ctx context.Context, calib *tensor.RawTensor) error
	// Compile produces the device binary for the optimized model.
	Compile(ctx context.Context) ([]byte, error)
	// ExportRuntimeModel returns the compiled model wrapped as an ONNX model
	// runnable through the device runtime.
	ExportRuntimeModel(ctx context.Context) (*onnx.ModelProto, error)
}

// ErrOutOfOrder is returned when a session step is called before its predecessor.
var ErrOutOfOrder = errors.New("engine step called out of order")

// RecommendationError is a translation failure that carries a suggested fix,
// usually different start or end node names.
type RecommendationError struct {
	Err            error
	Recommendation string
}

func (e *RecommendationError) Error() string {
	if e.Recommendation == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (recommendation: %s)", e.Err, e.Recommendation)
}

func (e *RecommendationError) Unwrap() error {
	return e.Err
}

// Factory opens a new session for a hardware architecture.
type Factory func(hwArch string) (Engine, error)

// Registry maps engine names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in engines.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
	}
	r.Register(EmulatorName, NewEmulator)
	return r
}

// Register adds or replaces an engine factory.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// Open starts a session on the named engine.
func (r *Registry) Open(name, hwArch string) (Engine, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown engine %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	eng, err := factory(hwArch)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine %q for %s: %w", name, hwArch, err)
	}
	return eng, nil
}

// Names returns the registered engine names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
