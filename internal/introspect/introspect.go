package introspect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/hailoconv/internal/archive"
	"github.com/born-ml/hailoconv/internal/onnx"
	"github.com/born-ml/hailoconv/internal/tensor"
)

var (
	// ErrNoImageInput is returned when no graph input has rank 4.
	ErrNoImageInput = errors.New("no image input found")
	// ErrAmbiguousImageInput is returned when several graph inputs have rank 4.
	ErrAmbiguousImageInput = errors.New("more than one image input found")
	// ErrUnresolvedDimension is returned when a spatial or channel dimension is not concrete.
	ErrUnresolvedDimension = errors.New("unresolved input dimension")
)

// Dim is a tensor dimension: either a concrete Value or a symbolic Param.
type Dim struct {
	Value int64
	Param string
}

// Fixed returns a concrete dimension.
func Fixed(v int) Dim {
	return Dim{Value: int64(v)}
}

// Resolved reports whether the dimension has a usable concrete size.
func (d Dim) Resolved() bool {
	return d.Value > 0
}

// Int returns the concrete size, or 0 if the dimension is unresolved.
func (d Dim) Int() int {
	if !d.Resolved() {
		return 0
	}
	return int(d.Value)
}

func (d Dim) String() string {
	switch {
	case d.Resolved():
		return strconv.FormatInt(d.Value, 10)
	case d.Param != "":
		return d.Param
	default:
		return "?"
	}
}

func dimFrom(p onnx.DimensionProto) Dim {
	return Dim{Value: p.DimValue, Param: p.DimParam}
}

// IOInfo describes the image input of a model.
type IOInfo struct {
	InputName     string
	Stats         Stats
	Height        Dim
	Width         Dim
	Channels      Dim
	ChannelsFirst bool
}

// Extract finds the unique rank-4 data input of the graph and derives its
// layout, dimensions and normalization statistics.
func Extract(graph *onnx.GraphProto) (IOInfo, error) {
	if graph == nil {
		return IOInfo{}, fmt.Errorf("%w: model has no graph", ErrNoImageInput)
	}

	var candidates []onnx.ValueInfoProto
	for _, in := range graph.DataInputs() {
		if len(in.Dims()) == 4 {
			candidates = append(candidates, in)
		}
	}

	switch len(candidates) {
	case 0:
		return IOInfo{}, fmt.Errorf("%w: the model needs exactly one rank-4 input", ErrNoImageInput)
	case 1:
	default:
		names := make([]string, len(candidates))
		for i := range candidates {
			names[i] = candidates[i].Name
		}
		return IOInfo{}, fmt.Errorf("%w: %s", ErrAmbiguousImageInput, strings.Join(names, ", "))
	}

	input := candidates[0]
	dims := input.Dims()
	info := IOInfo{
		InputName:     input.Name,
		Stats:         ParseStats(graph.DocString),
		ChannelsFirst: IsChannelsFirst(dims[1].DimValue),
	}
	if info.ChannelsFirst {
		info.Channels, info.Height, info.Width = dimFrom(dims[1]), dimFrom(dims[2]), dimFrom(dims[3])
	} else {
		info.Height, info.Width, info.Channels = dimFrom(dims[1]), dimFrom(dims[2]), dimFrom(dims[3])
	}
	return info, nil
}

// IsChannelsFirst applies the layout heuristic to the second input dimension.
// An unknown (zero) dimension counts as channels-first.
func IsChannelsFirst(second int64) bool {
	return second <= 3
}

// Apply returns a copy of info with the IO overrides of the job config applied.
func (info IOInfo) Apply(cfg archive.JobConfig) IOInfo {
	out := info
	if len(cfg.Means) > 0 || len(cfg.Stds) > 0 {
		stats := Stats{Means: info.Stats.Means, Stds: info.Stats.Stds, Source: StatsExplicit}
		if len(cfg.Means) > 0 {
			stats.Means = toFloat32(cfg.Means)
		}
		if len(cfg.Stds) > 0 {
			stats.Stds = toFloat32(cfg.Stds)
		}
		out.Stats = stats
	}
	if cfg.Height != nil {
		out.Height = Fixed(*cfg.Height)
	}
	if cfg.Width != nil {
		out.Width = Fixed(*cfg.Width)
	}
	if cfg.Channels != nil {
		out.Channels = Fixed(*cfg.Channels)
	}
	if cfg.NCHW != nil {
		out.ChannelsFirst = *cfg.NCHW
	}
	return out
}

// Validate checks that every dimension needed to build calibration data is concrete.
func (info IOInfo) Validate() error {
	for _, d := range []struct {
		name string
		dim  Dim
	}{
		{"height", info.Height},
		{"width", info.Width},
		{"channels", info.Channels},
	} {
		if !d.dim.Resolved() {
			return fmt.Errorf("%w: %s of input %q is %s; set %q in the job config",
				ErrUnresolvedDimension, d.name, info.InputName, d.dim, d.name)
		}
	}
	return nil
}

// Layout returns "NCHW" or "NHWC".
func (info IOInfo) Layout() string {
	if info.ChannelsFirst {
		return "NCHW"
	}
	return "NHWC"
}

// BatchShape returns the shape of an n-image batch in the input's layout.
func (info IOInfo) BatchShape(n int) tensor.Shape {
	h, w, c := info.Height.Int(), info.Width.Int(), info.Channels.Int()
	if info.ChannelsFirst {
		return tensor.Shape{n, c, h, w}
	}
	return tensor.Shape{n, h, w, c}
}
