package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/born-ml/hailoconv/internal/onnx"
	"github.com/born-ml/hailoconv/internal/tensor"
)

// EmulatorName is the registry name of the in-process engine.
const EmulatorName = "emulator"

// Metadata keys written into exported runtime models.
const (
	MetaHWArch            = "hailo.hw_arch"
	MetaModelName         = "hailo.model_name"
	MetaCompiledNodes     = "hailo.compiled_nodes"
	MetaCalibrationImages = "hailo.calibration_images"
	MetaCalibrationRange  = "hailo.calibration_range"
)

var supportedArchs = []string{"hailo8", "hailo8l", "hailo8r", "hailo15h", "hailo15m"}

// supportedOps lists the operator types the emulator accepts in a translated subgraph.
var supportedOps = map[string]bool{
	"Add": true, "ArgMax": true, "AveragePool": true, "BatchNormalization": true,
	"Cast": true, "Clip": true, "Concat": true, "Constant": true,
	"ConstantOfShape": true, "Conv": true, "ConvTranspose": true,
	"DepthToSpace": true, "Div": true, "Dropout": true, "Equal": true,
	"Erf": true, "Exp": true, "Expand": true, "Flatten": true, "Gather": true,
	"Gelu": true, "Gemm": true, "GlobalAveragePool": true, "GlobalMaxPool": true,
	"HardSigmoid": true, "HardSwish": true, "Identity": true,
	"InstanceNormalization": true, "LayerNormalization": true, "LeakyRelu": true,
	"Log": true, "MatMul": true, "Max": true, "MaxPool": true, "Min": true,
	"Mish": true, "Mul": true, "Neg": true, "Pad": true, "Pow": true,
	"PRelu": true, "Range": true, "Reciprocal": true, "ReduceMax": true,
	"ReduceMean": true, "ReduceSum": true, "Relu": true, "Reshape": true,
	"Resize": true, "Shape": true, "Sigmoid": true, "Slice": true,
	"Softmax": true, "Softplus": true, "SpaceToDepth": true, "Split": true,
	"Sqrt": true, "Squeeze": true, "Sub": true, "Tanh": true, "Tile": true,
	"Transpose": true, "Unsqueeze": true, "Upsample": true, "Where": true,
}

type emulatorState int

const (
	stateOpen emulatorState = iota
	stateTranslated
	stateOptimized
	stateCompiled
)

func (s emulatorState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateTranslated:
		return "translated"
	case stateOptimized:
		return "optimized"
	case stateCompiled:
		return "compiled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Emulator is an in-process Engine. It validates the graph and the
// calibration data the way the hardware SDK does and exports the source
// model annotated with the compilation results.
type Emulator struct {
	hwArch    string
	state     emulatorState
	modelName string
	model     *onnx.ModelProto
	nodes     []onnx.NodeProto
	input     onnx.ValueInfoProto

	calibImages int
	calibMin    float32
	calibMax    float32
}

// NewEmulator opens an emulator session for hwArch.
func NewEmulator(hwArch string) (Engine, error) {
	if !slices.Contains(supportedArchs, hwArch) {
		return nil, fmt.Errorf("unsupported hardware architecture %q (supported: %s)",
			hwArch, strings.Join(supportedArchs, ", "))
	}
	return &Emulator{hwArch: hwArch}, nil
}

func (e *Emulator) expect(step string, want emulatorState) error {
	if e.state != want {
		return fmt.Errorf("%w: %s needs a %s session, got %s", ErrOutOfOrder, step, want, e.state)
	}
	return nil
}

// Translate parses the model and selects the subgraph between start and end.
func (e *Emulator) Translate(ctx context.Context, modelPath, modelName string, start, end []string) error {
	if err := e.expect("translate", stateOpen); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	model, err := onnx.ParseFile(modelPath)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", modelPath, err)
	}
	g := model.Graph
	if g == nil || len(g.Nodes) == 0 {
		return errors.New("model graph has no nodes")
	}

	for _, name := range append(slices.Clone(start), end...) {
		if _, ok := g.Node(name); !ok {
			return &RecommendationError{
				Err:            fmt.Errorf("node %q not found in graph", name),
				Recommendation: "use node names from: " + strings.Join(headNames(g, 5), ", "),
			}
		}
	}

	nodes := g.Between(start, end)
	if len(nodes) == 0 {
		return fmt.Errorf("no nodes lie between start nodes %v and end nodes %v", start, end)
	}

	for i := range nodes {
		if supportedOps[nodes[i].OpType] {
			continue
		}
		rec := "end_node_names: [" + strings.Join(producersOf(nodes, &nodes[i]), ", ") + "]"
		if i == 0 {
			rec = "start the model after node " + strconv.Quote(nodeLabel(&nodes[i]))
		}
		return &RecommendationError{
			Err:            fmt.Errorf("parsing failed at node %q: operator %s is not supported", nodeLabel(&nodes[i]), nodes[i].OpType),
			Recommendation: rec,
		}
	}

	inputs := g.DataInputs()
	if len(inputs) == 0 {
		return errors.New("model graph has no inputs")
	}

	e.model = model
	e.modelName = modelName
	e.nodes = nodes
	e.input = inputs[0]
	for _, in := range inputs {
		if len(in.Dims()) == 4 {
			e.input = in
			break
		}
	}
	e.state = stateTranslated
	return nil
}

// Optimize checks the calibration batch against the model input and records
// its value range.
func (e *Emulator) Optimize(ctx context.Context, calib *tensor.RawTensor) error {
	if err := e.expect("optimize", stateTranslated); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if calib == nil {
		return errors.New("calibration batch is nil")
	}
	if calib.DType() != tensor.Float32 {
		return fmt.Errorf("calibration batch must be float32, got %s", calib.DType())
	}

	shape := calib.Shape()
	dims := e.input.Dims()
	if len(shape) != len(dims) {
		return fmt.Errorf("calibration batch has rank %d, input %q has rank %d", len(shape), e.input.Name, len(dims))
	}
	if shape[0] == 0 {
		return errors.New("calibration batch is empty")
	}
	for i := 1; i < len(dims); i++ {
		if dims[i].DimValue > 0 && int64(shape[i]) != dims[i].DimValue {
			return fmt.Errorf("calibration batch shape %v does not match input %q dimension %d (%d)",
				shape, e.input.Name, i, dims[i].DimValue)
		}
	}

	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	for _, v := range calib.AsFloat32() {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return errors.New("calibration batch contains non-finite values")
		}
		lo = min(lo, v)
		hi = max(hi, v)
	}

	e.calibImages = shape[0]
	e.calibMin, e.calibMax = lo, hi
	e.state = stateOptimized
	return nil
}

type manifest struct {
	HWArch            string     `json:"hw_arch"`
	ModelName         string     `json:"model_name"`
	Input             string     `json:"input"`
	Nodes             []string   `json:"nodes"`
	CalibrationImages int        `json:"calibration_images"`
	CalibrationRange  [2]float32 `json:"calibration_range"`
}

// Compile returns a JSON manifest standing in for the device binary.
func (e *Emulator) Compile(ctx context.Context) ([]byte, error) {
	if err := e.expect("compile", stateOptimized); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := manifest{
		HWArch:            e.hwArch,
		ModelName:         e.modelName,
		Input:             e.input.Name,
		Nodes:             make([]string, len(e.nodes)),
		CalibrationImages: e.calibImages,
		CalibrationRange:  [2]float32{e.calibMin, e.calibMax},
	}
	for i := range e.nodes {
		m.Nodes[i] = nodeLabel(&e.nodes[i])
	}

	blob, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	e.state = stateCompiled
	return blob, nil
}

// ExportRuntimeModel returns the source model annotated with the compilation
// results in its metadata properties.
func (e *Emulator) ExportRuntimeModel(ctx context.Context) (*onnx.ModelProto, error) {
	if err := e.expect("export", stateCompiled); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.model.SetMetadata(MetaHWArch, e.hwArch)
	e.model.SetMetadata(MetaModelName, e.modelName)
	e.model.SetMetadata(MetaCompiledNodes, strconv.Itoa(len(e.nodes)))
	e.model.SetMetadata(MetaCalibrationImages, strconv.Itoa(e.calibImages))
	e.model.SetMetadata(MetaCalibrationRange, fmt.Sprintf("[%g, %g]", e.calibMin, e.calibMax))
	return e.model, nil
}

// producersOf returns the labels of the nodes in nodes that feed n.
func producersOf(nodes []onnx.NodeProto, n *onnx.NodeProto) []string {
	inputs := make(map[string]bool, len(n.Inputs))
	for _, in := range n.Inputs {
		inputs[in] = true
	}

	var names []string
	for i := range nodes {
		for _, out := range nodes[i].Outputs {
			if inputs[out] {
				names = append(names, nodeLabel(&nodes[i]))
				break
			}
		}
	}
	return names
}

// nodeLabel returns the node name, or its first output for unnamed nodes.
func nodeLabel(n *onnx.NodeProto) string {
	if n.Name != "" || len(n.Outputs) == 0 {
		return n.Name
	}
	return n.Outputs[0]
}

func headNames(g *onnx.GraphProto, limit int) []string {
	names := make([]string, 0, limit)
	for i := range g.Nodes {
		if len(names) == limit {
			break
		}
		if g.Nodes[i].Name != "" {
			names = append(names, g.Nodes[i].Name)
		}
	}
	return names
}
