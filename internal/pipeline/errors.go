package pipeline

import (
	"context"
	"errors"

	"github.com/born-ml/hailoconv/internal/archive"
	"github.com/born-ml/hailoconv/internal/calib"
	"github.com/born-ml/hailoconv/internal/introspect"
)

// errInternal marks a recovered panic.
var errInternal = errors.New("internal error")

const unsupportedByEngine = "The ONNX model is not supported by the Hailo SDK."

var explanations = []struct {
	err   error
	kind  string
	human string
}{
	{archive.ErrMissingInput, "MissingInput", "The archive must contain exactly one ONNX model and one JSON configuration file."},
	{archive.ErrAmbiguousInput, "AmbiguousInput", "The archive contains more than one ONNX model or more than one JSON configuration file."},
	{archive.ErrInvalidConfig, "InvalidConfig", "The JSON configuration file in the archive could not be parsed."},
	{archive.ErrUnsafePath, "UnsafePath", "The archive contains entries pointing outside of the archive."},
	{introspect.ErrNoImageInput, "NoImageInput", "The ONNX model has no image input with four dimensions."},
	{introspect.ErrAmbiguousImageInput, "AmbiguousImageInput", "The ONNX model has more than one image input; only one is supported."},
	{introspect.ErrUnresolvedDimension, "UnresolvedDimension", "The image input of the ONNX model has a dynamic size. Set it in the JSON configuration."},
	{calib.ErrImageDecode, "ImageDecodeError", "A calibration image in the archive could not be decoded."},
	{calib.ErrStatsMismatch, "StatsMismatch", "The normalization means and stds do not match the number of image channels."},
	{calib.ErrUnsupportedChannels, "UnsupportedChannels", "Only grayscale and RGB image inputs are supported."},
	{context.Canceled, "Canceled", "The conversion was interrupted."},
	{context.DeadlineExceeded, "Canceled", "The conversion timed out."},
	{errInternal, "InternalError", "The converter hit an internal error."},
}

// explain returns the taxonomy kind and a human explanation for err.
func explain(err error) (kind, human string) {
	for _, e := range explanations {
		if errors.Is(err, e.err) {
			return e.kind, e.human
		}
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Kind(), unsupportedByEngine
	}
	return "ConversionError", unsupportedByEngine
}
