package tensor

import "fmt"

// Permute returns a new tensor whose dimensions are reordered by axes:
// result dimension i is source dimension axes[i].
//
// Example:
//
//	nchw, err := tensor.Permute(nhwc, 0, 3, 1, 2)
func Permute(r *RawTensor, axes ...int) (*RawTensor, error) {
	shape := r.Shape()
	ndim := len(shape)

	if len(axes) != ndim {
		return nil, fmt.Errorf("permute: axes length %d != ndim %d", len(axes), ndim)
	}
	seen := make([]bool, ndim)
	for _, ax := range axes {
		if ax < 0 || ax >= ndim {
			return nil, fmt.Errorf("permute: invalid axis %d for %dD tensor", ax, ndim)
		}
		if seen[ax] {
			return nil, fmt.Errorf("permute: duplicate axis %d", ax)
		}
		seen[ax] = true
	}

	newShape := make(Shape, ndim)
	for i, ax := range axes {
		newShape[i] = shape[ax]
	}

	result, err := NewRaw(newShape, r.DType())
	if err != nil {
		return nil, fmt.Errorf("permute: %w", err)
	}

	switch r.DType() {
	case Float32:
		permuteData(result.AsFloat32(), r.AsFloat32(), shape, axes)
	case Uint8:
		permuteData(result.AsUint8(), r.AsUint8(), shape, axes)
	default:
		return nil, fmt.Errorf("permute: unsupported dtype %s", r.DType())
	}
	return result, nil
}

func permuteData[T float32 | uint8](dst, src []T, shape Shape, axes []int) {
	ndim := len(shape)
	srcStrides := shape.ComputeStrides()

	dstShape := make(Shape, ndim)
	for i, ax := range axes {
		dstShape[i] = shape[ax]
	}
	dstStrides := dstShape.ComputeStrides()

	coords := make([]int, ndim)
	n := shape.NumElements()
	for i := 0; i < n; i++ {
		idx := i
		for dim := 0; dim < ndim; dim++ {
			coords[dim] = idx / srcStrides[dim]
			idx %= srcStrides[dim]
		}

		dstIdx := 0
		for dstDim, srcDim := range axes {
			dstIdx += coords[srcDim] * dstStrides[dstDim]
		}

		dst[dstIdx] = src[i]
	}
}
