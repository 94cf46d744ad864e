// Package calib builds the calibration batch handed to the optimizer: decoded
// images resized to the model input, normalized per channel and laid out in
// the model's memory order.
package calib

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	// Registered decoders.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/born-ml/hailoconv/internal/introspect"
	"github.com/born-ml/hailoconv/internal/parallel"
	"github.com/born-ml/hailoconv/internal/tensor"
)

var (
	// ErrImageDecode is returned when a calibration image cannot be read or decoded.
	ErrImageDecode = errors.New("failed to decode calibration image")
	// ErrStatsMismatch is returned when means or stds cannot be broadcast over the channels.
	ErrStatsMismatch = errors.New("normalization statistics do not match channel count")
	// ErrUnsupportedChannels is returned for channel counts other than 1 and 3.
	ErrUnsupportedChannels = errors.New("unsupported channel count")
)

//go:embed samples/*.png
var samples embed.FS

// Batch is a calibration tensor ready for the optimizer.
type Batch struct {
	Tensor        *tensor.RawTensor // [N,C,H,W] or [N,H,W,C], float32
	ChannelsFirst bool
	Fallback      bool     // bundled sample images were used
	Sources       []string // image paths in batch order
}

// Len returns the number of images in the batch.
func (b *Batch) Len() int {
	return b.Tensor.Shape()[0]
}

// Builder turns image files into a normalized calibration batch.
type Builder struct {
	height, width, channels int
	channelsFirst           bool
	stats                   introspect.Stats
	fallback                fs.FS
	workers                 parallel.Config
}

// NewBuilder returns a builder for the given image input description.
// The description must have resolved dimensions.
func NewBuilder(info introspect.IOInfo) *Builder {
	return &Builder{
		height:        info.Height.Int(),
		width:         info.Width.Int(),
		channels:      info.Channels.Int(),
		channelsFirst: info.ChannelsFirst,
		stats:         info.Stats,
		fallback:      samples,
		workers:       parallel.DefaultConfig(),
	}
}

// WithFallback replaces the bundled sample images used when no path is given.
// Every *.png file under the "samples" directory of fsys is used.
func (b *Builder) WithFallback(fsys fs.FS) *Builder {
	b.fallback = fsys
	return b
}

// WithWorkers sets how many images are decoded concurrently.
func (b *Builder) WithWorkers(n int) *Builder {
	b.workers = parallel.Config{NumWorkers: n}
	return b
}

// Build decodes, resizes and normalizes every image in paths.
// An empty path list selects the fallback sample set. Any failing image
// aborts the build; no partial batch is returned.
func (b *Builder) Build(ctx context.Context, paths []string) (*Batch, error) {
	if b.channels != 1 && b.channels != 3 {
		return nil, fmt.Errorf("%w: %d (want 1 or 3)", ErrUnsupportedChannels, b.channels)
	}
	if b.height <= 0 || b.width <= 0 {
		return nil, fmt.Errorf("invalid calibration size %dx%d", b.width, b.height)
	}

	means, err := broadcastStat(b.stats.Means, b.channels)
	if err != nil {
		return nil, fmt.Errorf("%w: means: %w", ErrStatsMismatch, err)
	}
	stds, err := broadcastStat(b.stats.Stds, b.channels)
	if err != nil {
		return nil, fmt.Errorf("%w: stds: %w", ErrStatsMismatch, err)
	}
	for c := range stds {
		if !finite(means[c]) {
			return nil, fmt.Errorf("%w: mean of channel %d is %v", ErrStatsMismatch, c, means[c])
		}
		if stds[c] == 0 || !finite(stds[c]) {
			return nil, fmt.Errorf("%w: std of channel %d is %v", ErrStatsMismatch, c, stds[c])
		}
	}

	open := osOpen
	fallback := len(paths) == 0
	if fallback {
		paths, err = fs.Glob(b.fallback, "samples/*.png")
		if err != nil {
			return nil, fmt.Errorf("failed to list fallback images: %w", err)
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("%w: no fallback images available", ErrImageDecode)
		}
		open = b.fallback.Open
	}

	nhwc, err := tensor.NewRaw(tensor.Shape{len(paths), b.height, b.width, b.channels}, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate calibration tensor: %w", err)
	}
	data := nhwc.AsFloat32()
	imageSize := b.height * b.width * b.channels

	// Each image owns a disjoint slice of the batch.
	err = parallel.For(ctx, len(paths), b.workers, func(i int) error {
		img, err := decode(open, paths[i])
		if err != nil {
			return err
		}
		b.fill(data[i*imageSize:(i+1)*imageSize], img)
		return nil
	})
	if err != nil {
		nhwc.Release()
		return nil, err
	}

	normalize(data, means, stds)

	batch := &Batch{Tensor: nhwc, Fallback: fallback, Sources: paths}
	if b.channelsFirst {
		nchw, err := tensor.Permute(nhwc, 0, 3, 1, 2)
		if err != nil {
			nhwc.Release()
			return nil, fmt.Errorf("failed to permute calibration batch: %w", err)
		}
		nhwc.Release()
		batch.Tensor = nchw
		batch.ChannelsFirst = true
	}
	return batch, nil
}

func osOpen(name string) (fs.File, error) {
	return os.Open(name)
}

func decode(open func(string) (fs.File, error), name string) (image.Image, error) {
	f, err := open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrImageDecode, filepath.Base(name), err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrImageDecode, filepath.Base(name), err)
	}
	return img, nil
}

// fill writes one resized image into dst in HWC order with raw 0-255 values.
func (b *Builder) fill(dst []float32, src image.Image) {
	rect := image.Rect(0, 0, b.width, b.height)

	if b.channels == 1 {
		gray := image.NewGray(src.Bounds())
		draw.Draw(gray, gray.Bounds(), src, src.Bounds().Min, draw.Src)
		out := image.NewGray(rect)
		draw.BiLinear.Scale(out, rect, gray, gray.Bounds(), draw.Src, nil)
		for y := 0; y < b.height; y++ {
			row := out.Pix[y*out.Stride : y*out.Stride+b.width]
			for x, v := range row {
				dst[y*b.width+x] = float32(v)
			}
		}
		return
	}

	out := image.NewNRGBA(rect)
	draw.BiLinear.Scale(out, rect, src, src.Bounds(), draw.Src, nil)
	for y := 0; y < b.height; y++ {
		row := out.Pix[y*out.Stride : y*out.Stride+4*b.width]
		for x := 0; x < b.width; x++ {
			o := (y*b.width + x) * 3
			dst[o] = float32(row[4*x])
			dst[o+1] = float32(row[4*x+1])
			dst[o+2] = float32(row[4*x+2])
		}
	}
}

// broadcastStat expands a statistic to one value per channel using NumPy
// broadcasting rules. The result must keep the channel count unchanged.
func broadcastStat(values []float32, channels int) ([]float32, error) {
	shape, _, err := tensor.BroadcastShapes(tensor.Shape{channels}, tensor.Shape{len(values)})
	if err != nil {
		return nil, err
	}
	if !shape.Equal(tensor.Shape{channels}) {
		return nil, fmt.Errorf("%d values for %d channels", len(values), channels)
	}

	out := make([]float32, channels)
	for c := range out {
		if len(values) == 1 {
			out[c] = values[0]
		} else {
			out[c] = values[c]
		}
	}
	return out, nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// normalize applies (x - mean[c]) / std[c] over a channels-last buffer.
func normalize(data, means, stds []float32) {
	c := len(means)
	for i := range data {
		ch := i % c
		data[i] = (data[i] - means[ch]) / stds[ch]
	}
}
