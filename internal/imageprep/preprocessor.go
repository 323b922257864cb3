// Package imageprep decodes photos into fixed-size pixel tensors for the classifier.
package imageprep

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned when an image cannot be opened or decoded.
var ErrDecode = errors.New("image decode failed")

// ErrTooLarge is returned, before any pixel data is decoded, for images whose
// declared dimensions exceed the pixel limit. It wraps ErrDecode.
var ErrTooLarge = fmt.Errorf("%w: image exceeds pixel limit", ErrDecode)

// Layout is the memory order of the output tensor.
type Layout string

const (
	// LayoutNHWC stores pixels row-major with interleaved RGB channels.
	LayoutNHWC Layout = "nhwc"
	// LayoutNCHW stores one full plane per channel.
	LayoutNCHW Layout = "nchw"
)

const (
	channels            = 3
	defaultInputSize    = 224
	defaultMaxDecodeDim = 1024
	// DefaultMaxPixels admits 50 MP phone photos.
	DefaultMaxPixels = 50_000_000
)

// Tensor is a preprocessed image ready for inference.
type Tensor struct {
	Data     []float32
	Size     int
	Channels int
	Layout   Layout
}

// Shape returns the batch-of-one tensor shape in the tensor's layout.
func (t *Tensor) Shape() []int64 {
	if t.Layout == LayoutNCHW {
		return []int64{1, int64(t.Channels), int64(t.Size), int64(t.Size)}
	}
	return []int64{1, int64(t.Size), int64(t.Size), int64(t.Channels)}
}

// Options configures a Preprocessor. Zero values take defaults.
type Options struct {
	InputSize    int
	MaxDecodeDim int
	Layout       Layout
	// ScaleToUnit divides pixel values by 255. When false, values are raw 0-255
	// and normalization is left to the network.
	ScaleToUnit bool
	// MaxPixels caps width*height of an image before it is decoded. Go's
	// decoders always decode at full resolution, so this bounds the decode
	// allocation. Zero takes DefaultMaxPixels.
	MaxPixels int64
}

// Preprocessor turns image sources into tensors. It is stateless and safe for concurrent use.
type Preprocessor struct {
	inputSize    int
	maxDecodeDim int
	layout       Layout
	scaleToUnit  bool
	maxPixels    int64
}

// New returns a preprocessor with the given options.
func New(opts Options) *Preprocessor {
	p := &Preprocessor{
		inputSize:    opts.InputSize,
		maxDecodeDim: opts.MaxDecodeDim,
		layout:       opts.Layout,
		scaleToUnit:  opts.ScaleToUnit,
		maxPixels:    opts.MaxPixels,
	}
	if p.inputSize <= 0 {
		p.inputSize = defaultInputSize
	}
	if p.maxDecodeDim <= 0 {
		p.maxDecodeDim = defaultMaxDecodeDim
	}
	if p.layout == "" {
		p.layout = LayoutNHWC
	}
	if p.maxPixels <= 0 {
		p.maxPixels = DefaultMaxPixels
	}
	return p
}

// InputSize returns the output edge length.
func (p *Preprocessor) InputSize() int { return p.inputSize }

// Process decodes src, center-crops it to a square and resizes it to the input size.
func (p *Preprocessor) Process(ctx context.Context, src Source) (*Tensor, error) {
	img, err := p.decode(src)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	square := CenterCrop(img)
	dst := image.NewNRGBA(image.Rect(0, 0, p.inputSize, p.inputSize))
	draw.BiLinear.Scale(dst, dst.Bounds(), square, square.Bounds(), draw.Src, nil)
	return p.toTensor(dst), nil
}

// decode reads the bounds first, refuses images over the pixel limit, picks a
// power-of-two sample factor so both sides fit in maxDecodeDim, then decodes and
// reduces by that factor.
func (p *Preprocessor) decode(src Source) (image.Image, error) {
	w, h, err := readBounds(src)
	if err != nil || w <= 0 || h <= 0 {
		// Bounds unreadable; fall back to a single full decode.
		return decodeFull(src)
	}
	if int64(w)*int64(h) > p.maxPixels {
		return nil, fmt.Errorf("%w: %s is %dx%d, limit %d pixels", ErrTooLarge, src, w, h, p.maxPixels)
	}
	sample := SampleFactor(w, h, p.maxDecodeDim)
	img, err := decodeFull(src)
	if err != nil {
		return nil, err
	}
	if sample == 1 {
		return img, nil
	}
	b := img.Bounds()
	tw, th := b.Dx()/sample, b.Dy()/sample
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	reduced := image.NewNRGBA(image.Rect(0, 0, tw, th))
	draw.ApproxBiLinear.Scale(reduced, reduced.Bounds(), img, b, draw.Src, nil)
	return reduced, nil
}

func readBounds(src Source) (int, int, error) {
	rc, err := src.Open()
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()
	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func decodeFull(src Source) (image.Image, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDecode, src, err)
	}
	defer rc.Close()
	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, src, err)
	}
	return img, nil
}

// SampleFactor returns the smallest power of two f such that w/f and h/f are
// both at most maxDim.
func SampleFactor(w, h, maxDim int) int {
	sample := 1
	if maxDim <= 0 {
		return sample
	}
	for w > maxDim || h > maxDim {
		sample *= 2
		w /= 2
		h /= 2
	}
	return sample
}

// CenterCrop returns the largest centered square of img.
func CenterCrop(img image.Image) image.Image {
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	rect := image.Rect(x0, y0, x0+side, y0+side)
	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, side, side))
	draw.Copy(dst, image.Point{}, img, rect, draw.Src, nil)
	return dst
}

func (p *Preprocessor) toTensor(img *image.NRGBA) *Tensor {
	n := p.inputSize
	data := make([]float32, n*n*channels)
	scale := float32(1)
	if p.scaleToUnit {
		scale = 1.0 / 255
	}
	plane := n * n
	for y := 0; y < n; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < n; x++ {
			px := row[x*4 : x*4+3]
			for c := 0; c < channels; c++ {
				v := float32(px[c]) * scale
				if p.layout == LayoutNCHW {
					data[c*plane+y*n+x] = v
				} else {
					data[(y*n+x)*channels+c] = v
				}
			}
		}
	}
	return &Tensor{Data: data, Size: n, Channels: channels, Layout: p.layout}
}
