package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/ppiankov/thumbsieve/internal/classify"
	"github.com/ppiankov/thumbsieve/internal/model"
)

// pattern draws a distinct synthetic thumbnail per seed: a few discs of
// random shade and position over a mid-grey ground
func pattern(seed int) image.Image {
	rng := rand.New(rand.NewSource(int64(seed) + 1))
	type disc struct {
		cx, cy, r int
		v         uint8
	}
	discs := make([]disc, 6)
	for i := range discs {
		discs[i] = disc{cx: rng.Intn(64), cy: rng.Intn(64), r: 6 + rng.Intn(14), v: uint8(rng.Intn(256))}
	}

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(128)
			for _, d := range discs {
				dx, dy := x-d.cx, y-d.cy
				if dx*dx+dy*dy <= d.r*d.r {
					v = d.v
				}
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func pngBytes(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// fakeImages serves preset images by URL
type fakeImages struct {
	mu     sync.Mutex
	images map[string]image.Image
	calls  atomic.Int32
}

func newFakeImages() *fakeImages {
	return &fakeImages{images: make(map[string]image.Image)}
}

func (f *fakeImages) add(url string, img image.Image) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[url] = img
}

func (f *fakeImages) FetchImage(ctx context.Context, rawURL string) (*FetchedImage, error) {
	f.calls.Add(1)
	f.mu.Lock()
	img, ok := f.images[rawURL]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: 404", ErrBadStatus)
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return &FetchedImage{Data: buf.Bytes(), MIMEType: "image/png", Format: "png", Image: img, FinalURL: rawURL}, nil
}

// scriptedClassifier answers per call and counts calls
type scriptedClassifier struct {
	multiplicity classify.Multiplicity
	attrs        model.AttributeSet
	multErr      error
	attrErr      error
	panicOnAttrs bool
	multCalls    atomic.Int32
	extractCalls atomic.Int32
}

func (s *scriptedClassifier) CheckMultiplicity(ctx context.Context, img classify.Image) (classify.Multiplicity, error) {
	s.multCalls.Add(1)
	if s.multErr != nil {
		return "", s.multErr
	}
	return s.multiplicity, nil
}

func (s *scriptedClassifier) ExtractAttributes(ctx context.Context, img classify.Image) (model.AttributeSet, error) {
	s.extractCalls.Add(1)
	if s.panicOnAttrs {
		panic("nil map in parser")
	}
	if s.attrErr != nil {
		return model.AttributeSet{}, s.attrErr
	}
	return s.attrs, nil
}

func (s *scriptedClassifier) calls() int {
	return int(s.multCalls.Load() + s.extractCalls.Load())
}

func watchAttrs() model.AttributeSet {
	return model.AttributeSet{
		CaseShape:   "round",
		CaseColor:   "gold",
		DialColor:   "white",
		DialMarkers: "roman",
		StrapType:   "leather",
		StrapColor:  "brown",
	}
}

// emptyImage has zero bounds
type emptyImage struct{}

func (emptyImage) ColorModel() color.Model { return color.RGBAModel }
func (emptyImage) Bounds() image.Rectangle { return image.Rectangle{} }
func (emptyImage) At(x, y int) color.Color { return color.RGBA{} }
