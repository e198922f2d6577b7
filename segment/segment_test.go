package segment

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/yyy-OPS/SciDataExtractor/mask"
	"github.com/yyy-OPS/SciDataExtractor/raster"
)

var (
	white = color.NRGBA{255, 255, 255, 255}
	red   = color.NRGBA{230, 20, 20, 255}
	blue  = color.NRGBA{20, 40, 220, 255}
)

// chart 白底上两条粗线：红色在 10..14 行，蓝色在 40..44 行
func chart(t *testing.T) *raster.Image {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 100, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 100; x++ {
			c := white
			if x >= 5 && x < 95 {
				switch {
				case y >= 10 && y < 15:
					c = red
				case y >= 40 && y < 45:
					c = blue
				}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	im, err := raster.FromImage(img)
	if err != nil {
		t.Fatal(err)
	}
	return im
}

func blank(t *testing.T) *raster.Image {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	im, err := raster.FromImage(img)
	if err != nil {
		t.Fatal(err)
	}
	return im
}

func TestSegmentTwoLines(t *testing.T) {
	opt := DefaultOptions()
	opt.K = 2
	res, err := NewColorSegmenter().Segment(context.Background(), chart(t), opt)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Layers) != 2 {
		t.Fatalf("got %d layers, want 2 (%s)", len(res.Layers), res.Diagnostic)
	}
	if res.ValidPixels != 900 {
		t.Errorf("ValidPixels = %d, want 900", res.ValidPixels)
	}
	names := map[string]image.Rectangle{
		"red_":  image.Rect(5, 10, 95, 15),
		"blue_": image.Rect(5, 40, 95, 45),
	}
	for _, l := range res.Layers {
		var band image.Rectangle
		for prefix, r := range names {
			if strings.HasPrefix(l.Name, prefix) {
				band = r
			}
		}
		if band.Empty() {
			t.Fatalf("unexpected layer name %q", l.Name)
		}
		if l.PixelCount < 440 || l.PixelCount > 450 {
			t.Errorf("%s: PixelCount = %d", l.Name, l.PixelCount)
		}
		for _, p := range l.Mask.Points() {
			if !p.In(band) {
				t.Fatalf("%s: pixel %v outside its band", l.Name, p)
			}
		}
		if want := float64(l.PixelCount) / 6000 * 100; l.Percentage < want-0.01 || l.Percentage > want+0.01 {
			t.Errorf("%s: Percentage = %v, want ~%v", l.Name, l.Percentage, want)
		}
	}
	if res.Layers[0].PixelCount < res.Layers[1].PixelCount {
		t.Error("layers not sorted by pixel count")
	}
}

func TestSegmentBlankImage(t *testing.T) {
	res, err := NewColorSegmenter().Segment(context.Background(), blank(t), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Layers) != 0 || res.Diagnostic == "" {
		t.Errorf("blank image: %d layers, diagnostic %q", len(res.Layers), res.Diagnostic)
	}
}

func TestSegmentWithoutExclusion(t *testing.T) {
	opt := DefaultOptions()
	opt.K = 1
	opt.ExcludeBackground = false
	res, err := NewColorSegmenter().Segment(context.Background(), blank(t), opt)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Layers) != 1 || res.Layers[0].Percentage != 100 {
		t.Fatalf("layers = %+v", res.Layers)
	}
	if res.Layers[0].Name != "white_1" {
		t.Errorf("name = %q, want white_1", res.Layers[0].Name)
	}
}

func TestSegmentInvalidOptions(t *testing.T) {
	opt := DefaultOptions()
	opt.K = 0
	if _, err := NewColorSegmenter().Segment(context.Background(), blank(t), opt); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
	opt = DefaultOptions()
	opt.KernelSize = 2
	if _, err := NewColorSegmenter().Segment(context.Background(), blank(t), opt); !errors.Is(err, mask.ErrInvalidKernel) {
		t.Errorf("expected ErrInvalidKernel, got %v", err)
	}
}

func TestSegmentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewColorSegmenter().Segment(ctx, chart(t), DefaultOptions()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestHueName(t *testing.T) {
	tests := []struct {
		hsv  raster.HSV
		want string
	}{
		{raster.HSV{H: 0, S: 255, V: 255}, "red"},
		{raster.HSV{H: 175, S: 200, V: 200}, "red"},
		{raster.HSV{H: 60, S: 255, V: 255}, "green"},
		{raster.HSV{H: 120, S: 255, V: 255}, "blue"},
		{raster.HSV{H: 160, S: 60, V: 200}, "pink"},
		{raster.HSV{H: 0, S: 0, V: 20}, "black"},
		{raster.HSV{H: 0, S: 10, V: 128}, "gray"},
		{raster.HSV{H: 60, S: 50, V: 255}, "unknown"},
	}
	for _, tt := range tests {
		if got := HueName(tt.hsv); got != tt.want {
			t.Errorf("HueName(%+v) = %q, want %q", tt.hsv, got, tt.want)
		}
	}
}

func TestNewColor(t *testing.T) {
	c := NewColor(raster.HSV{H: 120, S: 255, V: 255})
	if c.RGB != [3]uint8{0, 0, 255} || c.Hex != "#0000ff" {
		t.Errorf("NewColor = %+v", c)
	}
}

func TestRangeMask(t *testing.T) {
	im := chart(t)
	target, err := im.SampleHSV(50, 12, 2)
	if err != nil {
		t.Fatal(err)
	}
	m, err := RangeMask(im, target, 20)
	if err != nil {
		t.Fatal(err)
	}
	band := image.Rect(5, 10, 95, 15)
	for _, p := range m.Points() {
		if !p.In(band) {
			t.Fatalf("pixel %v outside red band", p)
		}
	}
	if m.Count() < 400 {
		t.Errorf("Count = %d, want most of the band", m.Count())
	}
}

func TestColorRegion(t *testing.T) {
	im := chart(t)
	m, err := NewColorRegion(20).SegmentAt(context.Background(), im, image.Pt(50, 42))
	if err != nil {
		t.Fatal(err)
	}
	if m.Count() != 450 || m.BoundingBox() != image.Rect(5, 40, 95, 45) {
		t.Errorf("region count %d bbox %v", m.Count(), m.BoundingBox())
	}
	if _, err := NewColorRegion(20).SegmentAt(context.Background(), im, image.Pt(100, 0)); !errors.Is(err, ErrPointOutside) {
		t.Errorf("expected ErrPointOutside, got %v", err)
	}
}

type stubSegmenter struct {
	m     *mask.Mask
	err   error
	calls int
}

func (s *stubSegmenter) SegmentAt(context.Context, *raster.Image, image.Point) (*mask.Mask, error) {
	s.calls++
	return s.m, s.err
}

func TestWithFallback(t *testing.T) {
	im := chart(t)
	hit := mask.FromFunc(100, 60, func(x, y int) bool { return x == 1 })

	primary := &stubSegmenter{err: errors.New("model unavailable")}
	secondary := &stubSegmenter{m: hit}
	m, err := WithFallback(primary, secondary).SegmentAt(context.Background(), im, image.Pt(1, 1))
	if err != nil || !m.Equal(hit) || secondary.calls != 1 {
		t.Errorf("fallback not used: err=%v calls=%d", err, secondary.calls)
	}

	primary = &stubSegmenter{m: mask.New(100, 60)}
	secondary = &stubSegmenter{m: hit}
	if _, err := WithFallback(primary, secondary).SegmentAt(context.Background(), im, image.Pt(1, 1)); err != nil || secondary.calls != 1 {
		t.Errorf("empty primary result did not fall back: err=%v", err)
	}

	primary = &stubSegmenter{m: hit}
	secondary = &stubSegmenter{}
	if _, err := WithFallback(primary, secondary).SegmentAt(context.Background(), im, image.Pt(1, 1)); err != nil || secondary.calls != 0 {
		t.Errorf("secondary called although primary succeeded")
	}

	primary = &stubSegmenter{err: context.Canceled}
	secondary = &stubSegmenter{m: hit}
	if _, err := WithFallback(primary, secondary).SegmentAt(context.Background(), im, image.Pt(1, 1)); !errors.Is(err, context.Canceled) || secondary.calls != 0 {
		t.Errorf("cancellation fell back: err=%v", err)
	}
}

func TestAnalyzeComplexity(t *testing.T) {
	flat, err := blank(t).Mat()
	if err != nil {
		t.Fatal(err)
	}
	defer flat.Close()
	c := AnalyzeComplexity(flat)
	if c.Level != LevelSimple || c.EdgeDensity != 0 {
		t.Errorf("blank image: %+v", c)
	}

	tests := []struct {
		level string
		base  int
		want  int
	}{
		{LevelSimple, 5, 3},
		{LevelSimple, 4, 3},
		{LevelMedium, 5, 5},
		{LevelComplex, 5, 7},
	}
	for _, tt := range tests {
		if got := (Complexity{Level: tt.level}).Iterations(tt.base); got != tt.want {
			t.Errorf("Iterations(%s, %d) = %d, want %d", tt.level, tt.base, got, tt.want)
		}
	}
}
