package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/yyy-OPS/SciDataExtractor/config"
	"github.com/yyy-OPS/SciDataExtractor/mask"
	"github.com/yyy-OPS/SciDataExtractor/model"
	"github.com/yyy-OPS/SciDataExtractor/raster"
	"github.com/yyy-OPS/SciDataExtractor/segment"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*model.AutoLayerResult
	sets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*model.AutoLayerResult)}
}

func (c *memoryCache) GetAutoLayers(_ context.Context, key string) (*model.AutoLayerResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key], nil
}

func (c *memoryCache) SetAutoLayers(_ context.Context, key string, result *model.AutoLayerResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = result
	c.sets++
	return nil
}

// twoLines 白底上的红色、蓝色粗线，每条 90x5 像素
func twoLines(t *testing.T) *raster.Image {
	return newImage(t, 100, 60, func(x, y int) color.NRGBA {
		if x >= 5 && x < 95 {
			switch {
			case y >= 10 && y < 15:
				return color.NRGBA{230, 20, 20, 255}
			case y >= 40 && y < 45:
				return color.NRGBA{20, 40, 220, 255}
			}
		}
		return color.NRGBA{255, 255, 255, 255}
	})
}

func newLayerService(t *testing.T, cache LayerCache) (*LayerService, *Session) {
	t.Helper()
	cfg := config.Default()
	cfg.GrabCut.Enabled = false
	st := NewSessionStore(&cfg.Session)
	q := NewWorkQueue(cfg.GrabCut.MaxConcurrent, time.Second)
	svc := NewLayerService(st, q, &cfg.Segment, &cfg.GrabCut, cache)
	return svc, newSession(t, st, twoLines(t))
}

func intPtr(v int) *int { return &v }

func TestAutoLayersCache(t *testing.T) {
	cache := newMemoryCache()
	svc, sess := newLayerService(t, cache)
	ctx := context.Background()
	req := model.AutoLayersRequest{K: intPtr(2)}

	first, err := svc.AutoLayers(ctx, sess.ID, req)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached || len(first.Layers) != 2 {
		t.Fatalf("unexpected first result: cached=%v layers=%d", first.Cached, len(first.Layers))
	}
	for _, l := range first.Layers {
		if l.Source != SourceAuto || l.Opacity != defaultOpacity || !l.Visible || l.Mask == "" {
			t.Errorf("unexpected layer %+v", l)
		}
		if l.PixelCount < 440 || l.PixelCount > 450 {
			t.Errorf("layer %s has %d pixels", l.Name, l.PixelCount)
		}
	}
	if cache.sets != 1 {
		t.Errorf("cache written %d times, want 1", cache.sets)
	}

	req.Replace = true
	second, err := svc.AutoLayers(ctx, sess.ID, req)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached || len(second.Layers) != 2 {
		t.Fatalf("unexpected second result: cached=%v layers=%d", second.Cached, len(second.Layers))
	}
	if cache.sets != 1 {
		t.Errorf("cache written %d times, want 1", cache.sets)
	}
	if got := len(sess.Layers()); got != 2 {
		t.Errorf("session has %d layers after replace, want 2", got)
	}
	for i := range second.Layers {
		if second.Layers[i].ID == first.Layers[i].ID {
			t.Errorf("cached layer reused id %s", second.Layers[i].ID)
		}
		if second.Layers[i].PixelCount != first.Layers[i].PixelCount {
			t.Errorf("cached layer %d has %d pixels, want %d", i, second.Layers[i].PixelCount, first.Layers[i].PixelCount)
		}
	}

	// 参数不同则不命中
	third, err := svc.AutoLayers(ctx, sess.ID, model.AutoLayersRequest{K: intPtr(3)})
	if err != nil {
		t.Fatal(err)
	}
	if third.Cached {
		t.Error("different k should not hit the cache")
	}
}

func TestAutoLayersErrors(t *testing.T) {
	svc, sess := newLayerService(t, nil)
	if _, err := svc.AutoLayers(context.Background(), "missing", model.AutoLayersRequest{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.AutoLayers(context.Background(), sess.ID, model.AutoLayersRequest{K: intPtr(0)}); !errors.Is(err, segment.ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestSampleColor(t *testing.T) {
	svc, sess := newLayerService(t, nil)
	c, err := svc.SampleColor(sess.ID, model.SampleColorRequest{X: 50, Y: 12})
	if err != nil {
		t.Fatal(err)
	}
	if name := segment.HueName(c.HSV); name != "red" {
		t.Errorf("sampled %s (%+v), want red", name, c.HSV)
	}
	if _, err := svc.SampleColor(sess.ID, model.SampleColorRequest{X: 500, Y: 12}); !errors.Is(err, segment.ErrPointOutside) {
		t.Errorf("expected ErrPointOutside, got %v", err)
	}
}

func TestCreateLayer(t *testing.T) {
	svc, sess := newLayerService(t, nil)
	ctx := context.Background()

	red := raster.HSV{H: 0, S: 233, V: 230}
	l, err := svc.CreateLayer(ctx, sess.ID, model.CreateLayerRequest{Color: &red})
	if err != nil {
		t.Fatal(err)
	}
	if l.Source != SourceColor || l.Name != "red_color" || l.Mask.Count() < 400 || l.Mask.Count() > 450 {
		t.Errorf("unexpected color layer: source=%s name=%s pixels=%d", l.Source, l.Name, l.Mask.Count())
	}

	m := mask.FromFunc(100, 60, func(x, y int) bool { return x < 10 })
	data, err := mask.EncodeBase64(m)
	if err != nil {
		t.Fatal(err)
	}
	l, err = svc.CreateLayer(ctx, sess.ID, model.CreateLayerRequest{
		Name: "manual",
		Mask: &model.MaskPayload{Width: 100, Height: 60, Data: data},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !l.Mask.Equal(m) || l.Name != "manual" {
		t.Errorf("uploaded mask not preserved")
	}

	_, err = svc.CreateLayer(ctx, sess.ID, model.CreateLayerRequest{
		Mask: &model.MaskPayload{Width: 50, Height: 60, Data: data},
	})
	if !errors.Is(err, mask.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := svc.CreateLayer(ctx, sess.ID, model.CreateLayerRequest{}); !errors.Is(err, ErrNoLayerSource) {
		t.Errorf("expected ErrNoLayerSource, got %v", err)
	}
}

func TestSmartSegmentColorFallback(t *testing.T) {
	svc, sess := newLayerService(t, nil)
	ctx := context.Background()

	// GrabCut 关闭时 auto 退回颜色泛洪
	l, err := svc.SmartSegment(ctx, sess.ID, model.SmartSegmentRequest{X: 50, Y: 42, Method: "auto"})
	if err != nil {
		t.Fatal(err)
	}
	if l.Source != SourceSmart || l.Mask.Count() != 450 {
		t.Errorf("unexpected layer: source=%s pixels=%d", l.Source, l.Mask.Count())
	}
	if got, want := l.Mask.BoundingBox(), image.Rect(5, 40, 95, 45); got != want {
		t.Errorf("bbox = %v, want %v", got, want)
	}
	if name := segment.HueName(l.Color.HSV); name != "blue" {
		t.Errorf("layer color %s, want blue", name)
	}

	if _, err := svc.SmartSegment(ctx, sess.ID, model.SmartSegmentRequest{X: -1, Y: 0, Method: "color"}); !errors.Is(err, segment.ErrPointOutside) {
		t.Errorf("expected ErrPointOutside, got %v", err)
	}
}

func TestApplyOp(t *testing.T) {
	svc, sess := newLayerService(t, nil)
	base, err := sess.AddLayer(Layer{Source: SourceMask, Mask: mask.FromFunc(100, 60, func(x, y int) bool {
		return x >= 20 && x < 30 && y >= 20 && y < 30
	})})
	if err != nil {
		t.Fatal(err)
	}
	other, err := sess.AddLayer(Layer{Source: SourceMask, Mask: mask.FromFunc(100, 60, func(x, y int) bool {
		return x >= 25 && x < 35 && y >= 20 && y < 30
	})})
	if err != nil {
		t.Fatal(err)
	}

	l, err := svc.ApplyOp(sess.ID, base.ID, model.MaskOpRequest{Op: "dilate", KernelSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	// 3x3 椭圆核即十字形，正方形膨胀后缺四个角
	if l.Mask.Count() != 140 || l.Version != 2 {
		t.Errorf("dilate: pixels=%d version=%d, want 140 and 2", l.Mask.Count(), l.Version)
	}

	v := int64(2)
	l, err = svc.ApplyOp(sess.ID, base.ID, model.MaskOpRequest{Op: "erode", ExpectedVersion: &v})
	if err != nil {
		t.Fatal(err)
	}
	if l.Mask.Count() != 100 {
		t.Errorf("erode after dilate: %d pixels, want 100", l.Mask.Count())
	}

	l, err = svc.ApplyOp(sess.ID, base.ID, model.MaskOpRequest{Op: "union", OperandLayer: other.ID})
	if err != nil {
		t.Fatal(err)
	}
	if l.Mask.Count() != 150 {
		t.Errorf("union: %d pixels, want 150", l.Mask.Count())
	}

	data, err := mask.EncodeBase64(other.Mask)
	if err != nil {
		t.Fatal(err)
	}
	l, err = svc.ApplyOp(sess.ID, base.ID, model.MaskOpRequest{
		Op:          "subtract",
		OperandMask: &model.MaskPayload{Width: 100, Height: 60, Data: data},
	})
	if err != nil {
		t.Fatal(err)
	}
	if l.Mask.Count() != 50 {
		t.Errorf("subtract: %d pixels, want 50", l.Mask.Count())
	}

	tests := []struct {
		name string
		req  model.MaskOpRequest
		want error
	}{
		{"unknown op", model.MaskOpRequest{Op: "blur"}, mask.ErrUnknownOp},
		{"missing operand", model.MaskOpRequest{Op: "intersect"}, ErrMissingOperand},
		{"even kernel", model.MaskOpRequest{Op: "dilate", KernelSize: 4}, mask.ErrInvalidKernel},
		{"stale version", model.MaskOpRequest{Op: "dilate", ExpectedVersion: &v}, ErrVersionConflict},
		{"missing operand layer", model.MaskOpRequest{Op: "union", OperandLayer: "nope"}, ErrLayerNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ApplyOp(sess.ID, base.ID, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestApplyStrokes(t *testing.T) {
	svc, sess := newLayerService(t, nil)
	base, err := sess.AddLayer(Layer{Source: SourceMask, Mask: mask.New(100, 60)})
	if err != nil {
		t.Fatal(err)
	}

	l, err := svc.ApplyStrokes(sess.ID, base.ID, model.StrokesRequest{Strokes: []model.Stroke{
		{Points: []model.Point{{X: 10, Y: 30}, {X: 90, Y: 30}}, Radius: 2},
	}})
	if err != nil {
		t.Fatal(err)
	}
	painted := l.Mask.Count()
	if painted == 0 || !l.Mask.At(50, 30) {
		t.Fatalf("brush stroke not applied: %d pixels", painted)
	}

	l, err = svc.ApplyStrokes(sess.ID, base.ID, model.StrokesRequest{Strokes: []model.Stroke{
		{Points: []model.Point{{X: 50, Y: 20}, {X: 50, Y: 40}}, Radius: 3, Erase: true},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if l.Mask.At(50, 30) || l.Mask.Count() >= painted {
		t.Errorf("eraser stroke not applied")
	}
	if l.Version != 3 {
		t.Errorf("version = %d, want 3", l.Version)
	}
}

func TestRedrawCurve(t *testing.T) {
	svc, sess := newLayerService(t, nil)
	old := mask.FromFunc(100, 60, func(x, y int) bool { return y == 40 && x >= 5 && x < 95 })
	base, err := sess.AddLayer(Layer{Source: SourceMask, Mask: old})
	if err != nil {
		t.Fatal(err)
	}

	v := base.Version
	l, err := svc.RedrawCurve(sess.ID, base.ID, model.CurveRequest{
		Points:          []model.Point{{X: 10, Y: 10}, {X: 40, Y: 10}, {X: 40, Y: 30}},
		Radius:          0.5,
		ExpectedVersion: &v,
	})
	if err != nil {
		t.Fatal(err)
	}
	for x := 10; x <= 40; x++ {
		if !l.Mask.At(x, 10) {
			t.Errorf("curve pixel (%d,10) not set", x)
		}
	}
	if !l.Mask.At(40, 20) || !l.Mask.At(40, 30) {
		t.Error("second segment missing")
	}
	if l.Mask.At(50, 40) || l.Mask.At(20, 20) {
		t.Error("old mask survived the redraw")
	}
	if l.Version != 2 {
		t.Errorf("version = %d, want 2", l.Version)
	}

	if _, err := svc.RedrawCurve(sess.ID, base.ID, model.CurveRequest{
		Points:          []model.Point{{X: 1, Y: 1}},
		ExpectedVersion: &v,
	}); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
	if _, err := svc.RedrawCurve(sess.ID, base.ID, model.CurveRequest{
		Points: []model.Point{{X: 500, Y: 500}, {X: 600, Y: 500}},
	}); !errors.Is(err, mask.ErrEmptyPayload) {
		t.Errorf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestUpdateAndDeleteLayer(t *testing.T) {
	svc, sess := newLayerService(t, nil)
	base, err := sess.AddLayer(Layer{Name: "curve", Mask: mask.New(100, 60), Visible: true, Opacity: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	name, hidden, opacity := "renamed", false, 0.8
	l, err := svc.UpdateLayer(sess.ID, base.ID, model.UpdateLayerRequest{Name: &name, Visible: &hidden, Opacity: &opacity})
	if err != nil {
		t.Fatal(err)
	}
	if l.Name != name || l.Visible || l.Opacity != opacity {
		t.Errorf("unexpected layer %+v", l)
	}
	if err := svc.DeleteLayer(sess.ID, base.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteLayer(sess.ID, base.ID); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("expected ErrLayerNotFound, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	svc, sess := newLayerService(t, nil)
	if _, err := svc.AutoLayers(context.Background(), sess.ID, model.AutoLayersRequest{K: intPtr(2)}); err != nil {
		t.Fatal(err)
	}
	png, err := svc.Preview(sess.ID, sess.Layers()[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")) {
		t.Errorf("preview is not a PNG")
	}
}
