package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/yyy-OPS/SciDataExtractor/config"
	"github.com/yyy-OPS/SciDataExtractor/mask"
	"github.com/yyy-OPS/SciDataExtractor/raster"
)

func newImage(t *testing.T, w, h int, fill func(x, y int) color.NRGBA) *raster.Image {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill(x, y))
		}
	}
	im, err := raster.FromImage(img)
	if err != nil {
		t.Fatal(err)
	}
	return im
}

func whiteImage(t *testing.T, w, h int) *raster.Image {
	return newImage(t, w, h, func(int, int) color.NRGBA { return color.NRGBA{255, 255, 255, 255} })
}

func testStore() *SessionStore {
	cfg := config.Default().Session
	return NewSessionStore(&cfg)
}

func newSession(t *testing.T, st *SessionStore, img *raster.Image) *Session {
	t.Helper()
	sess, err := st.Create(img, "d41d8cd98f00b204e9800998ecf8427e", "png")
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestAddLayer(t *testing.T) {
	sess := newSession(t, testStore(), whiteImage(t, 20, 10))

	l, err := sess.AddLayer(Layer{Source: SourceMask, Mask: mask.New(20, 10)})
	if err != nil {
		t.Fatal(err)
	}
	if l.ID == "" || l.Version != 1 {
		t.Errorf("unexpected layer %+v", l)
	}
	if l.Name != "mask_"+l.ID[:8] {
		t.Errorf("default name = %q", l.Name)
	}

	if _, err := sess.AddLayer(Layer{Mask: mask.New(10, 10)}); !errors.Is(err, mask.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if got := len(sess.Layers()); got != 1 {
		t.Errorf("got %d layers, want 1", got)
	}
}

func TestLayerLimit(t *testing.T) {
	cfg := config.Default().Session
	cfg.MaxLayers = 2
	sess := newSession(t, NewSessionStore(&cfg), whiteImage(t, 4, 4))
	for i := 0; i < 2; i++ {
		if _, err := sess.AddLayer(Layer{Mask: mask.New(4, 4)}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := sess.AddLayer(Layer{Mask: mask.New(4, 4)}); !errors.Is(err, ErrTooManyLayers) {
		t.Errorf("expected ErrTooManyLayers, got %v", err)
	}
}

func TestUpdateLayerVersion(t *testing.T) {
	sess := newSession(t, testStore(), whiteImage(t, 8, 8))
	l, err := sess.AddLayer(Layer{Name: "a", Mask: mask.New(8, 8)})
	if err != nil {
		t.Fatal(err)
	}

	v1 := int64(1)
	updated, err := sess.UpdateLayer(l.ID, &v1, func(l *Layer) error {
		l.Name = "b"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Version != 2 || updated.Name != "b" {
		t.Errorf("unexpected layer %+v", updated)
	}

	// 旧版本号被拒绝
	_, err = sess.UpdateLayer(l.ID, &v1, func(l *Layer) error {
		l.Name = "c"
		return nil
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}

	// fn 失败时图层不变
	boom := errors.New("boom")
	if _, err := sess.UpdateLayer(l.ID, nil, func(l *Layer) error {
		l.Name = "d"
		return boom
	}); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}

	// 尺寸不符的新掩码被拒绝
	if _, err := sess.UpdateLayer(l.ID, nil, func(l *Layer) error {
		l.Mask = mask.New(4, 4)
		return nil
	}); !errors.Is(err, mask.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	cur, err := sess.Layer(l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Name != "b" || cur.Version != 2 {
		t.Errorf("layer changed by failed updates: %+v", cur)
	}

	if _, err := sess.UpdateLayer("missing", nil, func(*Layer) error { return nil }); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("expected ErrLayerNotFound, got %v", err)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	sess := newSession(t, testStore(), whiteImage(t, 8, 8))
	l, err := sess.AddLayer(Layer{Mask: mask.New(8, 8)})
	if err != nil {
		t.Fatal(err)
	}

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := sess.UpdateLayer(l.ID, nil, func(l *Layer) error {
				m, err := mask.Union(l.Mask, mask.FromPoints(8, 8, []image.Point{{i % 8, i / 8}}))
				if err != nil {
					return err
				}
				l.Mask = m
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	cur, err := sess.Layer(l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Version != n+1 {
		t.Errorf("version = %d, want %d", cur.Version, n+1)
	}
	if cur.Mask.Count() != n {
		t.Errorf("mask has %d pixels, want %d", cur.Mask.Count(), n)
	}
}

func TestRemoveAndDeleteLayers(t *testing.T) {
	sess := newSession(t, testStore(), whiteImage(t, 4, 4))
	for _, src := range []string{SourceAuto, SourceColor, SourceAuto} {
		if _, err := sess.AddLayer(Layer{Source: src, Mask: mask.New(4, 4)}); err != nil {
			t.Fatal(err)
		}
	}
	if n := sess.RemoveLayers(func(l Layer) bool { return l.Source == SourceAuto }); n != 2 {
		t.Errorf("removed %d layers, want 2", n)
	}
	layers := sess.Layers()
	if len(layers) != 1 || layers[0].Source != SourceColor {
		t.Fatalf("unexpected layers %+v", layers)
	}
	if err := sess.DeleteLayer(layers[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := sess.DeleteLayer(layers[0].ID); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("expected ErrLayerNotFound, got %v", err)
	}
}

func TestSessionStore(t *testing.T) {
	cfg := config.Default().Session
	cfg.MaxSessions = 2
	cfg.TTL = time.Minute
	st := NewSessionStore(&cfg)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	a := newSession(t, st, whiteImage(t, 4, 4))
	b := newSession(t, st, whiteImage(t, 4, 4))
	if _, err := st.Create(whiteImage(t, 4, 4), "", "png"); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("expected ErrTooManySessions, got %v", err)
	}

	now = now.Add(45 * time.Second)
	if _, err := st.Get(a.ID); err != nil {
		t.Fatal(err)
	}
	now = now.Add(30 * time.Second)
	if n := st.Sweep(); n != 1 {
		t.Errorf("swept %d sessions, want 1", n)
	}
	if _, err := st.Get(b.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := st.Get(a.ID); err != nil {
		t.Errorf("recently used session was swept: %v", err)
	}

	if err := st.Delete(a.ID); err != nil {
		t.Fatal(err)
	}
	if st.Len() != 0 {
		t.Errorf("store has %d sessions, want 0", st.Len())
	}
	if err := st.Delete(a.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestWorkQueue(t *testing.T) {
	q := NewWorkQueue(1, 20*time.Millisecond)
	release, err := q.acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.acquire(context.Background()); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	release()
	release2, err := q.acquire(context.Background())
	if err != nil {
		t.Fatalf("slot not returned: %v", err)
	}
	release2()
}
