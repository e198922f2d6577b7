package raster

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func quadrants() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			c := color.NRGBA{255, 255, 255, 255}
			switch {
			case x < 5:
				c = color.NRGBA{255, 0, 0, 255}
			case x < 10:
				c = color.NRGBA{0, 255, 0, 255}
			case x < 15:
				c = color.NRGBA{0, 0, 255, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestDecodeHSV(t *testing.T) {
	im, format, err := Decode(encode(t, quadrants()))
	if err != nil {
		t.Fatal(err)
	}
	if format != "png" || im.Width() != 20 || im.Height() != 10 {
		t.Fatalf("decoded %s %dx%d", format, im.Width(), im.Height())
	}
	tests := []struct {
		x    int
		want HSV
	}{
		{2, HSV{0, 255, 255}},
		{7, HSV{60, 255, 255}},
		{12, HSV{120, 255, 255}},
		{17, HSV{0, 0, 255}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, im.HSVAt(tt.x, 4)); diff != "" {
			t.Errorf("HSVAt(%d) (-want +got):\n%s", tt.x, diff)
		}
	}
	if got := im.RGBAt(12, 0); got != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("RGBAt = %v", got)
	}
}

func TestSampleHSV(t *testing.T) {
	im, err := FromImage(quadrants())
	if err != nil {
		t.Fatal(err)
	}
	// 左上角邻域裁剪为 3x3，全是红色
	got, err := im.SampleHSV(0, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(HSV{0, 255, 255}, got); diff != "" {
		t.Errorf("corner sample (-want +got):\n%s", diff)
	}
	// 跨越蓝白边界：x 13..17 中 2 列蓝、3 列白
	got, err = im.SampleHSV(15, 5, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := HSV{H: 120 * 2.0 / 5, S: 255 * 2.0 / 5, V: 255}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("edge sample (-want +got):\n%s", diff)
	}
	if _, err := im.SampleHSV(20, 0, 2); err == nil {
		t.Error("sample outside image accepted")
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, _, err := Decode([]byte("definitely not an image")); !errors.Is(err, ErrUnsupportedImage) {
		t.Errorf("expected ErrUnsupportedImage, got %v", err)
	}
}

func TestNRGBARoundTrip(t *testing.T) {
	src := quadrants()
	im, err := FromImage(src)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(src.Pix, im.NRGBA().Pix); diff != "" {
		t.Errorf("NRGBA pixels (-want +got):\n%s", diff)
	}
}
