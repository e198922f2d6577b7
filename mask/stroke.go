package mask

import (
	"image"
	"math"

	"golang.org/x/image/vector"
)

// Stroke 画笔或橡皮擦的一笔，点为像素坐标
type Stroke struct {
	Points []image.Point
	Radius float64
	Erase  bool
}

const circleSegments = 16

// Rasterize 将折线按半径绘制为掩码（圆头圆角）
func Rasterize(width, height int, pts []image.Point, radius float64) *Mask {
	out := New(width, height)
	if width == 0 || height == 0 || len(pts) == 0 {
		return out
	}
	radius = math.Max(radius, 0.5)

	dst := image.NewAlpha(image.Rect(0, 0, width, height))
	z := vector.NewRasterizer(width, height)
	draw := func() {
		z.ClosePath()
		z.Draw(dst, dst.Bounds(), image.Opaque, image.Point{})
		z.Reset(width, height)
	}

	for i, p := range pts {
		cx, cy := float64(p.X)+0.5, float64(p.Y)+0.5
		for k := 0; k < circleSegments; k++ {
			th := 2 * math.Pi * float64(k) / circleSegments
			x, y := float32(cx+radius*math.Cos(th)), float32(cy+radius*math.Sin(th))
			if k == 0 {
				z.MoveTo(x, y)
			} else {
				z.LineTo(x, y)
			}
		}
		draw()

		if i == 0 {
			continue
		}
		q := pts[i-1]
		dx, dy := float64(p.X-q.X), float64(p.Y-q.Y)
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		nx, ny := -dy/length*radius, dx/length*radius
		qx, qy := float64(q.X)+0.5, float64(q.Y)+0.5
		z.MoveTo(float32(qx+nx), float32(qy+ny))
		z.LineTo(float32(cx+nx), float32(cy+ny))
		z.LineTo(float32(cx-nx), float32(cy-ny))
		z.LineTo(float32(qx-nx), float32(qy-ny))
		draw()
	}

	for i, a := range dst.Pix {
		if a >= 128 {
			out.pix[i] = on
		}
	}
	return out
}

// ApplyStrokes 依次把笔画合并进 base：画笔取并集，橡皮擦做差集
func ApplyStrokes(base *Mask, strokes []Stroke) (*Mask, error) {
	cur := base
	for _, s := range strokes {
		layer := Rasterize(base.width, base.height, s.Points, s.Radius)
		var err error
		if s.Erase {
			cur, err = Subtract(cur, layer)
		} else {
			cur, err = Union(cur, layer)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}
