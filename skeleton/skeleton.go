// Package skeleton 把二值掩码细化为单像素宽、保持连通性的骨架
package skeleton

import (
	"image"

	"github.com/yyy-OPS/SciDataExtractor/mask"
)

// Offsets 8 邻域偏移，顺序固定以保证遍历结果确定
var Offsets = [8]image.Point{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

// Skeleton 骨架像素集合及其邻接视图。总是由 Mask 派生，不单独持久化。
type Skeleton struct {
	width  int
	height int
	pix    []bool
	n      int
}

func newSkeleton(width, height int) *Skeleton {
	return &Skeleton{width: width, height: height, pix: make([]bool, width*height)}
}

// FromMask 直接把掩码像素当作骨架（不做细化），用于已是单像素宽的输入
func FromMask(m *mask.Mask) *Skeleton {
	s := newSkeleton(m.Width(), m.Height())
	for _, p := range m.Points() {
		s.pix[p.Y*s.width+p.X] = true
		s.n++
	}
	return s
}

// FromPoints 由像素坐标构造骨架，越界和重复的点被忽略
func FromPoints(width, height int, pts []image.Point) *Skeleton {
	return FromMask(mask.FromPoints(width, height, pts))
}

func (s *Skeleton) Width() int  { return s.width }
func (s *Skeleton) Height() int { return s.height }

// Len 骨架像素数
func (s *Skeleton) Len() int { return s.n }

// Has 是否为骨架像素，越界返回 false
func (s *Skeleton) Has(p image.Point) bool {
	if p.X < 0 || p.X >= s.width || p.Y < 0 || p.Y >= s.height {
		return false
	}
	return s.pix[p.Y*s.width+p.X]
}

// Points 行优先顺序的全部骨架像素
func (s *Skeleton) Points() []image.Point {
	pts := make([]image.Point, 0, s.n)
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			if s.pix[y*s.width+x] {
				pts = append(pts, image.Point{X: x, Y: y})
			}
		}
	}
	return pts
}

// Neighbors p 的 8 邻域中的骨架像素
func (s *Skeleton) Neighbors(p image.Point) []image.Point {
	var out []image.Point
	for _, d := range Offsets {
		q := p.Add(d)
		if s.Has(q) {
			out = append(out, q)
		}
	}
	return out
}

// Endpoints 只有一个骨架邻居的像素
func (s *Skeleton) Endpoints() []image.Point {
	var out []image.Point
	for _, p := range s.Points() {
		if len(s.Neighbors(p)) == 1 {
			out = append(out, p)
		}
	}
	return out
}

// Leftmost 最左侧的骨架像素，x 相同时取行号最小者
func (s *Skeleton) Leftmost() (image.Point, bool) {
	for x := 0; x < s.width; x++ {
		for y := 0; y < s.height; y++ {
			if s.pix[y*s.width+x] {
				return image.Point{X: x, Y: y}, true
			}
		}
	}
	return image.Point{}, false
}

// Rightmost 最右侧的骨架像素，x 相同时取行号最小者
func (s *Skeleton) Rightmost() (image.Point, bool) {
	for x := s.width - 1; x >= 0; x-- {
		for y := 0; y < s.height; y++ {
			if s.pix[y*s.width+x] {
				return image.Point{X: x, Y: y}, true
			}
		}
	}
	return image.Point{}, false
}

// Nearest 在欧氏距离 radius 内寻找离 p 最近的骨架像素。
// 距离相同时取行号较小者，再取列号较小者。
func (s *Skeleton) Nearest(p image.Point, radius int) (image.Point, bool) {
	if s.Has(p) {
		return p, true
	}
	var (
		best  image.Point
		bestD = -1
	)
	r2 := radius * radius
	for y := max(0, p.Y-radius); y <= min(s.height-1, p.Y+radius); y++ {
		for x := max(0, p.X-radius); x <= min(s.width-1, p.X+radius); x++ {
			if !s.pix[y*s.width+x] {
				continue
			}
			dx, dy := x-p.X, y-p.Y
			d := dx*dx + dy*dy
			if d > r2 {
				continue
			}
			// 行优先扫描，严格小于即可保证并列时先到者胜出
			if bestD < 0 || d < bestD {
				best, bestD = image.Point{X: x, Y: y}, d
			}
		}
	}
	return best, bestD >= 0
}

// Mask 转回掩码，便于预览和编码
func (s *Skeleton) Mask() *mask.Mask {
	return mask.FromFunc(s.width, s.height, func(x, y int) bool {
		return s.pix[y*s.width+x]
	})
}
