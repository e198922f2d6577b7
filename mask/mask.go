// Package mask 提供二值掩码类型及其布尔/形态学运算
package mask

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrDimensionMismatch 两个掩码（或掩码与图像）尺寸不一致
	ErrDimensionMismatch = errors.New("mask dimension mismatch")
	// ErrInvalidKernel 结构元素尺寸必须为正奇数
	ErrInvalidKernel = errors.New("invalid kernel size")
)

const (
	off uint8 = 0
	on  uint8 = 255
)

// Mask 单通道二值掩码，像素取值 0 或 255，行优先存储。
// 构造完成后不可修改，所有运算都返回新的 Mask。
type Mask struct {
	width  int
	height int
	pix    []uint8
}

// New 创建全空掩码
func New(width, height int) *Mask {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Mask{width: width, height: height, pix: make([]uint8, width*height)}
}

// FromFunc 按谓词逐像素构造掩码
func FromFunc(width, height int, fn func(x, y int) bool) *Mask {
	m := New(width, height)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if fn(x, y) {
				m.pix[y*m.width+x] = on
			}
		}
	}
	return m
}

// FromPoints 由像素坐标集合构造掩码，越界点被忽略
func FromPoints(width, height int, pts []image.Point) *Mask {
	m := New(width, height)
	for _, p := range pts {
		if p.X < 0 || p.X >= m.width || p.Y < 0 || p.Y >= m.height {
			continue
		}
		m.pix[p.Y*m.width+p.X] = on
	}
	return m
}

// FromBytes 由单通道灰度数据构造掩码，大于 127 视为前景
func FromBytes(width, height int, data []byte) (*Mask, error) {
	if width <= 0 || height <= 0 || len(data) != width*height {
		return nil, fmt.Errorf("%w: %dx%d with %d bytes", ErrDimensionMismatch, width, height, len(data))
	}
	m := New(width, height)
	for i, v := range data {
		if v > 127 {
			m.pix[i] = on
		}
	}
	return m, nil
}

// FromGray 由灰度图构造掩码
func FromGray(g *image.Gray) *Mask {
	b := g.Bounds()
	return FromFunc(b.Dx(), b.Dy(), func(x, y int) bool {
		return g.GrayAt(b.Min.X+x, b.Min.Y+y).Y > 127
	})
}

func (m *Mask) Width() int  { return m.width }
func (m *Mask) Height() int { return m.height }

// Bounds 返回 (0,0)-(w,h) 矩形
func (m *Mask) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.width, m.height)
}

// At 越界返回 false
func (m *Mask) At(x, y int) bool {
	if x < 0 || x >= m.width || y < 0 || y >= m.height {
		return false
	}
	return m.pix[y*m.width+x] != off
}

// Count 前景像素数量
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.pix {
		if v != off {
			n++
		}
	}
	return n
}

// IsEmpty 是否没有任何前景像素
func (m *Mask) IsEmpty() bool {
	for _, v := range m.pix {
		if v != off {
			return false
		}
	}
	return true
}

// SameSize 判断两个掩码尺寸是否一致
func (m *Mask) SameSize(o *Mask) bool {
	return m.width == o.width && m.height == o.height
}

// Equal 尺寸和像素完全一致
func (m *Mask) Equal(o *Mask) bool {
	if !m.SameSize(o) {
		return false
	}
	for i := range m.pix {
		if (m.pix[i] != off) != (o.pix[i] != off) {
			return false
		}
	}
	return true
}

// Bytes 返回像素数据的副本
func (m *Mask) Bytes() []byte {
	out := make([]byte, len(m.pix))
	copy(out, m.pix)
	return out
}

// Points 按行优先顺序返回所有前景像素
func (m *Mask) Points() []image.Point {
	var pts []image.Point
	for y := 0; y < m.height; y++ {
		row := y * m.width
		for x := 0; x < m.width; x++ {
			if m.pix[row+x] != off {
				pts = append(pts, image.Point{X: x, Y: y})
			}
		}
	}
	return pts
}

// BoundingBox 前景像素的外接矩形，空掩码返回零矩形
func (m *Mask) BoundingBox() image.Rectangle {
	var r image.Rectangle
	first := true
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if m.pix[y*m.width+x] == off {
				continue
			}
			cell := image.Rect(x, y, x+1, y+1)
			if first {
				r = cell
				first = false
			} else {
				r = r.Union(cell)
			}
		}
	}
	return r
}

// Gray 转为灰度图（0/255）
func (m *Mask) Gray() *image.Gray {
	g := image.NewGray(m.Bounds())
	copy(g.Pix, m.pix)
	return g
}

// Alpha 转为 alpha 通道图，用于叠加渲染
func (m *Mask) Alpha() *image.Alpha {
	a := image.NewAlpha(m.Bounds())
	for i, v := range m.pix {
		a.Pix[i] = v
	}
	return a
}
