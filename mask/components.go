package mask

import (
	"image"

	"gocv.io/x/gocv"
)

// stats 矩阵中面积所在的列
const statArea = 4

type components struct {
	labels []int32
	areas  []int // 下标为标签号，0 为背景
}

func (m *Mask) components() (*components, bool) {
	if m.width == 0 || m.height == 0 || m.IsEmpty() {
		return nil, false
	}
	src, err := m.toMat()
	if err != nil {
		return nil, false
	}
	defer src.Close()

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(src, &labels, &stats, &centroids)
	if n <= 1 {
		return nil, false
	}

	raw, err := labels.DataPtrInt32()
	if err != nil {
		return nil, false
	}
	c := &components{
		labels: make([]int32, len(raw)),
		areas:  make([]int, n),
	}
	copy(c.labels, raw)
	for i := 1; i < n; i++ {
		c.areas[i] = int(stats.GetIntAt(i, statArea))
	}
	return c, true
}

func (m *Mask) keepLabels(c *components, keep func(label int32) bool) *Mask {
	out := New(m.width, m.height)
	for i, l := range c.labels {
		if l > 0 && keep(l) {
			out.pix[i] = on
		}
	}
	return out
}

// KeepLargest 只保留面积最大的 8 连通区域
func KeepLargest(m *Mask) *Mask {
	c, ok := m.components()
	if !ok {
		return New(m.width, m.height)
	}
	best := int32(1)
	for i := 2; i < len(c.areas); i++ {
		if c.areas[i] > c.areas[best] {
			best = int32(i)
		}
	}
	return m.keepLabels(c, func(l int32) bool { return l == best })
}

// DropSmall 去除面积小于最大区域 ratio 倍（且不少于 minArea）的连通区域
func DropSmall(m *Mask, ratio float64, minArea int) *Mask {
	c, ok := m.components()
	if !ok {
		return New(m.width, m.height)
	}
	largest := 0
	for _, a := range c.areas[1:] {
		largest = max(largest, a)
	}
	threshold := max(minArea, int(float64(largest)*ratio))
	if threshold > largest {
		threshold = largest
	}
	return m.keepLabels(c, func(l int32) bool { return c.areas[l] >= threshold })
}

// ComponentAt 返回包含 p 的连通区域，p 不在前景上时返回空掩码
func ComponentAt(m *Mask, p image.Point) *Mask {
	if !m.At(p.X, p.Y) {
		return New(m.width, m.height)
	}
	c, ok := m.components()
	if !ok {
		return New(m.width, m.height)
	}
	target := c.labels[p.Y*m.width+p.X]
	return m.keepLabels(c, func(l int32) bool { return l == target })
}
