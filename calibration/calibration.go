// Package calibration 把像素路径映射为物理坐标（每轴两点线性标定）
package calibration

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrDegenerateCalibration 某轴两个标定点像素位置相同或数值非法
var ErrDegenerateCalibration = errors.New("degenerate calibration")

// DefaultPlotMargin 绘图区域相对标定点的外扩像素
const DefaultPlotMargin = 10

// AxisPoint 一个标定点：该轴上的像素坐标和对应物理值
type AxisPoint struct {
	Pixel float64 `json:"pixel"`
	Value float64 `json:"value"`
}

// Axis 单轴的起止标定点，物理值可递增也可递减
type Axis struct {
	Start AxisPoint `json:"start"`
	End   AxisPoint `json:"end"`
}

// Calibration x、y 两轴独立标定
type Calibration struct {
	X Axis `json:"x"`
	Y Axis `json:"y"`
}

// DataPoint 物理坐标点
type DataPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type axisMap struct {
	pixel0 float64
	value0 float64
	scale  float64
}

func newAxisMap(name string, a Axis) (axisMap, error) {
	for _, v := range []float64{a.Start.Pixel, a.Start.Value, a.End.Pixel, a.End.Value} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return axisMap{}, fmt.Errorf("%w: %s axis has non-finite value", ErrDegenerateCalibration, name)
		}
	}
	dp := a.End.Pixel - a.Start.Pixel
	if dp == 0 {
		return axisMap{}, fmt.Errorf("%w: %s axis start and end pixel are both %v", ErrDegenerateCalibration, name, a.Start.Pixel)
	}
	return axisMap{
		pixel0: a.Start.Pixel,
		value0: a.Start.Value,
		scale:  (a.End.Value - a.Start.Value) / dp,
	}, nil
}

func (m axisMap) toValue(pixel float64) float64 { return m.value0 + (pixel-m.pixel0)*m.scale }

func (m axisMap) toPixel(value float64) float64 { return m.pixel0 + (value-m.value0)/m.scale }

// Mapper 已校验的标定，可并发使用
type Mapper struct {
	cal Calibration
	x   axisMap
	y   axisMap
}

// New 校验标定并构造 Mapper
func New(c Calibration) (*Mapper, error) {
	x, err := newAxisMap("x", c.X)
	if err != nil {
		return nil, err
	}
	y, err := newAxisMap("y", c.Y)
	if err != nil {
		return nil, err
	}
	return &Mapper{cal: c, x: x, y: y}, nil
}

// Calibration 返回构造时的标定
func (m *Mapper) Calibration() Calibration { return m.cal }

// ToPhysical 单个像素坐标转物理值
func (m *Mapper) ToPhysical(px, py float64) DataPoint {
	return DataPoint{X: m.x.toValue(px), Y: m.y.toValue(py)}
}

// ToPixel ToPhysical 的逆变换
func (m *Mapper) ToPixel(p DataPoint) (px, py float64) {
	return m.x.toPixel(p.X), m.y.toPixel(p.Y)
}

// Map 按路径顺序映射。roi 非空时先丢弃框外的点（闭区间）。
func (m *Mapper) Map(path []image.Point, roi *image.Rectangle) []DataPoint {
	out := make([]DataPoint, 0, len(path))
	for _, p := range path {
		if roi != nil && !InClosed(p, *roi) {
			continue
		}
		out = append(out, m.ToPhysical(float64(p.X), float64(p.Y)))
	}
	return out
}

// PlotRegion 标定点包围盒外扩 margin，作为默认的绘图区域
func (m *Mapper) PlotRegion(margin int) image.Rectangle {
	xs := []float64{m.cal.X.Start.Pixel, m.cal.X.End.Pixel}
	ys := []float64{m.cal.Y.Start.Pixel, m.cal.Y.End.Pixel}
	return image.Rect(
		int(math.Floor(math.Min(xs[0], xs[1])))-margin,
		int(math.Floor(math.Min(ys[0], ys[1])))-margin,
		int(math.Ceil(math.Max(xs[0], xs[1])))+margin,
		int(math.Ceil(math.Max(ys[0], ys[1])))+margin,
	)
}

// InClosed 判断点是否落在 r 内，右边界和下边界也算在内
func InClosed(p image.Point, r image.Rectangle) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}
