package segment

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/yyy-OPS/SciDataExtractor/mask"
	"github.com/yyy-OPS/SciDataExtractor/raster"
)

var (
	// ErrNoRegion 点选位置没有分割出任何区域
	ErrNoRegion = errors.New("no region at point")
	// ErrPointOutside 点选位置在图像之外
	ErrPointOutside = errors.New("point outside image")
)

// PointSegmenter 给定图像和点击位置，返回一个二值掩码
type PointSegmenter interface {
	SegmentAt(ctx context.Context, img *raster.Image, p image.Point) (*mask.Mask, error)
}

// ColorRegion 颜色泛洪：以点击处邻域平均色为目标，取颜色范围内与点击点连通的区域
type ColorRegion struct {
	Tolerance    int
	SampleRadius int
}

func NewColorRegion(tolerance int) *ColorRegion {
	return &ColorRegion{Tolerance: tolerance, SampleRadius: 2}
}

func (s *ColorRegion) SegmentAt(ctx context.Context, img *raster.Image, p image.Point) (*mask.Mask, error) {
	if !img.Contains(p.X, p.Y) {
		return nil, fmt.Errorf("%w: %v", ErrPointOutside, p)
	}
	target, err := img.SampleHSV(p.X, p.Y, s.SampleRadius)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := RawRangeMask(img, target, s.Tolerance)
	if err != nil {
		return nil, err
	}
	region := mask.ComponentAt(raw, p)
	if region.IsEmpty() {
		return nil, fmt.Errorf("%w: %v", ErrNoRegion, p)
	}
	return region, nil
}

type fallback struct {
	primary   PointSegmenter
	secondary PointSegmenter
}

// WithFallback primary 失败或结果为空时改用 secondary；ctx 取消不会触发回退
func WithFallback(primary, secondary PointSegmenter) PointSegmenter {
	if primary == nil {
		return secondary
	}
	return &fallback{primary: primary, secondary: secondary}
}

func (f *fallback) SegmentAt(ctx context.Context, img *raster.Image, p image.Point) (*mask.Mask, error) {
	m, err := f.primary.SegmentAt(ctx, img, p)
	if err == nil && !m.IsEmpty() {
		return m, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrPointOutside) {
		return nil, err
	}
	return f.secondary.SegmentAt(ctx, img, p)
}
