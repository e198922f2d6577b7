package segment

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/yyy-OPS/SciDataExtractor/mask"
	"github.com/yyy-OPS/SciDataExtractor/raster"
)

// GrabCut 掩码中的像素标记
const (
	gcForeground         = 1
	gcProbableForeground = 3
)

// GrabCut 以点击点为中心取一个矩形做 GrabCut，结果只保留包含点击点的连通区域
type GrabCut struct {
	Iterations int
	BoxRadius  int // 初始矩形的半边长
	KernelSize int
}

func NewGrabCut(iterations, boxRadius int) *GrabCut {
	return &GrabCut{Iterations: iterations, BoxRadius: boxRadius, KernelSize: 3}
}

func (g *GrabCut) SegmentAt(ctx context.Context, img *raster.Image, p image.Point) (*mask.Mask, error) {
	if !img.Contains(p.X, p.Y) {
		return nil, fmt.Errorf("%w: %v", ErrPointOutside, p)
	}
	rect := image.Rect(p.X-g.BoxRadius, p.Y-g.BoxRadius, p.X+g.BoxRadius+1, p.Y+g.BoxRadius+1).
		Intersect(img.Bounds())
	// GrabCut 需要矩形外至少有一些背景像素
	if rect.Dx() < 3 || rect.Dy() < 3 || rect == img.Bounds() {
		rect = rect.Inset(1)
	}
	if rect.Empty() {
		return nil, fmt.Errorf("%w: %v", ErrNoRegion, p)
	}

	src, err := img.Mat()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	gc := gocv.NewMat()
	defer gc.Close()
	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	roi := src.Region(rect)
	complexity := AnalyzeComplexity(roi)
	roi.Close()

	gocv.GrabCut(src, &gc, rect, &bgdModel, &fgdModel, complexity.Iterations(g.Iterations), gocv.GCInitWithRect)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fg := ExtractForeground(gc)
	defer fg.Close()
	m, err := mask.FromMat(fg)
	if err != nil {
		return nil, err
	}
	if m, err = mask.Clean(m, g.KernelSize); err != nil {
		return nil, err
	}
	region := mask.ComponentAt(m, p)
	if region.IsEmpty() {
		return nil, fmt.Errorf("%w: %v", ErrNoRegion, p)
	}
	return region, nil
}

// ExtractForeground GrabCut 标记中的确定前景(1)与可能前景(3)
func ExtractForeground(gc gocv.Mat) gocv.Mat {
	fg := gocv.NewMat()
	sure := gocv.NewMatFromScalar(gocv.Scalar{Val1: gcForeground}, gocv.MatTypeCV8U)
	defer sure.Close()
	gocv.Compare(gc, sure, &fg, gocv.CompareEQ)

	probable := gocv.NewMat()
	defer probable.Close()
	pr := gocv.NewMatFromScalar(gocv.Scalar{Val1: gcProbableForeground}, gocv.MatTypeCV8U)
	defer pr.Close()
	gocv.Compare(gc, pr, &probable, gocv.CompareEQ)

	combined := gocv.NewMat()
	gocv.BitwiseOr(fg, probable, &combined)
	fg.Close()
	return combined
}
