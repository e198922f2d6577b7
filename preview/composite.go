// Package preview 渲染图层合成预览和追踪路径叠加图
package preview

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/yyy-OPS/SciDataExtractor/mask"
	"github.com/yyy-OPS/SciDataExtractor/raster"
)

// selectedBoost 选中图层额外增加的不透明度
const selectedBoost = 0.2

// Overlay 参与合成的一个图层
type Overlay struct {
	Mask     *mask.Mask
	Color    color.NRGBA
	Opacity  float64
	Visible  bool
	Selected bool
}

// Composite 在原图上按顺序叠加可见图层
func Composite(img *raster.Image, overlays []Overlay) (*image.NRGBA, error) {
	out := img.NRGBA()
	for i, o := range overlays {
		if !o.Visible || o.Mask == nil {
			continue
		}
		if o.Mask.Width() != img.Width() || o.Mask.Height() != img.Height() {
			return nil, fmt.Errorf("%w: layer %d is %dx%d, image is %dx%d",
				mask.ErrDimensionMismatch, i, o.Mask.Width(), o.Mask.Height(), img.Width(), img.Height())
		}
		a := o.Opacity
		if o.Selected {
			a += selectedBoost
		}
		a = math.Max(0, math.Min(1, a))
		for _, p := range o.Mask.Points() {
			j := out.PixOffset(p.X, p.Y)
			out.Pix[j] = blend(out.Pix[j], o.Color.R, a)
			out.Pix[j+1] = blend(out.Pix[j+1], o.Color.G, a)
			out.Pix[j+2] = blend(out.Pix[j+2], o.Color.B, a)
		}
	}
	return out, nil
}

func blend(dst, src uint8, a float64) uint8 {
	return uint8(math.Round(float64(dst)*(1-a) + float64(src)*a))
}

// EncodePNG 用 OpenCV 编码为 PNG
func EncodePNG(img image.Image) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
