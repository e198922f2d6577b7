package segment

import (
	"math"

	"gocv.io/x/gocv"

	"github.com/yyy-OPS/SciDataExtractor/mask"
	"github.com/yyy-OPS/SciDataExtractor/raster"
)

// grayscaleSaturation 低于此饱和度的目标色按灰度处理，只比较明度
const grayscaleSaturation = 30

// HSVRange 目标色加容差得到的 HSV 闭区间
func HSVRange(target raster.HSV, tolerance int) (lower, upper gocv.Scalar) {
	tol := float64(tolerance)
	if target.S < grayscaleSaturation {
		return gocv.NewScalar(0, 0, math.Max(0, target.V-tol), 0),
			gocv.NewScalar(179, 100, math.Min(255, target.V+tol), 0)
	}
	hTol := math.Min(tol, 15)
	sTol := tol + 10
	vTol := tol + 20
	return gocv.NewScalar(math.Max(0, target.H-hTol), math.Max(30, target.S-sTol), math.Max(30, target.V-vTol), 0),
		gocv.NewScalar(math.Min(179, target.H+hTol), math.Min(255, target.S+sTol), math.Min(255, target.V+vTol), 0)
}

// RawRangeMask 落在容差范围内的像素，不做形态学清理
func RawRangeMask(img *raster.Image, target raster.HSV, tolerance int) (*mask.Mask, error) {
	src, err := img.HSVMat()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	lower, upper := HSVRange(target, tolerance)
	dst := gocv.NewMat()
	defer dst.Close()
	gocv.InRangeWithScalar(src, lower, upper, &dst)
	return mask.FromMat(dst)
}

// RangeMask 颜色范围掩码，两次开运算去噪后一次闭运算补缝
func RangeMask(img *raster.Image, target raster.HSV, tolerance int) (*mask.Mask, error) {
	m, err := RawRangeMask(img, target, tolerance)
	if err != nil {
		return nil, err
	}
	for i := 0; i < 2; i++ {
		if m, err = mask.Open(m, 3); err != nil {
			return nil, err
		}
	}
	return mask.Close(m, 3)
}
