package segment

import (
	"gocv.io/x/gocv"
)

// 复杂度等级
const (
	LevelSimple  = "simple"
	LevelMedium  = "medium"
	LevelComplex = "complex"
)

// Complexity 图像区域的复杂度：Canny 边缘像素占比和 Lab 各通道标准差的均值
type Complexity struct {
	Level         string
	EdgeDensity   float64
	ColorVariance float64
}

// AnalyzeComplexity 分析 BGR 图像的复杂度
func AnalyzeComplexity(img gocv.Mat) Complexity {
	edgeDensity := edgeDensity(img)
	colorVariance := colorVariance(img)

	level := LevelMedium
	if edgeDensity < 0.05 && colorVariance < 30 {
		level = LevelSimple
	} else if edgeDensity > 0.15 || colorVariance > 60 {
		level = LevelComplex
	}
	return Complexity{Level: level, EdgeDensity: edgeDensity, ColorVariance: colorVariance}
}

// Iterations 按复杂度调整 GrabCut 迭代次数
func (c Complexity) Iterations(base int) int {
	switch c.Level {
	case LevelSimple:
		return max(3, base-2)
	case LevelComplex:
		return base + 2
	}
	return base
}

func edgeDensity(img gocv.Mat) float64 {
	total := img.Rows() * img.Cols()
	if total == 0 {
		return 0
	}
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 50, 150)

	return float64(gocv.CountNonZero(edges)) / float64(total)
}

func colorVariance(img gocv.Mat) float64 {
	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(img, &lab, gocv.ColorBGRToLab)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(lab, &mean, &stddev)

	if stddev.Rows() == 0 {
		return 0
	}
	variance := 0.0
	for i := 0; i < stddev.Rows(); i++ {
		variance += stddev.GetDoubleAt(i, 0)
	}
	return variance / float64(stddev.Rows())
}
