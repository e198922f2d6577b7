// Package series 数据点序列的后处理：降采样、异常点剔除、平滑。
// 所有操作都保持输入顺序，且不修改入参。
package series

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/yyy-OPS/SciDataExtractor/calibration"
)

// Point 序列中的一个数据点
type Point = calibration.DataPoint

// ErrInvalidWindow 平滑窗口或阶数不合法
var ErrInvalidWindow = errors.New("invalid smoothing window")

const (
	DefaultOutlierThreshold = 2.5
	DefaultSmoothWindow     = 5
	DefaultSmoothOrder      = 2

	// madScale 正态分布下 MAD 到标准差的换算系数
	madScale = 1.4826
)

// Options 后处理开关，零值表示全部关闭
type Options struct {
	Downsample       int     `json:"downsample"`
	RemoveOutliers   bool    `json:"remove_outliers"`
	OutlierThreshold float64 `json:"outlier_threshold"`
	Smooth           bool    `json:"smooth"`
	SmoothWindow     int     `json:"smooth_window"`
}

// Apply 依次执行异常点剔除、平滑、降采样
func Apply(pts []Point, opt Options) ([]Point, error) {
	out := pts
	if opt.RemoveOutliers {
		th := opt.OutlierThreshold
		if th <= 0 {
			th = DefaultOutlierThreshold
		}
		out = RemoveOutliers(out, th)
	}
	if opt.Smooth {
		w := opt.SmoothWindow
		if w <= 0 {
			w = DefaultSmoothWindow
		}
		var err error
		if out, err = Smooth(out, w, DefaultSmoothOrder); err != nil {
			return nil, err
		}
	}
	if opt.Downsample > 1 {
		out = Downsample(out, opt.Downsample)
	}
	return out, nil
}

// Downsample 每 factor 个点保留一个，末点总是保留
func Downsample(pts []Point, factor int) []Point {
	if factor <= 1 || len(pts) <= 2 {
		return append([]Point(nil), pts...)
	}
	out := make([]Point, 0, len(pts)/factor+2)
	for i := 0; i < len(pts); i += factor {
		out = append(out, pts[i])
	}
	if (len(pts)-1)%factor != 0 {
		out = append(out, pts[len(pts)-1])
	}
	return out
}

// RemoveOutliers 基于相邻斜率变化的 MAD 检测，变化量偏离中位数超过
// threshold 个标准差时剔除该处的点。点数过少或剔除后不足 4 个点时原样返回。
func RemoveOutliers(pts []Point, threshold float64) []Point {
	if len(pts) < 5 {
		return append([]Point(nil), pts...)
	}
	slopes := make([]float64, len(pts)-1)
	for i := range slopes {
		dx := pts[i+1].X - pts[i].X
		slopes[i] = (pts[i+1].Y - pts[i].Y) / (dx + 1e-10)
	}
	changes := make([]float64, len(slopes)-1)
	for i := range changes {
		changes[i] = math.Abs(slopes[i+1] - slopes[i])
	}

	med := median(changes)
	dev := make([]float64, len(changes))
	for i, c := range changes {
		dev[i] = math.Abs(c - med)
	}
	mad := median(dev)
	if mad < 1e-10 {
		return append([]Point(nil), pts...)
	}

	limit := threshold * mad * madScale
	drop := make([]bool, len(pts))
	for i, d := range dev {
		if d > limit {
			drop[i+1] = true
		}
	}
	out := make([]Point, 0, len(pts))
	for i, p := range pts {
		if !drop[i] {
			out = append(out, p)
		}
	}
	if len(out) <= 3 {
		return append([]Point(nil), pts...)
	}
	return out
}

// median 偶数个元素时取中间两个的均值
func median(v []float64) float64 {
	n := len(v)
	if n == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), v...)
	floats.Argsort(s, make([]int, n))
	if n%2 == 1 {
		return s[n/2]
	}
	return stat.Mean(s[n/2-1:n/2+1], nil)
}

// Smooth Savitzky-Golay 平滑 y 值，x 不变。窗口会被调整为奇数且不超过 n-2，
// 首尾半个窗口内的点保持原值。
func Smooth(pts []Point, window, order int) ([]Point, error) {
	out := append([]Point(nil), pts...)
	if window%2 == 0 {
		window++
	}
	window = min(window, len(pts)-2)
	if window%2 == 0 {
		window--
	}
	if len(pts) < 3 || window < 3 {
		return out, nil
	}
	if order < 0 || order >= window {
		return nil, ErrInvalidWindow
	}
	coef, err := SavitzkyGolay(window, order)
	if err != nil {
		return nil, err
	}
	half := window / 2
	for i := half; i < len(pts)-half; i++ {
		var y float64
		for j, c := range coef {
			y += c * pts[i-half+j].Y
		}
		out[i].Y = y
	}
	return out, nil
}

// SavitzkyGolay 计算窗口中心点的卷积系数：对 (i-half)^k 的范德蒙矩阵 A 求
// (AᵀA)⁻¹Aᵀ 的第一行。
func SavitzkyGolay(window, order int) ([]float64, error) {
	if window < 1 || window%2 == 0 || order < 0 || order >= window {
		return nil, ErrInvalidWindow
	}
	half := window / 2
	a := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		x, v := float64(i-half), 1.0
		for j := 0; j <= order; j++ {
			a.Set(i, j, v)
			v *= x
		}
	}
	var ata, inv, pinv mat.Dense
	ata.Mul(a.T(), a)
	if err := inv.Inverse(&ata); err != nil {
		return nil, err
	}
	pinv.Mul(&inv, a.T())
	return mat.Row(nil, 0, &pinv), nil
}
