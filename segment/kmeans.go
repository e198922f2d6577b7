// Package segment 图层候选的生成：颜色聚类、颜色范围、点选分割
package segment

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"gocv.io/x/gocv"

	"github.com/yyy-OPS/SciDataExtractor/mask"
	"github.com/yyy-OPS/SciDataExtractor/raster"
)

// ErrInvalidOptions 分割参数不合法
var ErrInvalidOptions = errors.New("invalid segment options")

const (
	// 明度过低或过高的像素视为背景、网格或文字
	darkValue   = 30
	brightValue = 250

	// 有效像素少于全图的 1% 时视为近乎空白
	minValidFraction = 0.01

	rngSeed = 42
)

// Options 颜色聚类参数
type Options struct {
	K                 int     `json:"k"`
	ExcludeBackground bool    `json:"exclude_background"`
	MinSaturation     int     `json:"min_saturation"`
	MinClusterPixels  int     `json:"min_cluster_pixels"`
	KernelSize        int     `json:"kernel_size"`
	MaxIterations     int     `json:"max_iterations"`
	Epsilon           float64 `json:"epsilon"`
	Attempts          int     `json:"attempts"`
}

func DefaultOptions() Options {
	return Options{
		K:                 5,
		ExcludeBackground: true,
		MinSaturation:     30,
		MinClusterPixels:  50,
		KernelSize:        3,
		MaxIterations:     100,
		Epsilon:           0.2,
		Attempts:          3,
	}
}

// Validate 检查参数
func (o Options) Validate() error {
	switch {
	case o.K < 1:
		return fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidOptions, o.K)
	case o.MinSaturation < 0 || o.MinSaturation > 255:
		return fmt.Errorf("%w: min_saturation %d not in 0..255", ErrInvalidOptions, o.MinSaturation)
	case o.MaxIterations < 1 || o.Attempts < 1:
		return fmt.Errorf("%w: max_iterations and attempts must be positive", ErrInvalidOptions)
	}
	return mask.ValidateKernel(o.KernelSize)
}

// Layer 一个颜色聚类对应的候选图层
type Layer struct {
	Name       string
	Cluster    int
	Mask       *mask.Mask
	Color      Color
	PixelCount int
	Percentage float64 // 占全图像素的百分比，保留两位小数
}

// Result 聚类结果。Layers 按像素数降序，可能少于 K 个。
type Result struct {
	Layers      []Layer
	ValidPixels int
	Diagnostic  string
}

// ColorSegmenter 基于 k-means 的颜色分层
type ColorSegmenter struct{}

func NewColorSegmenter() *ColorSegmenter {
	return &ColorSegmenter{}
}

// Segment 对 HSV 像素聚类，每个聚类生成一个经过开、闭运算清理的掩码
func (s *ColorSegmenter) Segment(ctx context.Context, img *raster.Image, opt Options) (*Result, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	w, h := img.Width(), img.Height()
	hsv := img.HSVBytes()

	valid := make([]int, 0, w*h)
	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < w; x++ {
			i := y*w + x
			sat, val := hsv[i*3+1], hsv[i*3+2]
			if opt.ExcludeBackground && (int(sat) < opt.MinSaturation || val <= darkValue || val >= brightValue) {
				continue
			}
			valid = append(valid, i)
		}
	}

	res := &Result{ValidPixels: len(valid)}
	if float64(len(valid)) < minValidFraction*float64(w*h) || len(valid) == 0 {
		res.Diagnostic = fmt.Sprintf("only %d of %d pixels remain after background exclusion", len(valid), w*h)
		return res, nil
	}

	k := min(opt.K, len(valid))
	labels, centers, err := kmeans(hsv, valid, k, opt)
	if err != nil {
		return nil, err
	}

	for c := 0; c < k; c++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := make([]byte, w*h)
		for j, idx := range valid {
			if labels[j] == int32(c) {
				raw[idx] = 255
			}
		}
		m, err := mask.FromBytes(w, h, raw)
		if err != nil {
			return nil, err
		}
		if m, err = mask.Open(m, opt.KernelSize); err != nil {
			return nil, err
		}
		if m, err = mask.Close(m, opt.KernelSize); err != nil {
			return nil, err
		}
		n := m.Count()
		if n < opt.MinClusterPixels {
			continue
		}
		color := NewColor(centers[c])
		res.Layers = append(res.Layers, Layer{
			Name:       fmt.Sprintf("%s_%d", HueName(color.HSV), c+1),
			Cluster:    c,
			Mask:       m,
			Color:      color,
			PixelCount: n,
			Percentage: math.Round(float64(n)/float64(w*h)*10000) / 100,
		})
	}

	sort.SliceStable(res.Layers, func(i, j int) bool {
		return res.Layers[i].PixelCount > res.Layers[j].PixelCount
	})
	if len(res.Layers) < opt.K {
		res.Diagnostic = fmt.Sprintf("found %d of %d requested color layers", len(res.Layers), opt.K)
	}
	return res, nil
}

// kmeans 在 OpenCV 中聚类。随机种子是线程局部的，锁定 OS 线程保证结果可复现。
func kmeans(hsv []uint8, valid []int, k int, opt Options) ([]int32, []raster.HSV, error) {
	buf := make([]byte, len(valid)*3*4)
	for j, idx := range valid {
		for ch := 0; ch < 3; ch++ {
			binary.LittleEndian.PutUint32(buf[(j*3+ch)*4:], math.Float32bits(float32(hsv[idx*3+ch])))
		}
	}
	data, err := gocv.NewMatFromBytes(len(valid), 3, gocv.MatTypeCV32F, buf)
	if err != nil {
		return nil, nil, err
	}
	defer data.Close()

	labels := gocv.NewMat()
	defer labels.Close()
	centers := gocv.NewMat()
	defer centers.Close()

	runtime.LockOSThread()
	gocv.SetRNGSeed(rngSeed)
	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, opt.MaxIterations, opt.Epsilon)
	gocv.KMeans(data, k, &labels, criteria, opt.Attempts, gocv.KMeansPPCenters, &centers)
	runtime.UnlockOSThread()

	out := make([]int32, len(valid))
	for j := range out {
		out[j] = labels.GetIntAt(j, 0)
	}
	cs := make([]raster.HSV, k)
	for c := range cs {
		if c >= centers.Rows() {
			break
		}
		cs[c] = raster.HSV{
			H: float64(centers.GetFloatAt(c, 0)),
			S: float64(centers.GetFloatAt(c, 1)),
			V: float64(centers.GetFloatAt(c, 2)),
		}
	}
	return out, cs, nil
}
