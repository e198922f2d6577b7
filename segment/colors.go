package segment

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/yyy-OPS/SciDataExtractor/raster"
)

// Color 图层代表色
type Color struct {
	HSV raster.HSV `json:"hsv"`
	RGB [3]uint8   `json:"rgb"`
	Hex string     `json:"hex"`
}

// NewColor 由 OpenCV 约定的 HSV 构造，H 需乘 2 换算为角度
func NewColor(hsv raster.HSV) Color {
	c := colorful.Hsv(hsv.H*2, hsv.S/255, hsv.V/255).Clamped()
	r, g, b := c.RGB255()
	return Color{
		HSV: raster.HSV{H: math.Round(hsv.H), S: math.Round(hsv.S), V: math.Round(hsv.V)},
		RGB: [3]uint8{r, g, b},
		Hex: c.Hex(),
	}
}

// hueRange 彩色名称表的一行：H 区间（闭区间）、最低饱和度和亮度
type hueRange struct {
	name       string
	hMin, hMax float64
	sMin, vMin float64
}

var hueTable = []hueRange{
	{"red", 0, 10, 100, 100},
	{"red", 170, 180, 100, 100},
	{"orange", 10, 25, 100, 100},
	{"yellow", 25, 35, 100, 100},
	{"green", 35, 85, 100, 100},
	{"cyan", 85, 100, 100, 100},
	{"blue", 100, 130, 100, 100},
	{"purple", 130, 155, 100, 100},
	{"pink", 155, 170, 50, 100},
}

// HueName 近似的颜色名称
func HueName(hsv raster.HSV) string {
	if hsv.S < 30 {
		switch {
		case hsv.V < 50:
			return "black"
		case hsv.V > 200:
			return "white"
		default:
			return "gray"
		}
	}
	for _, r := range hueTable {
		if hsv.H >= r.hMin && hsv.H <= r.hMax && hsv.S >= r.sMin && hsv.V >= r.vMin {
			return r.name
		}
	}
	return "unknown"
}
