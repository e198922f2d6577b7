// Package raster 会话内只读的源图像：RGB 像素及派生的 HSV（OpenCV 约定，H 0-179）
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage 无法解码的图像数据
var ErrUnsupportedImage = errors.New("unsupported image")

// HSV OpenCV 约定的 HSV：H 0-179，S、V 0-255
type HSV struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

// Image 解码后的图像。创建后不再修改，可被多个请求并发读取。
type Image struct {
	width  int
	height int
	rgb    []uint8
	hsv    []uint8
}

// Decode 解码 png/jpeg/gif/bmp/tiff/webp，返回图像及格式名
func Decode(data []byte) (*Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	out, err := FromImage(img)
	if err != nil {
		return nil, "", err
	}
	return out, format, nil
}

// FromImage 从任意 image.Image 构造，HSV 由 OpenCV 计算
func FromImage(img image.Image) (*Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedImage)
	}
	rgb := make([]uint8, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := (y*w + x) * 3
			rgb[i], rgb[i+1], rgb[i+2] = c.R, c.G, c.B
		}
	}
	return fromRGB(w, h, rgb)
}

func fromRGB(w, h int, rgb []uint8) (*Image, error) {
	src, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, rgb)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(src, &hsv, gocv.ColorRGBToHSV)

	return &Image{width: w, height: h, rgb: rgb, hsv: hsv.ToBytes()}, nil
}

func (im *Image) Width() int  { return im.width }
func (im *Image) Height() int { return im.height }

// Bounds 图像范围，原点为 (0,0)
func (im *Image) Bounds() image.Rectangle { return image.Rect(0, 0, im.width, im.height) }

// Contains 坐标是否在图像内
func (im *Image) Contains(x, y int) bool {
	return x >= 0 && x < im.width && y >= 0 && y < im.height
}

// RGBAt 像素 RGB
func (im *Image) RGBAt(x, y int) color.NRGBA {
	i := (y*im.width + x) * 3
	return color.NRGBA{R: im.rgb[i], G: im.rgb[i+1], B: im.rgb[i+2], A: 0xff}
}

// HSVAt 像素 HSV
func (im *Image) HSVAt(x, y int) HSV {
	i := (y*im.width + x) * 3
	return HSV{H: float64(im.hsv[i]), S: float64(im.hsv[i+1]), V: float64(im.hsv[i+2])}
}

// SampleHSV 以 (x,y) 为中心、边长 2r+1 的邻域 HSV 均值，邻域按图像边界裁剪
func (im *Image) SampleHSV(x, y, radius int) (HSV, error) {
	if !im.Contains(x, y) {
		return HSV{}, fmt.Errorf("point (%d, %d) outside %dx%d image", x, y, im.width, im.height)
	}
	r := image.Rect(x-radius, y-radius, x+radius+1, y+radius+1).Intersect(im.Bounds())
	var sum HSV
	for yy := r.Min.Y; yy < r.Max.Y; yy++ {
		for xx := r.Min.X; xx < r.Max.X; xx++ {
			c := im.HSVAt(xx, yy)
			sum.H += c.H
			sum.S += c.S
			sum.V += c.V
		}
	}
	n := float64(r.Dx() * r.Dy())
	return HSV{H: sum.H / n, S: sum.S / n, V: sum.V / n}, nil
}

// Mat BGR 三通道 Mat，调用方负责 Close
func (im *Image) Mat() (gocv.Mat, error) {
	bgr := make([]uint8, len(im.rgb))
	for i := 0; i < len(im.rgb); i += 3 {
		bgr[i], bgr[i+1], bgr[i+2] = im.rgb[i+2], im.rgb[i+1], im.rgb[i]
	}
	return gocv.NewMatFromBytes(im.height, im.width, gocv.MatTypeCV8UC3, bgr)
}

// HSVMat HSV 三通道 Mat，调用方负责 Close
func (im *Image) HSVMat() (gocv.Mat, error) {
	return gocv.NewMatFromBytes(im.height, im.width, gocv.MatTypeCV8UC3, append([]uint8(nil), im.hsv...))
}

// HSVBytes HSV 交错数据的副本
func (im *Image) HSVBytes() []uint8 { return append([]uint8(nil), im.hsv...) }

// NRGBA 转为标准库图像，用于预览合成
func (im *Image) NRGBA() *image.NRGBA {
	out := image.NewNRGBA(im.Bounds())
	for i, j := 0, 0; i < len(im.rgb); i, j = i+3, j+4 {
		out.Pix[j], out.Pix[j+1], out.Pix[j+2], out.Pix[j+3] = im.rgb[i], im.rgb[i+1], im.rgb[i+2], 0xff
	}
	return out
}
