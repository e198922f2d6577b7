package service

import (
	"math"

	"go.uber.org/zap"

	"github.com/yyy-OPS/SciDataExtractor/mask"
	"github.com/yyy-OPS/SciDataExtractor/model"
	"github.com/yyy-OPS/SciDataExtractor/utils"
)

// 图层来源
const (
	SourceAuto  = "auto"
	SourceColor = "color"
	SourceSmart = "smart"
	SourceMask  = "mask"
)

const defaultOpacity = 0.5

// ToModelLayer 转为接口结构，withMask 决定是否附带 base64 掩码
func ToModelLayer(l Layer, withMask bool) model.Layer {
	total := l.Mask.Width() * l.Mask.Height()
	count := l.Mask.Count()
	bb := l.Mask.BoundingBox()
	out := model.Layer{
		ID:         l.ID,
		Name:       l.Name,
		Source:     l.Source,
		Color:      l.Color,
		Visible:    l.Visible,
		Opacity:    l.Opacity,
		Version:    l.Version,
		PixelCount: count,
		BoundingBox: model.BBox{
			X: bb.Min.X, Y: bb.Min.Y, Width: bb.Dx(), Height: bb.Dy(),
		},
	}
	if total > 0 {
		out.Percentage = math.Round(float64(count)/float64(total)*10000) / 100
	}
	if withMask {
		data, err := mask.EncodeBase64(l.Mask)
		if err != nil {
			utils.Logger.Error("failed to encode mask", zap.String("layer", l.ID), zap.Error(err))
		}
		out.Mask = data
	}
	return out
}

// ToModelSession 会话概要，图层不带掩码
func ToModelSession(s *Session) model.Session {
	layers := s.Layers()
	out := model.Session{
		ID:        s.ID,
		MD5:       s.MD5,
		Format:    s.Format,
		Width:     s.Image.Width(),
		Height:    s.Image.Height(),
		CreatedAt: s.CreatedAt.Unix(),
		Layers:    make([]model.Layer, 0, len(layers)),
	}
	for _, l := range layers {
		out.Layers = append(out.Layers, ToModelLayer(l, false))
	}
	return out
}

// decodePayload 解码接口传入的掩码，尺寸必须与图像一致
func decodePayload(p *model.MaskPayload, width, height int) (*mask.Mask, error) {
	if p.Width != width || p.Height != height {
		return nil, mask.ErrDimensionMismatch
	}
	return mask.DecodeBase64(p.Data, width, height)
}
