package model

import (
	"github.com/yyy-OPS/SciDataExtractor/segment"
)

// Layer 单个图层信息
type Layer struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Source      string        `json:"source"` // auto, color, smart, mask
	Color       segment.Color `json:"color"`
	Visible     bool          `json:"visible"`
	Opacity     float64       `json:"opacity"`
	Version     int64         `json:"version"`
	PixelCount  int           `json:"pixel_count"`
	Percentage  float64       `json:"percentage"`
	BoundingBox BBox          `json:"bounding_box"`
	Mask        string        `json:"mask,omitempty"` // base64编码的mask数据
}

// AutoLayerResult 自动分层结果，同时作为 Redis 缓存内容
type AutoLayerResult struct {
	MD5        string  `json:"md5"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Layers     []Layer `json:"layers"`
	Diagnostic string  `json:"diagnostic,omitempty"`
	Cached     bool    `json:"cached"`
	Timestamp  int64   `json:"timestamp"`
}

// BBox 边界框
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MaskPayload 单通道掩码：PNG 的 base64（可带 data URL 前缀）及显式尺寸
type MaskPayload struct {
	Width  int    `json:"width" binding:"required,min=1"`
	Height int    `json:"height" binding:"required,min=1"`
	Data   string `json:"data" binding:"required"`
}

// Point 像素坐标
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}
