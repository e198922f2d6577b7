package model

import (
	"github.com/yyy-OPS/SciDataExtractor/calibration"
	"github.com/yyy-OPS/SciDataExtractor/raster"
	"github.com/yyy-OPS/SciDataExtractor/series"
)

// AutoLayersRequest 自动分层参数，未给出的字段使用配置默认值
type AutoLayersRequest struct {
	K                 *int  `json:"k" binding:"omitempty,min=1,max=32"`
	ExcludeBackground *bool `json:"exclude_background"`
	MinSaturation     *int  `json:"min_saturation" binding:"omitempty,min=0,max=255"`
	Replace           bool  `json:"replace"`
}

// SampleColorRequest 取色
type SampleColorRequest struct {
	X      int  `json:"x"`
	Y      int  `json:"y"`
	Radius *int `json:"radius" binding:"omitempty,min=0,max=20"`
}

// CreateLayerRequest 新建图层：直接上传掩码，或按颜色范围生成
type CreateLayerRequest struct {
	Name      string       `json:"name"`
	Mask      *MaskPayload `json:"mask"`
	Color     *raster.HSV  `json:"color"`
	Tolerance *int         `json:"tolerance" binding:"omitempty,min=0,max=255"`
}

// SmartSegmentRequest 点选分割
type SmartSegmentRequest struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Name      string `json:"name"`
	Method    string `json:"method" binding:"omitempty,oneof=auto grabcut color"`
	Tolerance *int   `json:"tolerance" binding:"omitempty,min=0,max=255"`
}

// UpdateLayerRequest 修改图层属性
type UpdateLayerRequest struct {
	Name            *string  `json:"name"`
	Visible         *bool    `json:"visible"`
	Opacity         *float64 `json:"opacity" binding:"omitempty,min=0,max=1"`
	ExpectedVersion *int64   `json:"expected_version"`
}

// MaskOpRequest 对图层掩码做一次运算。二元运算的另一操作数来自其他图层或上传的掩码。
type MaskOpRequest struct {
	Op              string       `json:"op" binding:"required"`
	KernelSize      int          `json:"kernel_size"`
	OperandLayer    string       `json:"operand_layer"`
	OperandMask     *MaskPayload `json:"operand_mask"`
	ExpectedVersion *int64       `json:"expected_version"`
}

// Stroke 画笔或橡皮擦轨迹
type Stroke struct {
	Points []Point `json:"points" binding:"required,min=1"`
	Radius float64 `json:"radius"`
	Erase  bool    `json:"erase"`
}

// StrokesRequest 手工修补
type StrokesRequest struct {
	Strokes         []Stroke `json:"strokes" binding:"required,min=1,dive"`
	ExpectedVersion *int64   `json:"expected_version"`
}

// CurveRequest 用编辑后的有序点重绘图层：按折线光栅化后替换原掩码
type CurveRequest struct {
	Points          []Point `json:"points" binding:"required,min=1"`
	Radius          float64 `json:"radius" binding:"omitempty,min=0,max=50"`
	ExpectedVersion *int64  `json:"expected_version"`
}

// TracerParams 单次提取覆盖的追踪参数
type TracerParams struct {
	MomentumWeight *float64 `json:"momentum_weight"`
	Inertia        *float64 `json:"inertia"`
	BaseRadius     *int     `json:"base_radius"`
	MaxGapRadius   *int     `json:"max_gap_radius"`
	SnapRadius     *int     `json:"snap_radius"`
}

// 追踪方向
const (
	DirectionAuto        = "auto"
	DirectionLeftToRight = "left_to_right"
	DirectionRightToLeft = "right_to_left"
)

// ExtractRequest 提取请求：图层或直接上传的掩码二选一
type ExtractRequest struct {
	LayerID          string                  `json:"layer_id"`
	Mask             *MaskPayload            `json:"mask"`
	Start            *Point                  `json:"start"`
	Direction        string                  `json:"direction" binding:"omitempty,oneof=auto left_to_right right_to_left"`
	Calibration      calibration.Calibration `json:"calibration"`
	ROI              *BBox                   `json:"roi"`
	ClipToPlotRegion bool                    `json:"clip_to_plot_region"`
	Tracer           *TracerParams           `json:"tracer"`
	Post             series.Options          `json:"post"`
}

// ExtractPointsRequest 直接换算一组有序像素点（例如用户编辑过的曲线），不做骨架化和追踪
type ExtractPointsRequest struct {
	Points           []Point                 `json:"points" binding:"required,min=1"`
	Calibration      calibration.Calibration `json:"calibration"`
	ROI              *BBox                   `json:"roi"`
	ClipToPlotRegion bool                    `json:"clip_to_plot_region"`
	Post             series.Options          `json:"post"`
}

// ExtractResult 提取结果
type ExtractResult struct {
	Points       []calibration.DataPoint `json:"points"`
	Count        int                     `json:"count"`
	Message      string                  `json:"message"`
	Truncated    bool                    `json:"truncated"`
	Reason       string                  `json:"reason"`
	Jumps        int                     `json:"jumps"`
	Start        *Point                  `json:"start,omitempty"`
	LayerID      string                  `json:"layer_id,omitempty"`
	LayerVersion int64                   `json:"layer_version,omitempty"`
	SkeletonSize int                     `json:"skeleton_size"`
	PathLength   int                     `json:"path_length"`
}
