package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yyy-OPS/SciDataExtractor/calibration"
	"github.com/yyy-OPS/SciDataExtractor/mask"
	"github.com/yyy-OPS/SciDataExtractor/model"
	"github.com/yyy-OPS/SciDataExtractor/raster"
	"github.com/yyy-OPS/SciDataExtractor/segment"
	"github.com/yyy-OPS/SciDataExtractor/series"
	"github.com/yyy-OPS/SciDataExtractor/service"
	"github.com/yyy-OPS/SciDataExtractor/tracer"
	"github.com/yyy-OPS/SciDataExtractor/utils"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{service.ErrSessionNotFound, http.StatusNotFound, "会话不存在或已过期"},
	{service.ErrLayerNotFound, http.StatusNotFound, "图层不存在"},
	{service.ErrVersionConflict, http.StatusConflict, "图层已被修改，请刷新后重试"},
	{service.ErrTooManySessions, http.StatusServiceUnavailable, "会话数量已达上限"},
	{service.ErrTooManyLayers, http.StatusServiceUnavailable, "图层数量已达上限"},
	{service.ErrQueueFull, http.StatusServiceUnavailable, "服务繁忙，请稍后重试"},
	{service.ErrMissingOperand, http.StatusBadRequest, "缺少第二个操作数"},
	{service.ErrNoLayerSource, http.StatusBadRequest, "请提供掩码或颜色"},
	{service.ErrNoMaskSource, http.StatusBadRequest, "请提供图层或掩码"},
	{service.ErrInvalidROI, http.StatusBadRequest, "ROI 宽高必须为正数"},
	{mask.ErrDimensionMismatch, http.StatusBadRequest, "掩码尺寸与图像不一致"},
	{mask.ErrInvalidKernel, http.StatusBadRequest, "结构元素尺寸必须为正奇数"},
	{mask.ErrUnknownOp, http.StatusBadRequest, "不支持的掩码运算"},
	{mask.ErrOperandCount, http.StatusBadRequest, "操作数个数错误"},
	{mask.ErrEmptyPayload, http.StatusBadRequest, "掩码数据为空"},
	{raster.ErrUnsupportedImage, http.StatusBadRequest, "无法解码图片"},
	{segment.ErrInvalidOptions, http.StatusBadRequest, "分层参数无效"},
	{segment.ErrPointOutside, http.StatusBadRequest, "点击位置超出图像范围"},
	{segment.ErrNoRegion, http.StatusUnprocessableEntity, "点击位置未分割出任何区域"},
	{calibration.ErrDegenerateCalibration, http.StatusBadRequest, "坐标轴标定无效"},
	{tracer.ErrInvalidParams, http.StatusBadRequest, "追踪参数无效"},
	{tracer.ErrNoStartPixel, http.StatusUnprocessableEntity, "起点附近没有曲线像素"},
	{series.ErrInvalidWindow, http.StatusBadRequest, "平滑窗口无效"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "处理超时"},
	{context.Canceled, 499, "请求已取消"},
}

// classify 把领域错误映射为 HTTP 状态码和提示
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, "服务器内部错误"
}

func respondError(c *gin.Context, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		utils.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		utils.Logger.Debug("request rejected",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, model.ErrorResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, model.ErrorResponse{
		Success: false,
		Message: "请求参数错误",
		Error:   err.Error(),
	})
}

func respondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}
