package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yyy-OPS/SciDataExtractor/model"
	"github.com/yyy-OPS/SciDataExtractor/service"
)

type ExtractHandler struct {
	extract *service.ExtractService
}

func NewExtractHandler(extract *service.ExtractService) *ExtractHandler {
	return &ExtractHandler{extract: extract}
}

// Extract 提取曲线数据
func (h *ExtractHandler) Extract(c *gin.Context) {
	var req model.ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	result, err := h.extract.Extract(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	message := "提取成功"
	if result.Count == 0 {
		message = "未提取到数据点"
	}
	respondOK(c, message, result)
}

// ExtractPoints 换算编辑后的曲线点
func (h *ExtractHandler) ExtractPoints(c *gin.Context) {
	var req model.ExtractPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	result, err := h.extract.ExtractPoints(c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	message := fmt.Sprintf("成功提取 %d 个数据点", result.Count)
	if result.Count == 0 {
		message = "未提取到数据点"
	}
	respondOK(c, message, result)
}

// Overlay 追踪路径的 SVG 预览
func (h *ExtractHandler) Overlay(c *gin.Context) {
	var req model.ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	svg, err := h.extract.Overlay(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/svg+xml", svg)
}
