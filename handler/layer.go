package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yyy-OPS/SciDataExtractor/model"
	"github.com/yyy-OPS/SciDataExtractor/service"
)

type LayerHandler struct {
	store  *service.SessionStore
	layers *service.LayerService
}

func NewLayerHandler(store *service.SessionStore, layers *service.LayerService) *LayerHandler {
	return &LayerHandler{store: store, layers: layers}
}

// AutoLayers 颜色聚类自动分层
func (h *LayerHandler) AutoLayers(c *gin.Context) {
	var req model.AutoLayersRequest
	// 空请求体使用默认参数
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, err)
		return
	}
	result, err := h.layers.AutoLayers(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	message := "处理成功"
	if result.Cached {
		message = "处理成功（来自缓存）"
	}
	respondOK(c, message, result)
}

// SampleColor 取色
func (h *LayerHandler) SampleColor(c *gin.Context) {
	var req model.SampleColorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	color, err := h.layers.SampleColor(c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "取色成功", color)
}

// List 图层列表，不带掩码
func (h *LayerHandler) List(c *gin.Context) {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	layers := sess.Layers()
	out := make([]model.Layer, 0, len(layers))
	for _, l := range layers {
		out = append(out, service.ToModelLayer(l, false))
	}
	respondOK(c, "查询成功", out)
}

// Get 单个图层，带掩码
func (h *LayerHandler) Get(c *gin.Context) {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	l, err := sess.Layer(c.Param("layer"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "查询成功", service.ToModelLayer(l, true))
}

// Create 由掩码或颜色新建图层
func (h *LayerHandler) Create(c *gin.Context) {
	var req model.CreateLayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	l, err := h.layers.CreateLayer(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "创建成功", service.ToModelLayer(l, true))
}

// SmartSegment 点选分割
func (h *LayerHandler) SmartSegment(c *gin.Context) {
	var req model.SmartSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	l, err := h.layers.SmartSegment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "分割成功", service.ToModelLayer(l, true))
}

// Update 修改图层属性
func (h *LayerHandler) Update(c *gin.Context) {
	var req model.UpdateLayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	l, err := h.layers.UpdateLayer(c.Param("id"), c.Param("layer"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "更新成功", service.ToModelLayer(l, false))
}

// ApplyOp 掩码运算
func (h *LayerHandler) ApplyOp(c *gin.Context) {
	var req model.MaskOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	l, err := h.layers.ApplyOp(c.Param("id"), c.Param("layer"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "运算成功", service.ToModelLayer(l, true))
}

// ApplyStrokes 画笔、橡皮擦修补
func (h *LayerHandler) ApplyStrokes(c *gin.Context) {
	var req model.StrokesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	l, err := h.layers.ApplyStrokes(c.Param("id"), c.Param("layer"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "修改成功", service.ToModelLayer(l, true))
}

// RedrawCurve 用编辑后的曲线点重绘图层
func (h *LayerHandler) RedrawCurve(c *gin.Context) {
	var req model.CurveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	l, err := h.layers.RedrawCurve(c.Param("id"), c.Param("layer"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "曲线更新成功", service.ToModelLayer(l, true))
}

// Delete 删除图层
func (h *LayerHandler) Delete(c *gin.Context) {
	if err := h.layers.DeleteLayer(c.Param("id"), c.Param("layer")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "删除成功", nil)
}

// Preview 图层合成预览 PNG，?selected= 指定高亮图层
func (h *LayerHandler) Preview(c *gin.Context) {
	png, err := h.layers.Preview(c.Param("id"), c.Query("selected"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
