package handler

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 挂载 /api/v1 下的全部接口
func RegisterRoutes(api *gin.RouterGroup, sessions *SessionHandler, layers *LayerHandler, extract *ExtractHandler) {
	api.POST("/sessions", sessions.Upload)

	s := api.Group("/sessions/:id")
	{
		s.GET("", sessions.Get)
		s.DELETE("", sessions.Delete)

		s.POST("/sample-color", layers.SampleColor)
		s.POST("/auto-layers", layers.AutoLayers)
		s.POST("/smart-segment", layers.SmartSegment)
		s.GET("/preview", layers.Preview)

		s.GET("/layers", layers.List)
		s.POST("/layers", layers.Create)
		s.GET("/layers/:layer", layers.Get)
		s.PATCH("/layers/:layer", layers.Update)
		s.DELETE("/layers/:layer", layers.Delete)
		s.POST("/layers/:layer/ops", layers.ApplyOp)
		s.POST("/layers/:layer/strokes", layers.ApplyStrokes)
		s.PUT("/layers/:layer/curve", layers.RedrawCurve)

		s.POST("/extract", extract.Extract)
		s.POST("/extract/overlay", extract.Overlay)
		s.POST("/extract/points", extract.ExtractPoints)
	}
}
