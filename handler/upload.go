package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yyy-OPS/SciDataExtractor/config"
	"github.com/yyy-OPS/SciDataExtractor/model"
	"github.com/yyy-OPS/SciDataExtractor/raster"
	"github.com/yyy-OPS/SciDataExtractor/service"
	"github.com/yyy-OPS/SciDataExtractor/utils"
)

type SessionHandler struct {
	cfg   *config.UploadConfig
	store *service.SessionStore
}

func NewSessionHandler(cfg *config.UploadConfig, store *service.SessionStore) *SessionHandler {
	return &SessionHandler{
		cfg:   cfg,
		store: store,
	}
}

// Upload 上传图片并创建会话
func (h *SessionHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		utils.Logger.Error("failed to get uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请上传图片文件",
			Error:   err.Error(),
		})
		return
	}

	// 验证文件大小
	if file.Size > h.cfg.MaxSize {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.MaxSize/(1024*1024)),
		})
		return
	}

	// 验证文件类型
	contentType := file.Header.Get("Content-Type")
	if !h.isAllowedType(contentType) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "不支持的文件类型",
		})
		return
	}

	f, err := file.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	data, md5, err := utils.ReaderMD5(f, h.cfg.MaxSize)
	if err != nil {
		utils.Logger.Error("failed to read upload", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "读取文件失败",
			Error:   err.Error(),
		})
		return
	}

	img, format, err := raster.Decode(data)
	if err != nil {
		respondError(c, err)
		return
	}

	sess, err := h.store.Create(img, md5, format)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.Logger.Info("session created",
		zap.String("session", sess.ID),
		zap.String("filename", file.Filename),
		zap.String("md5", md5),
		zap.String("format", format),
		zap.Int("width", img.Width()),
		zap.Int("height", img.Height()),
		zap.Int64("size", file.Size))

	respondOK(c, "上传成功", service.ToModelSession(sess))
}

// Get 会话信息和图层列表
func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "查询成功", service.ToModelSession(sess))
}

// Delete 删除会话
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		respondError(c, err)
		return
	}
	utils.Logger.Info("session deleted", zap.String("session", id))
	respondOK(c, "删除成功", nil)
}

func (h *SessionHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}
