package utils

import (
	"github.com/google/uuid"
)

// NewID 生成会话、图层使用的随机 ID
func NewID() string {
	return uuid.NewString()
}

// ShortID 取 ID 前 8 位，用于默认图层名
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
