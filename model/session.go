package model

// Session 会话信息
type Session struct {
	ID        string  `json:"id"`
	MD5       string  `json:"md5"`
	Format    string  `json:"format"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	CreatedAt int64   `json:"created_at"`
	Layers    []Layer `json:"layers"`
}

// Response 通用成功响应
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
