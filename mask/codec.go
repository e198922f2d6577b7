package mask

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

const dataURLPrefix = "data:image/png;base64,"

// ErrEmptyPayload 掩码数据为空
var ErrEmptyPayload = errors.New("empty mask payload")

// EncodePNG 将掩码编码为单通道 PNG
func EncodePNG(m *Mask) ([]byte, error) {
	mat, err := m.toMat()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	data, err := gocv.IMEncode(".png", mat)
	if err != nil {
		return nil, fmt.Errorf("encode mask: %w", err)
	}
	defer data.Close()

	out := make([]byte, len(data.GetBytes()))
	copy(out, data.GetBytes())
	return out, nil
}

// EncodeBase64 编码为 data URL 形式的 Base64 PNG
func EncodeBase64(m *Mask) (string, error) {
	png, err := EncodePNG(m)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// DecodePNG 解码单通道位图，非零像素为前景
func DecodePNG(buf []byte) (*Mask, error) {
	if len(buf) == 0 {
		return nil, ErrEmptyPayload
	}
	mat, err := gocv.IMDecode(buf, gocv.IMReadGrayScale)
	if err != nil {
		return nil, fmt.Errorf("decode mask: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("decode mask: not a valid image")
	}

	gray, err := fromGrayMat(mat)
	if err != nil {
		return nil, err
	}
	return gray, nil
}

// DecodeBase64 解码 Base64 PNG（可带 data URL 前缀），并要求尺寸与 width×height 一致。
// 不做任何隐式缩放。
func DecodeBase64(s string, width, height int) (*Mask, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode mask base64: %w", err)
	}
	m, err := DecodePNG(raw)
	if err != nil {
		return nil, err
	}
	if m.width != width || m.height != height {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrDimensionMismatch, m.width, m.height, width, height)
	}
	return m, nil
}

// fromGrayMat 阈值 127 与 FromBytes 保持一致
func fromGrayMat(mat gocv.Mat) (*Mask, error) {
	return FromBytes(mat.Cols(), mat.Rows(), mat.ToBytes())
}
