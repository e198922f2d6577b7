package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
)

// ReaderMD5 读取全部内容并计算 MD5，返回内容和十六进制摘要
func ReaderMD5(r io.Reader, limit int64) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("content exceeds %d bytes", limit)
	}
	return data, BytesMD5(data), nil
}

// BytesMD5 计算字节数组MD5
func BytesMD5(data []byte) string {
	hash := md5.New()
	hash.Write(data)
	return hex.EncodeToString(hash.Sum(nil))
}
