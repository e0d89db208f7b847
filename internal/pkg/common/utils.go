package common

import (
	"github.com/google/uuid"
)

// GenerateUUID 生成 UUID
// 模型生成與使用者投稿的食譜都以此取得識別碼
func GenerateUUID() string {
	return uuid.New().String()
}
