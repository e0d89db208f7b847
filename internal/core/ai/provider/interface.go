package provider

import (
	"context"

	"dish-directory/internal/pkg/common"
)

// Generator 定義生成式能力介面
// 實作必須把底層失敗映射為 common 的錯誤分類：
// ErrQuotaExceeded、ErrTimeout、ErrInvalidOutput
type Generator interface {
	// Generate 依查詢生成食譜原始紀錄
	// 模型輸出為 JSON null 或空陣列時回傳空清單而非錯誤
	Generate(ctx context.Context, query common.SearchQuery) ([]common.RawRecord, error)

	// GetModel 獲取當前使用的模型名稱
	GetModel() string

	// Close 關閉提供者連接
	Close() error
}

// Completer 定義自動補全能力介面
type Completer interface {
	// Complete 將部分查詢補全為完整菜名，回傳單一候選
	Complete(ctx context.Context, partial string) (string, error)
}
