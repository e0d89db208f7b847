package mock

import (
	"context"
	"sync"

	"dish-directory/internal/pkg/common"
)

// Generator 測試替身，實作 provider.Generator 與 provider.Completer
// 以函式欄位注入行為，並記錄調用次數供測試斷言
type Generator struct {
	// GenerateFunc 未設定時回傳空清單
	GenerateFunc func(ctx context.Context, query common.SearchQuery) ([]common.RawRecord, error)

	// CompleteFunc 未設定時回傳空字串
	CompleteFunc func(ctx context.Context, partial string) (string, error)

	mu            sync.Mutex
	generateCalls int
	completeCalls int
}

// NewGenerator 創建測試替身
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate 實作 provider.Generator
func (m *Generator) Generate(ctx context.Context, query common.SearchQuery) ([]common.RawRecord, error) {
	m.mu.Lock()
	m.generateCalls++
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, query)
	}
	return []common.RawRecord{}, nil
}

// Complete 實作 provider.Completer
func (m *Generator) Complete(ctx context.Context, partial string) (string, error) {
	m.mu.Lock()
	m.completeCalls++
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, partial)
	}
	return "", nil
}

// GetModel 實作 provider.Generator
func (m *Generator) GetModel() string { return "mock" }

// Close 實作 provider.Generator
func (m *Generator) Close() error { return nil }

// GenerateCalls 回傳 Generate 被調用的次數
func (m *Generator) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls
}

// CompleteCalls 回傳 Complete 被調用的次數
func (m *Generator) CompleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeCalls
}

// Reset 清除調用計數與注入行為
func (m *Generator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateCalls = 0
	m.completeCalls = 0
	m.GenerateFunc = nil
	m.CompleteFunc = nil
}
