package common

import (
	"context"
	"errors"
)

// CustomError 自定義錯誤類型，攜帶穩定的錯誤代碼供結構化日誌使用
type CustomError struct {
	Code    string // 錯誤代碼
	Message string // 錯誤信息
	Err     error  // 原始錯誤
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Err
}

// NewError 創建新的自定義錯誤
func NewError(code string, message string, err error) *CustomError {
	return &CustomError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// 預定義錯誤代碼
const (
	// 呼叫端錯誤
	ErrCodeInvalidQuery = "INVALID_QUERY" // 空白或非法查詢

	// 來源錯誤
	ErrCodeUnavailable      = "UNAVAILABLE"       // 來源暫時不可用
	ErrCodePermissionDenied = "PERMISSION_DENIED" // 投稿庫拒絕存取
	ErrCodeNotFound         = "NOT_FOUND"         // 外部 API 查無資料
	ErrCodeRateLimited      = "RATE_LIMITED"      // 外部 API 限流

	// 生成式能力錯誤
	ErrCodeQuotaExceeded = "QUOTA_EXCEEDED" // 模型配額用盡
	ErrCodeTimeout       = "TIMEOUT"        // 模型回應逾時
	ErrCodeInvalidOutput = "INVALID_OUTPUT" // 模型輸出無法解析

	// 聚合錯誤
	ErrCodeAggregateUnavailable = "AGGREGATE_UNAVAILABLE" // 所有來源同時失敗
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// 預定義錯誤
var (
	ErrInvalidQuery         = NewError(ErrCodeInvalidQuery, "query is empty or invalid", nil)
	ErrUnavailable          = NewError(ErrCodeUnavailable, "source unavailable", nil)
	ErrPermissionDenied     = NewError(ErrCodePermissionDenied, "permission denied", nil)
	ErrNotFound             = NewError(ErrCodeNotFound, "no records found", nil)
	ErrRateLimited          = NewError(ErrCodeRateLimited, "rate limited by source", nil)
	ErrQuotaExceeded        = NewError(ErrCodeQuotaExceeded, "generation quota exceeded", nil)
	ErrTimeout              = NewError(ErrCodeTimeout, "generation timed out", nil)
	ErrInvalidOutput        = NewError(ErrCodeInvalidOutput, "generation output unparseable", nil)
	ErrAggregateUnavailable = NewError(ErrCodeAggregateUnavailable, "all sources failed", nil)
)

// Kind 將任意錯誤映射為穩定的錯誤代碼字串
// 用於日誌欄位，未知錯誤一律歸為 INTERNAL_ERROR
func Kind(err error) string {
	if err == nil {
		return ""
	}

	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Code
	}

	// context 逾時視為 TIMEOUT，取消視為 UNAVAILABLE
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrCodeUnavailable
	}

	return ErrCodeInternal
}
