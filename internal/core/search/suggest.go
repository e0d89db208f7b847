package search

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"dish-directory/internal/core/ai/provider"
	"dish-directory/internal/infrastructure/config"
	"dish-directory/internal/pkg/common"

	"go.uber.org/zap"
)

// State 補全守門員狀態
type State string

const (
	StateIdle    State = "idle"
	StateCooling State = "cooling" // 配額用盡後的冷卻期
)

// 最短觸發長度（以 rune 計），更短的輸入直接回空、零成本
const minSuggestRunes = 3

// Suggester 自動補全守門員
// 與生成調用守門員各自獨立，只有冷卻、長度守門與結果驗收三條規則
type Suggester struct {
	config    *config.Config
	completer provider.Completer

	mu           sync.Mutex
	coolingUntil time.Time

	now func() time.Time
}

// NewSuggester 創建補全守門員
func NewSuggester(cfg *config.Config, completer provider.Completer) *Suggester {
	return &Suggester{
		config:    cfg,
		completer: completer,
		now:       time.Now,
	}
}

// Suggest 回傳查詢補全建議
// 永不失敗：模型異常、冷卻、不合格的建議一律化為空字串
func (s *Suggester) Suggest(ctx context.Context, partial string) string {
	partial = strings.TrimSpace(partial)

	if utf8.RuneCountInString(partial) < minSuggestRunes {
		return ""
	}

	if !s.config.OpenRouter.Enabled || s.completer == nil {
		return ""
	}

	if s.cooling() {
		return ""
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.Suggest.Timeout)
	defer cancel()

	suggestion, err := s.completer.Complete(callCtx, partial)
	if err != nil {
		if common.Kind(err) == common.ErrCodeQuotaExceeded {
			s.beginCooling()
		}
		common.LogWarn("補全調用失敗",
			zap.String("partial", partial),
			zap.String("error_kind", common.Kind(err)),
		)
		return ""
	}

	if !acceptable(partial, suggestion) {
		common.LogDebug("補全結果不合格，丟棄",
			zap.String("partial", partial),
			zap.String("suggestion", suggestion),
		)
		return ""
	}

	return suggestion
}

// State 回報目前狀態，冷卻到期即惰性回到 Idle
func (s *Suggester) State() State {
	if s.cooling() {
		return StateCooling
	}
	return StateIdle
}

// acceptable 建議必須非空、嚴格比輸入長、且以輸入為前綴（不分大小寫）
func acceptable(partial, suggestion string) bool {
	if suggestion == "" {
		return false
	}
	if utf8.RuneCountInString(suggestion) <= utf8.RuneCountInString(partial) {
		return false
	}
	return strings.HasPrefix(strings.ToLower(suggestion), strings.ToLower(partial))
}

func (s *Suggester) cooling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.coolingUntil)
}

func (s *Suggester) beginCooling() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.coolingUntil = s.now().Add(s.config.Suggest.Cooldown)
	common.LogWarn("補全配額用盡，進入冷卻",
		zap.Time("cooling_until", s.coolingUntil),
	)
}
