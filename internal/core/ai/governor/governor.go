package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dish-directory/internal/core/ai/cache"
	"dish-directory/internal/core/ai/provider"
	"dish-directory/internal/core/recipe"
	"dish-directory/internal/infrastructure/config"
	"dish-directory/internal/pkg/common"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Governor 生成調用守門員
// 聚合器不直接觸碰模型，所有生成請求都經過這裡：
// 先查緩存，再檢查冷卻與調用間隔，最後才真正調用模型
// 模型的任何失敗都被吸收為空結果，不會讓整體搜尋失敗
type Governor struct {
	config    *config.Config
	generator provider.Generator
	cache     *cache.CacheManager
	pool      *ants.Pool

	mu             sync.Mutex
	lastInvocation time.Time
	cooldownUntil  time.Time

	now func() time.Time
}

// Result 單次生成請求的結果
type Result struct {
	Recipes  []common.Recipe
	Skipped  bool // 守門員主動略過（停用、冷卻、間隔過短）
	CacheHit bool
	Err      error // 已被吸收的失敗原因，供聚合器判斷來源是否全滅
}

// Failed 回報此來源是否未能供應結果
func (r Result) Failed() bool {
	return r.Err != nil || r.Skipped
}

// New 創建生成調用守門員
func New(cfg *config.Config, gen provider.Generator, cacheManager *cache.CacheManager) (*Governor, error) {
	pool, err := ants.NewPool(cfg.Governor.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Governor{
		config:    cfg,
		generator: gen,
		cache:     cacheManager,
		pool:      pool,
		now:       time.Now,
	}, nil
}

// Invoke 處理一次生成請求
// othersHaveResults 回報其他來源是否已有結果，用於決定逾時後是否值得重試
func (g *Governor) Invoke(ctx context.Context, query common.SearchQuery, othersHaveResults func() bool) Result {
	if !g.config.OpenRouter.Enabled {
		return Result{Skipped: true}
	}

	cacheKey := query.CacheKey()

	// 緩存在冷卻檢查之前：冷卻期間命中的緩存仍可回應
	if recipes, ok := g.cache.Get(cacheKey); ok {
		return Result{Recipes: recipes, CacheHit: true}
	}

	if remaining, cooling := g.coolingDown(); cooling {
		common.LogWarn("模型冷卻中，略過生成",
			zap.String("query", query.Term),
			zap.Duration("remaining", remaining),
		)
		return Result{Skipped: true}
	}

	if !g.acquireInvocationSlot() {
		common.LogDebug("生成調用間隔過短，略過",
			zap.String("query", query.Term),
		)
		return Result{Skipped: true}
	}

	start := g.now()
	records, err := g.attempt(ctx, query, g.config.OpenRouter.Timeout)

	// 逾時或暫時性失敗、其他來源又都沒有結果時，以延長逾時重試一次
	if err != nil && retryable(err) && ctx.Err() == nil && !othersHaveResults() {
		common.LogWarn("生成失敗，以延長逾時重試一次",
			zap.String("query", query.Term),
			zap.String("error_kind", common.Kind(err)),
		)
		records, err = g.attempt(ctx, query, g.config.OpenRouter.ExtendedTimeout)
	}

	common.LogAICall(query.Term, string(query.Mode), g.now().Sub(start), err)

	if err != nil {
		if common.Kind(err) == common.ErrCodeQuotaExceeded {
			g.beginCooldown()
		}
		return Result{Err: err}
	}

	recipes := recipe.NormalizeBatch(records, common.SourceAI)

	// 空結果同樣入緩存，存活時間內不再為同一查詢調用模型
	if cerr := g.cache.Set(cacheKey, recipes); cerr != nil {
		common.LogWarn("快取寫入失敗",
			zap.String("query", query.Term),
			zap.Error(cerr),
		)
	}

	return Result{Recipes: recipes}
}

// attempt 在工作池中執行一次生成，逾時後的回應會被直接丟棄
func (g *Governor) attempt(ctx context.Context, query common.SearchQuery, timeout time.Duration) ([]common.RawRecord, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type genResult struct {
		records []common.RawRecord
		err     error
	}

	// 緩衝為一，逾時放棄後工作協程的回傳不會阻塞
	resultCh := make(chan genResult, 1)

	if err := g.pool.Submit(func() {
		records, err := g.generator.Generate(attemptCtx, query)
		resultCh <- genResult{records: records, err: err}
	}); err != nil {
		return nil, common.NewError(common.ErrCodeUnavailable, "failed to submit generation task", err)
	}

	select {
	case res := <-resultCh:
		return res.records, res.err
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, common.NewError(common.ErrCodeTimeout, "generation timed out", attemptCtx.Err())
		}
		return nil, common.NewError(common.ErrCodeUnavailable, "generation canceled", attemptCtx.Err())
	}
}

// coolingDown 回報是否仍在配額冷卻期間
func (g *Governor) coolingDown() (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Before(g.cooldownUntil) {
		return g.cooldownUntil.Sub(now), true
	}
	return 0, false
}

// acquireInvocationSlot 檢查距上次調用的間隔，放行時一併更新時間戳
// 被略過的請求不會更新時間戳
func (g *Governor) acquireInvocationSlot() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.config.Governor.MinInterval > 0 &&
		!g.lastInvocation.IsZero() &&
		now.Sub(g.lastInvocation) < g.config.Governor.MinInterval {
		return false
	}

	g.lastInvocation = now
	return true
}

// beginCooldown 配額用盡後進入冷卻，期間所有生成請求直接略過
func (g *Governor) beginCooldown() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cooldownUntil = g.now().Add(g.config.Governor.Cooldown)
	common.LogWarn("模型配額用盡，進入冷卻",
		zap.Time("cooldown_until", g.cooldownUntil),
		zap.Duration("cooldown", g.config.Governor.Cooldown),
	)
}

// retryable 暫時性失敗才值得重試，配額用盡與輸出異常不重試
func retryable(err error) bool {
	switch common.Kind(err) {
	case common.ErrCodeTimeout, common.ErrCodeUnavailable:
		return true
	}
	return false
}

// Close 釋放工作池
func (g *Governor) Close() error {
	g.pool.Release()
	return nil
}
