package search

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dish-directory/internal/core/ai/governor"
	"dish-directory/internal/core/recipe"
	"dish-directory/internal/core/source"
	"dish-directory/internal/infrastructure/config"
	"dish-directory/internal/pkg/common"

	"go.uber.org/zap"
)

// Service 聚合搜尋服務
// 三個來源並行抓取，任何單一來源失敗都不會中斷整體搜尋
type Service struct {
	config    *config.Config
	userStore source.Connector
	external  source.Connector
	governor  *governor.Governor
}

// Result 一次搜尋的聚合結果
type Result struct {
	Recipes []common.Recipe `json:"recipes"`
	// Sources 有貢獻紀錄的來源，依優先順序排列
	Sources []common.Source `json:"sources"`
}

// NewService 創建聚合搜尋服務
func NewService(cfg *config.Config, userStore, external source.Connector, gov *governor.Governor) *Service {
	return &Service{
		config:    cfg,
		userStore: userStore,
		external:  external,
		governor:  gov,
	}
}

// Search 聚合三個來源的搜尋結果
// 無效查詢在任何 I/O 之前拒絕；全部來源同時失敗才回傳錯誤
func (s *Service) Search(ctx context.Context, term string, mode common.SearchMode, identity common.Identity) (*Result, error) {
	query, err := common.NewSearchQuery(term, mode)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	var (
		wg        sync.WaitGroup
		otherHits atomic.Int64

		userRecords []common.RawRecord
		userErr     error
		extRecords  []common.RawRecord
		extErr      error
		aiResult    governor.Result
	)

	// 供守門員判斷重試是否值得：其他來源已有結果就不再花錢重試
	othersHaveResults := func() bool {
		return otherHits.Load() > 0
	}

	wg.Add(3)

	go func() {
		defer wg.Done()
		userRecords, userErr = s.userStore.Fetch(ctx, query, identity)
		if userErr != nil {
			common.LogWarn("投稿庫查詢失敗",
				zap.String("query", query.Term),
				zap.String("error_kind", common.Kind(userErr)),
				zap.Error(userErr),
			)
			return
		}
		if len(userRecords) > 0 {
			otherHits.Add(1)
		}
	}()

	go func() {
		defer wg.Done()
		extRecords, extErr = s.external.Fetch(ctx, query, identity)
		if extErr != nil {
			common.LogWarn("公開食譜 API 查詢失敗",
				zap.String("query", query.Term),
				zap.String("error_kind", common.Kind(extErr)),
				zap.Error(extErr),
			)
			return
		}
		if len(extRecords) > 0 {
			otherHits.Add(1)
		}
	}()

	go func() {
		defer wg.Done()
		aiResult = s.governor.Invoke(ctx, query, othersHaveResults)
	}()

	wg.Wait()

	// 全部來源同時失敗才對外失敗，部分失敗只是少一種貢獻
	if userErr != nil && extErr != nil && aiResult.Failed() {
		common.LogError("所有來源同時失敗",
			zap.String("query", query.Term),
			zap.String("mode", string(query.Mode)),
		)
		return nil, common.ErrAggregateUnavailable
	}

	batches := map[common.Source][]common.Recipe{
		common.SourceUserStore:   recipe.NormalizeBatch(userRecords, common.SourceUserStore),
		common.SourceExternalAPI: recipe.NormalizeBatch(extRecords, common.SourceExternalAPI),
		common.SourceAI:          aiResult.Recipes,
	}
	rawCounts := map[common.Source]int{
		common.SourceUserStore:   len(userRecords),
		common.SourceExternalAPI: len(extRecords),
		common.SourceAI:          len(aiResult.Recipes),
	}

	// 依設定的優先順序串接，再交給去重引擎
	merged := make([]common.Recipe, 0, len(userRecords)+len(extRecords)+len(aiResult.Recipes))
	contributing := make([]common.Source, 0, 3)
	for _, name := range s.config.Sources.Priority {
		src := common.Source(name)
		merged = append(merged, batches[src]...)
		if rawCounts[src] > 0 {
			contributing = append(contributing, src)
		}
	}

	recipes := recipe.Dedup(merged)

	common.LogInfo("搜尋完成",
		zap.String("query", query.Term),
		zap.String("mode", string(query.Mode)),
		zap.Int("results", len(recipes)),
		zap.Int("sources", len(contributing)),
		zap.Bool("ai_cache_hit", aiResult.CacheHit),
		zap.Duration("duration", time.Since(start)),
	)

	return &Result{Recipes: recipes, Sources: contributing}, nil
}
