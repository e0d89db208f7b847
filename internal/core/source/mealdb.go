package source

import (
	"context"
	"fmt"
	"net/http"

	"dish-directory/internal/infrastructure/config"
	"dish-directory/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// MealDBConnector 公開食譜 API 連接器
type MealDBConnector struct {
	config *config.Config
	client *resty.Client
}

// NewMealDBConnector 創建公開食譜 API 連接器
func NewMealDBConnector(cfg *config.Config) *MealDBConnector {
	client := resty.New().
		SetBaseURL(cfg.MealAPI.BaseURL).
		SetTimeout(cfg.MealAPI.Timeout)

	return &MealDBConnector{
		config: cfg,
		client: client,
	}
}

// Fetch 查詢公開食譜 API
// 名稱模式走 search.php，食材模式走 filter.php 並取字首食材
func (c *MealDBConnector) Fetch(ctx context.Context, query common.SearchQuery, _ common.Identity) ([]common.RawRecord, error) {
	endpoint, param := "/search.php", "s"
	term := query.Term
	if query.Mode == common.ModeIngredient {
		endpoint, param = "/filter.php", "i"
		term = query.LeadingToken()
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam(param, term).
		Get(endpoint)

	if err != nil {
		return nil, common.NewError(common.ErrCodeUnavailable, "failed to reach recipe API", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, common.NewError(common.ErrCodeNotFound, "recipe API endpoint not found", nil)
	case http.StatusTooManyRequests:
		return nil, common.NewError(common.ErrCodeRateLimited, "recipe API rate limited", nil)
	default:
		return nil, common.NewError(common.ErrCodeUnavailable,
			fmt.Sprintf("recipe API returned status %d", resp.StatusCode()), nil)
	}

	// {"meals": null} 代表查無資料，不是錯誤
	var result struct {
		Meals []common.RawRecord `json:"meals"`
	}
	if err := common.ParseJSONBytes(resp.Body(), &result); err != nil {
		return nil, common.NewError(common.ErrCodeUnavailable, "failed to parse recipe API response", err)
	}

	if result.Meals == nil {
		common.LogDebug("公開食譜 API 查無資料",
			zap.String("term", term),
			zap.String("endpoint", endpoint),
		)
		return []common.RawRecord{}, nil
	}

	common.LogDebug("公開食譜 API 回應",
		zap.String("term", term),
		zap.Int("count", len(result.Meals)),
	)
	return result.Meals, nil
}

// Source 回報來源標籤
func (c *MealDBConnector) Source() common.Source {
	return common.SourceExternalAPI
}
