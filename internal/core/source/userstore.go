package source

import (
	"context"
	"errors"

	"dish-directory/internal/pkg/common"
)

// UserStoreConnector 使用者投稿庫連接器
type UserStoreConnector struct {
	repo Repository
}

// NewUserStoreConnector 創建投稿庫連接器
func NewUserStoreConnector(repo Repository) *UserStoreConnector {
	return &UserStoreConnector{repo: repo}
}

// Fetch 以名稱片段查詢投稿庫
// 食材模式取字首食材作為片段，未帶身份一律拒絕
func (c *UserStoreConnector) Fetch(ctx context.Context, query common.SearchQuery, identity common.Identity) ([]common.RawRecord, error) {
	if identity == nil {
		return nil, common.ErrPermissionDenied
	}

	fragment := query.Term
	if query.Mode == common.ModeIngredient {
		fragment = query.LeadingToken()
	}

	records, err := c.repo.FindByNameFragment(ctx, fragment, identity)
	if err != nil {
		// 已分類的錯誤原樣上拋，其他一律視為來源不可用
		var ce *common.CustomError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, common.NewError(common.ErrCodeUnavailable, "user store query failed", err)
	}

	return records, nil
}

// Source 回報來源標籤
func (c *UserStoreConnector) Source() common.Source {
	return common.SourceUserStore
}
