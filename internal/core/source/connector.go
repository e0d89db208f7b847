package source

import (
	"context"

	"dish-directory/internal/pkg/common"
)

// Connector 單一資料來源的抓取介面
// 各來源回傳自己形狀的原始紀錄，欄位差異由正規化器統一
type Connector interface {
	Fetch(ctx context.Context, query common.SearchQuery, identity common.Identity) ([]common.RawRecord, error)

	// Source 回報來源標籤
	Source() common.Source
}

// Repository 投稿庫的查詢介面
type Repository interface {
	// FindByNameFragment 以名稱片段查詢，可見範圍由身份決定
	FindByNameFragment(ctx context.Context, fragment string, identity common.Identity) ([]common.RawRecord, error)
}
