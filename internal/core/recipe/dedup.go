package recipe

import (
	"dish-directory/internal/pkg/common"
)

// Dedup 依標準鍵合併同一道菜的多筆紀錄
// 輸入須已依來源優先順序串接；單獨成組的紀錄原樣通過，
// 兩筆以上合併為一筆 combined 紀錄。對自身輸出再跑一次結果不變。
func Dedup(in []common.Recipe) []common.Recipe {
	out := make([]common.Recipe, 0, len(in))
	if len(in) == 0 {
		return out
	}

	groups := make(map[string][]common.Recipe, len(in))
	order := make([]string, 0, len(in))
	for _, r := range in {
		key := r.CanonicalKey
		if key == "" {
			key = common.CanonicalKey(r.Name)
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	for _, key := range order {
		members := groups[key]
		if len(members) == 1 {
			out = append(out, members[0])
			continue
		}
		out = append(out, merge(key, members))
	}
	return out
}

// merge 合併同鍵成員
// 食材取數量最多的成員（內容最豐富），作法取最長的成員（細節最多）；
// 平手時保留最先出現（優先序最高）的成員。ID、OwnerID 與名稱
// 一律沿用第一個成員，圖片取第一個非空值。
func merge(key string, members []common.Recipe) common.Recipe {
	merged := members[0]
	merged.CanonicalKey = key
	merged.Source = common.SourceCombined

	for _, m := range members[1:] {
		if len(m.Ingredients) > len(merged.Ingredients) {
			merged.Ingredients = m.Ingredients
		}
		if len(m.Instructions) > len(merged.Instructions) {
			merged.Instructions = m.Instructions
		}
		if merged.ImageURL == "" && m.ImageURL != "" {
			merged.ImageURL = m.ImageURL
		}
	}
	return merged
}
