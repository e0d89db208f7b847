package recipe

import (
	"encoding/json"
	"fmt"
	"strings"

	"dish-directory/internal/pkg/common"

	"go.uber.org/zap"
)

// maxIngredientSlots 外部 API 的索引式食材欄位上限
// strIngredient1..strIngredient20 配對 strMeasure1..strMeasure20
const maxIngredientSlots = 20

// Normalize 將一筆原始紀錄轉為標準食譜
// 回傳錯誤只代表該筆略過，絕不代表整批失敗
func Normalize(raw common.RawRecord, src common.Source) (common.Recipe, error) {
	if raw == nil {
		return common.Recipe{}, fmt.Errorf("nil record")
	}

	switch src {
	case common.SourceUserStore:
		return normalizeUserRecord(raw)
	case common.SourceExternalAPI:
		return normalizeMealRecord(raw)
	case common.SourceAI:
		return normalizeAIRecord(raw)
	default:
		return common.Recipe{}, fmt.Errorf("unknown source: %s", src)
	}
}

// NormalizeBatch 逐筆正規化，失敗的紀錄記錄後丟棄
// 回傳值永不為 nil，輸入為 nil 或空時回傳空清單
func NormalizeBatch(raws []common.RawRecord, src common.Source) []common.Recipe {
	out := make([]common.Recipe, 0, len(raws))
	for i, raw := range raws {
		r, err := Normalize(raw, src)
		if err != nil {
			common.LogWarn("紀錄正規化失敗，略過",
				zap.String("source", string(src)),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		out = append(out, r)
	}
	return out
}

// normalizeUserRecord 使用者投稿庫紀錄
func normalizeUserRecord(raw common.RawRecord) (common.Recipe, error) {
	name := stringField(raw, "name")
	if name == "" {
		return common.Recipe{}, fmt.Errorf("missing name")
	}

	id := stringField(raw, "id")
	if id == "" {
		id = common.GenerateUUID()
	}

	return common.Recipe{
		ID:           id,
		Name:         name,
		CanonicalKey: common.CanonicalKey(name),
		Ingredients:  stringList(raw["ingredients"]),
		Instructions: stringField(raw, "instructions"),
		ImageURL:     stringField(raw, "image_url"),
		Source:       common.SourceUserStore,
		OwnerID:      stringField(raw, "owner_id"),
	}, nil
}

// normalizeMealRecord 外部食譜 API 紀錄（TheMealDB 形狀）
// 食材從索引欄位掃描，遇到第一個空欄即停止，並與份量欄位配對
func normalizeMealRecord(raw common.RawRecord) (common.Recipe, error) {
	name := stringField(raw, "strMeal")
	if name == "" {
		return common.Recipe{}, fmt.Errorf("missing strMeal")
	}

	ingredients := make([]string, 0, maxIngredientSlots)
	for i := 1; i <= maxIngredientSlots; i++ {
		ing := stringField(raw, fmt.Sprintf("strIngredient%d", i))
		if ing == "" {
			break
		}
		if measure := stringField(raw, fmt.Sprintf("strMeasure%d", i)); measure != "" {
			ing = measure + " " + ing
		}
		ingredients = append(ingredients, strings.TrimSpace(ing))
	}

	id := stringField(raw, "idMeal")
	if id == "" {
		id = common.GenerateUUID()
	}

	return common.Recipe{
		ID:           id,
		Name:         name,
		CanonicalKey: common.CanonicalKey(name),
		Ingredients:  ingredients,
		Instructions: stringField(raw, "strInstructions"),
		ImageURL:     stringField(raw, "strMealThumb"),
		Source:       common.SourceExternalAPI,
	}, nil
}

// normalizeAIRecord 模型生成紀錄，依明確 schema 驗證
// 必要欄位：name、非空 ingredients、instructions；缺一即丟棄該筆
func normalizeAIRecord(raw common.RawRecord) (common.Recipe, error) {
	name := stringField(raw, "name")
	if name == "" {
		return common.Recipe{}, fmt.Errorf("missing name")
	}

	ingredients := stringList(raw["ingredients"])
	if len(ingredients) == 0 {
		return common.Recipe{}, fmt.Errorf("missing ingredients")
	}

	instructions := instructionsField(raw["instructions"])
	if instructions == "" {
		return common.Recipe{}, fmt.Errorf("missing instructions")
	}

	id := stringField(raw, "id")
	if id == "" {
		id = common.GenerateUUID()
	}

	return common.Recipe{
		ID:           id,
		Name:         name,
		CanonicalKey: common.CanonicalKey(name),
		Ingredients:  ingredients,
		Instructions: instructions,
		ImageURL:     stringField(raw, "image_url"),
		Source:       common.SourceAI,
	}, nil
}

// stringField 從原始紀錄取字串欄位，修剪空白
// 數字欄位（json.Number）一併轉字串，其他型別視為空
func stringField(raw common.RawRecord, key string) string {
	switch v := raw[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// stringList 將任意值整理為字串清單，丟棄空項
func stringList(v any) []string {
	var items []any
	switch list := v.(type) {
	case []string:
		out := make([]string, 0, len(list))
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		items = list
	default:
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		switch s := item.(type) {
		case string:
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		case json.Number:
			out = append(out, s.String())
		}
	}
	return out
}

// instructionsField 作法欄位可能是字串或字串陣列，統一為換行分隔字串
func instructionsField(v any) string {
	switch inst := v.(type) {
	case string:
		return strings.TrimSpace(inst)
	case []any, []string:
		return strings.Join(stringList(inst), "\n")
	default:
		return ""
	}
}
