package common

import (
	"strings"
	"unicode/utf8"
)

// Source 食譜來源標籤
type Source string

const (
	SourceUserStore   Source = "user_store"   // 使用者投稿庫
	SourceExternalAPI Source = "external_api" // 公開食譜 API
	SourceAI          Source = "ai"           // 生成式模型
	SourceCombined    Source = "combined"     // 由多個來源合併而成
)

// KnownSources 三個真實來源，依預設優先順序排列
// Combined 不在其中：它只會出現在合併後的紀錄上，不是可設定的來源
var KnownSources = []Source{SourceUserStore, SourceExternalAPI, SourceAI}

// RawRecord 連接器取回的原始紀錄，尚未正規化
// 只允許存在於 Normalizer 邊界之內
type RawRecord = map[string]any

// Recipe 標準食譜紀錄
// 注意：CanonicalKey 由 Name 推導，是去重分組鍵
type Recipe struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	CanonicalKey string   `json:"canonical_key"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`
	ImageURL     string   `json:"image_url,omitempty"`
	Source       Source   `json:"source"`
	OwnerID      string   `json:"owner_id,omitempty"`
}

// CanonicalKey 計算標準鍵：轉小寫＋壓縮空白
// 同一道菜的不同寫法（"Tomato  Soup" / "tomato soup"）會得到相同的鍵
func CanonicalKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// SearchMode 查詢模式
type SearchMode string

const (
	ModeName       SearchMode = "name"       // 以菜名查詢
	ModeIngredient SearchMode = "ingredient" // 以食材查詢
)

// listSeparators 查詢字串中的清單分隔符，出現即視為食材模式
const listSeparators = ",、"

// SearchQuery 驗證過的查詢，空白查詢不會產生 SearchQuery
type SearchQuery struct {
	Term string
	Mode SearchMode
}

// NewSearchQuery 驗證並建立查詢
// 空字串或純空白回傳 ErrInvalidQuery；mode 留空時依分隔符自動判斷
func NewSearchQuery(term string, mode SearchMode) (SearchQuery, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return SearchQuery{}, ErrInvalidQuery
	}

	switch mode {
	case ModeName, ModeIngredient:
	case "":
		mode = ModeName
		if strings.ContainsAny(term, listSeparators) {
			mode = ModeIngredient
		}
	default:
		return SearchQuery{}, ErrInvalidQuery
	}

	return SearchQuery{Term: term, Mode: mode}, nil
}

// CacheKey 正規化快取鍵：標準化字串＋模式
func (q SearchQuery) CacheKey() string {
	return CanonicalKey(q.Term) + ":" + string(q.Mode)
}

// LeadingToken 取第一個清單項目，食材模式查詢只用首項
func (q SearchQuery) LeadingToken() string {
	term := q.Term
	if i := strings.IndexAny(term, listSeparators); i >= 0 {
		term = term[:i]
	}
	return strings.TrimSpace(term)
}

// RuneLen 查詢長度（以 rune 計，避免多位元組字元算錯）
func (q SearchQuery) RuneLen() int {
	return utf8.RuneCountInString(q.Term)
}

// Identity 呼叫者身分，決定使用者投稿庫的可見範圍
// 伺服器端（Elevated）看得到全部，客戶端只看得到授權紀錄
type Identity interface {
	// Elevated 是否為提權（伺服器端）身分
	Elevated() bool

	// UserID 取得使用者識別，匿名時回傳 false
	UserID() (string, bool)
}

// SystemIdentity 提權身分，可見全部紀錄
type SystemIdentity struct{}

func (SystemIdentity) Elevated() bool         { return true }
func (SystemIdentity) UserID() (string, bool) { return "", false }

// UserIdentity 受限身分，只可見公開紀錄與自己的紀錄
type UserIdentity struct {
	ID string
}

func (u UserIdentity) Elevated() bool         { return false }
func (u UserIdentity) UserID() (string, bool) { return u.ID, u.ID != "" }
