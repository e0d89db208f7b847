package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"dish-directory/internal/infrastructure/config"
	"dish-directory/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// 記錄回應片段時的長度上限，避免日誌被模型輸出灌爆
const logBodyLimit = 200

// Client OpenRouter API 客戶端
// 透過聊天補全端點產生食譜候選與菜名補全
type Client struct {
	config *config.Config
	client *resty.Client
}

// Message 消息結構
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request 表示 API 請求
type Request struct {
	Model     string    `json:"model,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Choice 選擇結構
type Choice struct {
	Message Message `json:"message"`
}

// Response OpenRouter 響應結構
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// NewClient 創建新的 OpenRouter 客戶端
func NewClient(cfg *config.Config) *Client {
	client := resty.New().
		SetBaseURL(defaultBaseURL).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.OpenRouter.APIKey)).
		SetHeader("HTTP-Referer", "https://dish-directory.local").
		SetHeader("X-Title", "Dish Directory")

	return &Client{
		config: cfg,
		client: client,
	}
}

// Generate 依查詢生成食譜候選清單
// 模型輸出 null 或空陣列視為查無結果，回傳空清單而非錯誤
func (c *Client) Generate(ctx context.Context, query common.SearchQuery) ([]common.RawRecord, error) {
	content, err := c.chat(ctx, recipePrompt(query))
	if err != nil {
		return nil, err
	}
	return parseRecipeRecords(content)
}

// Complete 補全使用者輸入到一半的菜名，回傳單行純文字
func (c *Client) Complete(ctx context.Context, partial string) (string, error) {
	content, err := c.chat(ctx, completionPrompt(partial))
	if err != nil {
		return "", err
	}
	return sanitizeCompletion(content), nil
}

// GetModel 回傳使用中的模型名稱
func (c *Client) GetModel() string {
	return c.config.OpenRouter.Model
}

// Close 關閉客戶端
func (c *Client) Close() error {
	c.client.GetClient().CloseIdleConnections()
	return nil
}

// chat 發送聊天補全請求並取出第一個選項的內容
func (c *Client) chat(ctx context.Context, prompt string) (string, error) {
	// 構建請求
	req := Request{
		Model: c.config.OpenRouter.Model,
		Messages: []Message{
			{
				Role:    "user",
				Content: prompt,
			},
		},
		MaxTokens: c.config.OpenRouter.MaxTokens,
	}

	common.LogDebug("發送 OpenRouter 請求",
		zap.String("model", req.Model),
		zap.Int("prompt_length", len(prompt)),
	)

	// 發送請求
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/chat/completions")

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", common.NewError(common.ErrCodeTimeout, "model did not answer in time", err)
		}
		return "", common.NewError(common.ErrCodeUnavailable, "failed to send request to OpenRouter", err)
	}

	// 檢查 HTTP 狀態碼
	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		common.LogWarn("OpenRouter 配額用盡",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("response", trimForLog(resp.String())),
		)
		return "", common.NewError(common.ErrCodeQuotaExceeded, "model quota exhausted",
			fmt.Errorf("OpenRouter API returned status %d", resp.StatusCode()))
	default:
		common.LogWarn("OpenRouter 回應異常狀態",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("response", trimForLog(resp.String())),
		)
		return "", common.NewError(common.ErrCodeUnavailable, "OpenRouter API returned error",
			fmt.Errorf("status %d: %s", resp.StatusCode(), trimForLog(resp.String())))
	}

	// 解析響應
	var result Response
	if err := common.ParseJSONBytes(resp.Body(), &result); err != nil {
		return "", common.NewError(common.ErrCodeInvalidOutput, "failed to parse OpenRouter response", err)
	}
	if len(result.Choices) == 0 {
		return "", common.NewError(common.ErrCodeInvalidOutput, "no choices in OpenRouter response", nil)
	}

	return result.Choices[0].Message.Content, nil
}

// recipePrompt 構建食譜生成提示詞
func recipePrompt(query common.SearchQuery) string {
	subject := fmt.Sprintf("菜名包含「%s」", query.Term)
	if query.Mode == common.ModeIngredient {
		subject = fmt.Sprintf("使用食材「%s」", query.Term)
	}

	return fmt.Sprintf(`請列出 3 到 5 道%s的食譜。

要求：
1. 只輸出 JSON 陣列，不要任何說明文字或 Markdown 標記
2. 每道食譜包含 name、ingredients、instructions、image_url 四個欄位
3. ingredients 為字串陣列，每項含份量與食材名稱
4. instructions 為完整的烹飪步驟文字
5. 沒有合適的圖片時 image_url 留空字串
6. 想不出任何食譜時輸出空陣列 []

格式範例：
[
    {
        "name": "菜名",
        "ingredients": ["2顆 蛋", "100克 麵粉"],
        "instructions": "步驟說明",
        "image_url": ""
    }
]`, subject)
}

// completionPrompt 構建菜名補全提示詞
func completionPrompt(partial string) string {
	return fmt.Sprintf(`使用者正在輸入菜名，目前輸入為「%s」。
請補全為一個最可能的完整菜名，以相同開頭延續使用者的輸入。
直接輸出補全後的完整菜名，單行純文字，不要任何說明、引號或標點。`, partial)
}

// parseRecipeRecords 從模型輸出中提取食譜陣列
// 模型常在 JSON 前後附加說明文字或 Markdown 圍欄，先裁切再解析
func parseRecipeRecords(content string) ([]common.RawRecord, error) {
	content = strings.TrimSpace(content)
	content = stripFences(content)

	if content == "" || content == "null" {
		return []common.RawRecord{}, nil
	}

	// 優先提取 JSON 陣列
	if start, end := strings.Index(content, "["), strings.LastIndex(content, "]"); start != -1 && end > start {
		if records, err := decodeRecords(content[start : end+1]); err == nil {
			return records, nil
		}
	}

	// 退回物件形式 {"recipes": [...]}
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start != -1 && end > start {
		candidate := content[start : end+1]
		var envelope struct {
			Recipes []common.RawRecord `json:"recipes"`
		}
		if err := common.ParseJSON(candidate, &envelope); err == nil && envelope.Recipes != nil {
			return envelope.Recipes, nil
		}
		if err := common.ParseJSON(common.QuoteJSONKeys(candidate), &envelope); err == nil && envelope.Recipes != nil {
			return envelope.Recipes, nil
		}
	}

	common.LogWarn("模型輸出無法解析為食譜陣列",
		zap.String("content", trimForLog(content)),
	)
	return nil, common.NewError(common.ErrCodeInvalidOutput, "unexpected model output", nil)
}

// decodeRecords 解析食譜陣列，鍵未加引號時修復後重試一次
func decodeRecords(candidate string) ([]common.RawRecord, error) {
	var records []common.RawRecord
	if err := common.ParseJSON(candidate, &records); err != nil {
		if retryErr := common.ParseJSON(common.QuoteJSONKeys(candidate), &records); retryErr != nil {
			return nil, err
		}
	}
	if records == nil {
		return []common.RawRecord{}, nil
	}
	return records, nil
}

// sanitizeCompletion 將補全輸出整理為單行菜名
func sanitizeCompletion(content string) string {
	content = strings.TrimSpace(content)
	content = stripFences(content)
	if i := strings.IndexAny(content, "\r\n"); i != -1 {
		content = content[:i]
	}
	content = strings.Trim(content, "\"'「」`")
	return strings.TrimSpace(content)
}

// stripFences 移除模型輸出前後的 Markdown 圍欄
func stripFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// trimForLog 截斷過長的回應內容
func trimForLog(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > logBodyLimit {
		return s[:logBodyLimit] + "..."
	}
	return s
}
