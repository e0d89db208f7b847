package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dish-directory/internal/infrastructure/config"
	"dish-directory/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCfg() *config.Config {
	return &config.Config{
		OpenRouter: config.OpenRouterConfig{
			Enabled:         true,
			APIKey:          "test-key",
			Model:           "test-model",
			MaxTokens:       512,
			Timeout:         2 * time.Second,
			ExtendedTimeout: 5 * time.Second,
		},
	}
}

// chatResponse 包裝模型輸出為聊天補全回應
func chatResponse(content string) string {
	body, _ := json.Marshal(Response{
		ID:      "gen-1",
		Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}},
	})
	return string(body)
}

func newChatClient(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(testCfg())
	c.client.SetBaseURL(srv.URL)
	return c
}

func TestParseRecipeRecords(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{
			name:    "bare json array",
			content: `[{"name": "Pho", "ingredients": ["noodles"], "instructions": "Simmer.", "image_url": ""}]`,
			want:    1,
		},
		{
			name: "markdown fenced array",
			content: "```json\n" +
				`[{"name": "Margherita Pizza", "ingredients": ["dough"], "instructions": "Bake.", "image_url": ""}]` +
				"\n```",
			want: 1,
		},
		{
			name: "array wrapped in prose",
			content: "好的，以下是推薦的食譜：\n" +
				`[{"name": "Pho", "ingredients": ["noodles"], "instructions": "Simmer.", "image_url": ""}]` +
				"\n希望對您有幫助！",
			want: 1,
		},
		{
			name:    "object envelope",
			content: `{"recipes": [{"name": "Pho"}, {"name": "Ramen"}]}`,
			want:    2,
		},
		{
			name:    "unquoted keys are repaired",
			content: `[{name: "Pizza", ingredients: ["cheese"], instructions: "Bake.", image_url: ""}]`,
			want:    1,
		},
		{
			name:    "null means no recipes",
			content: "null",
			want:    0,
		},
		{
			name:    "empty output means no recipes",
			content: "",
			want:    0,
		},
		{
			name:    "empty array",
			content: "[]",
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := parseRecipeRecords(tt.content)
			require.NoError(t, err)
			require.NotNil(t, records)
			assert.Len(t, records, tt.want)
		})
	}

	t.Run("prose without any structure is invalid output", func(t *testing.T) {
		_, err := parseRecipeRecords("抱歉，我無法提供這道菜的食譜。")
		require.Error(t, err)
		assert.Equal(t, common.ErrCodeInvalidOutput, common.Kind(err))
	})
}

func TestSanitizeCompletion(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain text", "pizza margherita", "pizza margherita"},
		{"quoted", `"pizza margherita"`, "pizza margherita"},
		{"cjk quotes", "「披薩瑪格麗特」", "披薩瑪格麗特"},
		{"fenced", "```\npizza margherita\n```", "pizza margherita"},
		{"keeps first line only", "pizza margherita\n以上是補全結果", "pizza margherita"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeCompletion(tt.content))
		})
	}
}

func TestGenerateRoundTrip(t *testing.T) {
	content := `[{"name": "Pho", "ingredients": ["1 lb noodles", "beef broth"], "instructions": "Simmer.", "image_url": ""}]`
	c := newChatClient(t, http.StatusOK, chatResponse(content))

	q, err := common.NewSearchQuery("pho", common.ModeName)
	require.NoError(t, err)

	records, err := c.Generate(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Pho", records[0]["name"])
}

func TestGenerateSendsAuthAndPrompt(t *testing.T) {
	type captured struct {
		path string
		auth string
		body Request
	}

	requests := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		requests <- captured{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: req}
		fmt.Fprint(w, chatResponse("[]"))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(testCfg())
	c.client.SetBaseURL(srv.URL)

	t.Run("name mode asks for matching dish names", func(t *testing.T) {
		q, err := common.NewSearchQuery("pho", common.ModeName)
		require.NoError(t, err)
		_, err = c.Generate(context.Background(), q)
		require.NoError(t, err)

		got := <-requests
		assert.Equal(t, "/chat/completions", got.path)
		assert.Equal(t, "Bearer test-key", got.auth)
		assert.Equal(t, "test-model", got.body.Model)
		assert.Equal(t, 512, got.body.MaxTokens)
		require.Len(t, got.body.Messages, 1)
		assert.Contains(t, got.body.Messages[0].Content, "菜名包含")
		assert.Contains(t, got.body.Messages[0].Content, "pho")
	})

	t.Run("ingredient mode asks for dishes using the ingredient", func(t *testing.T) {
		q, err := common.NewSearchQuery("tomato, basil", common.ModeIngredient)
		require.NoError(t, err)
		_, err = c.Generate(context.Background(), q)
		require.NoError(t, err)

		got := <-requests
		require.Len(t, got.body.Messages, 1)
		assert.Contains(t, got.body.Messages[0].Content, "使用食材")
	})
}

func TestGenerateQuotaStatuses(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusPaymentRequired} {
		t.Run(fmt.Sprintf("status %d", status), func(t *testing.T) {
			c := newChatClient(t, status, `{"error": "quota"}`)

			q, err := common.NewSearchQuery("pho", common.ModeName)
			require.NoError(t, err)

			_, err = c.Generate(context.Background(), q)
			require.Error(t, err)
			assert.Equal(t, common.ErrCodeQuotaExceeded, common.Kind(err))
		})
	}
}

func TestGenerateServerError(t *testing.T) {
	c := newChatClient(t, http.StatusInternalServerError, `{"error": "boom"}`)

	q, err := common.NewSearchQuery("pho", common.ModeName)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, common.ErrCodeUnavailable, common.Kind(err))
}

func TestGenerateMalformedEnvelope(t *testing.T) {
	t.Run("non-json body", func(t *testing.T) {
		c := newChatClient(t, http.StatusOK, "not json at all")

		q, err := common.NewSearchQuery("pho", common.ModeName)
		require.NoError(t, err)

		_, err = c.Generate(context.Background(), q)
		require.Error(t, err)
		assert.Equal(t, common.ErrCodeInvalidOutput, common.Kind(err))
	})

	t.Run("no choices", func(t *testing.T) {
		c := newChatClient(t, http.StatusOK, `{"id": "gen-1", "choices": []}`)

		q, err := common.NewSearchQuery("pho", common.ModeName)
		require.NoError(t, err)

		_, err = c.Generate(context.Background(), q)
		require.Error(t, err)
		assert.Equal(t, common.ErrCodeInvalidOutput, common.Kind(err))
	})
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, chatResponse("[]"))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(testCfg())
	c.client.SetBaseURL(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	q, err := common.NewSearchQuery("pho", common.ModeName)
	require.NoError(t, err)

	_, err = c.Generate(ctx, q)
	require.Error(t, err)
	assert.Equal(t, common.ErrCodeTimeout, common.Kind(err))
}

func TestCompleteRoundTrip(t *testing.T) {
	c := newChatClient(t, http.StatusOK, chatResponse("「pizza margherita」"))

	got, err := c.Complete(context.Background(), "piz")
	require.NoError(t, err)
	assert.Equal(t, "pizza margherita", got)
}
