package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"dish-directory/internal/core/ai/governor"
	"dish-directory/internal/core/ai/provider/mock"
	"dish-directory/internal/core/source"
	"dish-directory/internal/infrastructure/config"
	"dish-directory/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubConnector 記錄調用並回傳注入的結果
type stubConnector struct {
	src      common.Source
	records  []common.RawRecord
	err      error
	calls    int
	identity common.Identity
}

func (c *stubConnector) Fetch(ctx context.Context, query common.SearchQuery, identity common.Identity) ([]common.RawRecord, error) {
	c.calls++
	c.identity = identity
	if c.err != nil {
		return nil, c.err
	}
	return c.records, nil
}

func (c *stubConnector) Source() common.Source { return c.src }

func searchConfig() *config.Config {
	return &config.Config{
		Sources: config.SourcesConfig{
			Priority: []string{"user_store", "external_api", "ai"},
		},
		OpenRouter: config.OpenRouterConfig{
			Enabled:         false,
			APIKey:          "test-key",
			Model:           "test-model",
			MaxTokens:       256,
			Timeout:         time.Second,
			ExtendedTimeout: 2 * time.Second,
		},
		Governor: config.GovernorConfig{
			Cooldown: 10 * time.Minute,
			Workers:  2,
		},
		Cache: config.CacheConfig{Enabled: false},
	}
}

func newTestService(t *testing.T, cfg *config.Config, user, ext source.Connector, gen *mock.Generator) *Service {
	t.Helper()
	g, err := governor.New(cfg, gen, nil)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return NewService(cfg, user, ext, g)
}

func TestSearchRejectsInvalidQueries(t *testing.T) {
	user := &stubConnector{src: common.SourceUserStore}
	ext := &stubConnector{src: common.SourceExternalAPI}
	gen := mock.NewGenerator()
	svc := newTestService(t, searchConfig(), user, ext, gen)

	tests := []struct {
		name string
		term string
		mode common.SearchMode
	}{
		{"empty term", "", common.ModeName},
		{"whitespace term", "   \t ", common.ModeName},
		{"unknown mode", "pho", common.SearchMode("fulltext")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Search(context.Background(), tt.term, tt.mode, common.SystemIdentity{})
			require.ErrorIs(t, err, common.ErrInvalidQuery)
			assert.Nil(t, res)
		})
	}

	// 無效查詢在任何來源被接觸之前就被拒絕
	assert.Equal(t, 0, user.calls)
	assert.Equal(t, 0, ext.calls)
	assert.Equal(t, 0, gen.GenerateCalls())
}

func TestSearchMergesAcrossSources(t *testing.T) {
	user := &stubConnector{
		src: common.SourceUserStore,
		records: []common.RawRecord{{
			"id":          "u-rec-1",
			"name":        "Tomato Soup",
			"ingredients": []string{"tomato"},
		}},
	}
	ext := &stubConnector{
		src: common.SourceExternalAPI,
		records: []common.RawRecord{{
			"idMeal":         "52772",
			"strMeal":        "tomato soup",
			"strIngredient1": "tomato",
			"strIngredient2": "basil",
			"strIngredient3": "salt",
		}},
	}
	gen := mock.NewGenerator()
	svc := newTestService(t, searchConfig(), user, ext, gen)

	res, err := svc.Search(context.Background(), "tomato soup", common.ModeName, common.UserIdentity{ID: "u-1"})
	require.NoError(t, err)
	require.Len(t, res.Recipes, 1)

	merged := res.Recipes[0]
	assert.Equal(t, "u-rec-1", merged.ID, "identity comes from the highest-priority member")
	assert.Equal(t, "Tomato Soup", merged.Name)
	assert.Equal(t, common.SourceCombined, merged.Source)
	assert.Equal(t, []string{"tomato", "basil", "salt"}, merged.Ingredients,
		"richer ingredient list wins regardless of priority")

	assert.Equal(t, []common.Source{common.SourceUserStore, common.SourceExternalAPI}, res.Sources)
	assert.Equal(t, common.UserIdentity{ID: "u-1"}, user.identity, "identity flows to the connectors")
}

func TestSearchAbsorbsSingleSourceFailure(t *testing.T) {
	user := &stubConnector{src: common.SourceUserStore, err: errors.New("disk on fire")}
	ext := &stubConnector{
		src:     common.SourceExternalAPI,
		records: []common.RawRecord{{"idMeal": "1", "strMeal": "Ramen"}},
	}
	gen := mock.NewGenerator()
	svc := newTestService(t, searchConfig(), user, ext, gen)

	res, err := svc.Search(context.Background(), "ramen", common.ModeName, common.SystemIdentity{})
	require.NoError(t, err)
	require.Len(t, res.Recipes, 1)
	assert.Equal(t, "Ramen", res.Recipes[0].Name)
	assert.Equal(t, []common.Source{common.SourceExternalAPI}, res.Sources)
}

func TestSearchAggregateUnavailable(t *testing.T) {
	user := &stubConnector{src: common.SourceUserStore, err: errors.New("down")}
	ext := &stubConnector{src: common.SourceExternalAPI, err: errors.New("down too")}
	gen := mock.NewGenerator()

	// 生成來源停用（Skipped 視為未能供應），三路同時落空
	svc := newTestService(t, searchConfig(), user, ext, gen)

	res, err := svc.Search(context.Background(), "pho", common.ModeName, common.SystemIdentity{})
	require.ErrorIs(t, err, common.ErrAggregateUnavailable)
	assert.Nil(t, res)
}

func TestSearchAIAloneKeepsSearchAlive(t *testing.T) {
	user := &stubConnector{src: common.SourceUserStore, err: errors.New("down")}
	ext := &stubConnector{src: common.SourceExternalAPI, err: errors.New("down too")}
	gen := mock.NewGenerator()
	gen.GenerateFunc = func(ctx context.Context, query common.SearchQuery) ([]common.RawRecord, error) {
		return []common.RawRecord{{
			"name":         "Pho",
			"ingredients":  []any{"noodles", "broth"},
			"instructions": "Simmer the broth.",
		}}, nil
	}

	cfg := searchConfig()
	cfg.OpenRouter.Enabled = true
	svc := newTestService(t, cfg, user, ext, gen)

	res, err := svc.Search(context.Background(), "pho", common.ModeName, common.SystemIdentity{})
	require.NoError(t, err)
	require.Len(t, res.Recipes, 1)
	assert.Equal(t, "Pho", res.Recipes[0].Name)
	assert.Equal(t, common.SourceAI, res.Recipes[0].Source)
	assert.Equal(t, []common.Source{common.SourceAI}, res.Sources)
}

func TestSearchFollowsConfiguredPriority(t *testing.T) {
	user := &stubConnector{
		src:     common.SourceUserStore,
		records: []common.RawRecord{{"name": "Udon"}},
	}
	ext := &stubConnector{
		src:     common.SourceExternalAPI,
		records: []common.RawRecord{{"idMeal": "7", "strMeal": "Ramen"}},
	}
	gen := mock.NewGenerator()
	gen.GenerateFunc = func(ctx context.Context, query common.SearchQuery) ([]common.RawRecord, error) {
		return []common.RawRecord{{
			"name":         "Pho",
			"ingredients":  []any{"noodles"},
			"instructions": "Simmer.",
		}}, nil
	}

	cfg := searchConfig()
	cfg.OpenRouter.Enabled = true
	cfg.Sources.Priority = []string{"ai", "external_api", "user_store"}
	svc := newTestService(t, cfg, user, ext, gen)

	res, err := svc.Search(context.Background(), "noodles", common.ModeName, common.SystemIdentity{})
	require.NoError(t, err)

	require.Len(t, res.Recipes, 3)
	assert.Equal(t, "Pho", res.Recipes[0].Name)
	assert.Equal(t, "Ramen", res.Recipes[1].Name)
	assert.Equal(t, "Udon", res.Recipes[2].Name)

	assert.Equal(t,
		[]common.Source{common.SourceAI, common.SourceExternalAPI, common.SourceUserStore},
		res.Sources)
}

func TestSearchWithNoContributions(t *testing.T) {
	user := &stubConnector{src: common.SourceUserStore, records: []common.RawRecord{}}
	ext := &stubConnector{src: common.SourceExternalAPI, records: []common.RawRecord{}}
	gen := mock.NewGenerator()

	cfg := searchConfig()
	cfg.OpenRouter.Enabled = true
	svc := newTestService(t, cfg, user, ext, gen)

	res, err := svc.Search(context.Background(), "no such dish", common.ModeName, common.SystemIdentity{})
	require.NoError(t, err, "an empty answer from every source is still a success")
	require.NotNil(t, res)
	assert.Empty(t, res.Recipes)
	assert.Empty(t, res.Sources)
}
