package recipe

import (
	"testing"

	"dish-directory/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedup(t *testing.T) {
	t.Run("empty input yields an empty non-nil slice", func(t *testing.T) {
		out := Dedup(nil)
		require.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("merges same-dish records across sources", func(t *testing.T) {
		out := Dedup([]common.Recipe{
			{
				ID:           "user-1",
				Name:         "Tomato Soup",
				CanonicalKey: "tomato soup",
				Ingredients:  []string{"tomato"},
				Source:       common.SourceUserStore,
			},
			{
				ID:           "api-9",
				Name:         "tomato soup",
				CanonicalKey: "tomato soup",
				Ingredients:  []string{"tomato", "basil", "salt"},
				Source:       common.SourceExternalAPI,
			},
		})

		require.Len(t, out, 1)
		merged := out[0]
		assert.Equal(t, "user-1", merged.ID, "identity comes from the first-seen record")
		assert.Equal(t, "Tomato Soup", merged.Name)
		assert.Equal(t, "tomato soup", merged.CanonicalKey)
		assert.Equal(t, []string{"tomato", "basil", "salt"}, merged.Ingredients)
		assert.Equal(t, common.SourceCombined, merged.Source)
	})

	t.Run("keeps a singleton's source untouched", func(t *testing.T) {
		out := Dedup([]common.Recipe{
			{Name: "Pad Thai", CanonicalKey: "pad thai", Source: common.SourceAI},
		})
		require.Len(t, out, 1)
		assert.Equal(t, common.SourceAI, out[0].Source)
	})

	t.Run("preserves first-seen group order", func(t *testing.T) {
		out := Dedup([]common.Recipe{
			{Name: "Ramen", CanonicalKey: "ramen", Source: common.SourceUserStore},
			{Name: "Gyoza", CanonicalKey: "gyoza", Source: common.SourceUserStore},
			{Name: "ramen", CanonicalKey: "ramen", Source: common.SourceExternalAPI},
			{Name: "Udon", CanonicalKey: "udon", Source: common.SourceAI},
		})

		require.Len(t, out, 3)
		assert.Equal(t, "Ramen", out[0].Name)
		assert.Equal(t, "Gyoza", out[1].Name)
		assert.Equal(t, "Udon", out[2].Name)
	})

	t.Run("longer instructions win and ties keep the first member", func(t *testing.T) {
		out := Dedup([]common.Recipe{
			{
				Name:         "Curry",
				CanonicalKey: "curry",
				Ingredients:  []string{"curry roux", "potato"},
				Instructions: "Boil.",
				Source:       common.SourceUserStore,
			},
			{
				Name:         "curry",
				CanonicalKey: "curry",
				Ingredients:  []string{"curry roux", "onion"},
				Instructions: "Saute the onion, add water and roux, simmer twenty minutes.",
				Source:       common.SourceAI,
			},
		})

		require.Len(t, out, 1)
		assert.Equal(t, []string{"curry roux", "potato"}, out[0].Ingredients,
			"equal-length ingredient lists keep the earlier record's list")
		assert.Equal(t, "Saute the onion, add water and roux, simmer twenty minutes.", out[0].Instructions)
	})

	t.Run("fills the image from the first member that has one", func(t *testing.T) {
		out := Dedup([]common.Recipe{
			{Name: "Pho", CanonicalKey: "pho", Source: common.SourceUserStore},
			{Name: "pho", CanonicalKey: "pho", ImageURL: "https://img.example/pho.jpg", Source: common.SourceExternalAPI},
			{Name: "PHO", CanonicalKey: "pho", ImageURL: "https://img.example/other.jpg", Source: common.SourceAI},
		})

		require.Len(t, out, 1)
		assert.Equal(t, "https://img.example/pho.jpg", out[0].ImageURL)
	})

	t.Run("computes the canonical key when a record arrives without one", func(t *testing.T) {
		out := Dedup([]common.Recipe{
			{Name: "  Tomato   Soup ", Source: common.SourceUserStore},
			{Name: "tomato soup", CanonicalKey: "tomato soup", Source: common.SourceExternalAPI},
		})
		require.Len(t, out, 1)
		assert.Equal(t, common.SourceCombined, out[0].Source)
	})

	t.Run("is idempotent", func(t *testing.T) {
		input := []common.Recipe{
			{ID: "a", Name: "Tomato Soup", CanonicalKey: "tomato soup", Ingredients: []string{"tomato"}, Source: common.SourceUserStore},
			{ID: "b", Name: "tomato soup", CanonicalKey: "tomato soup", Ingredients: []string{"tomato", "basil"}, Source: common.SourceExternalAPI},
			{ID: "c", Name: "Udon", CanonicalKey: "udon", Source: common.SourceAI},
		}

		once := Dedup(input)
		twice := Dedup(once)
		assert.Equal(t, once, twice)
	})
}
