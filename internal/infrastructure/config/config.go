package config

import (
	"fmt"
	"strings"
	"time"

	"dish-directory/internal/pkg/common"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	UserStore  UserStoreConfig  `mapstructure:"user_store"`
	MealAPI    MealAPIConfig    `mapstructure:"meal_api"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Governor   GovernorConfig   `mapstructure:"governor"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Suggest    SuggestConfig    `mapstructure:"suggest"`
	LogLevel   string           `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env      string `mapstructure:"env"`
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	Version  string `mapstructure:"version"`
	Name     string `mapstructure:"name"`
}

// SourcesConfig 來源設定
// Priority 同時決定輸出串接順序與合併時的優先成員
type SourcesConfig struct {
	Priority []string `mapstructure:"priority"`
}

// UserStoreConfig 使用者投稿庫設定
type UserStoreConfig struct {
	Path string `mapstructure:"path"`
}

// MealAPIConfig 外部食譜 API 設定
type MealAPIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OpenRouterConfig OpenRouter 配置
type OpenRouterConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ExtendedTimeout time.Duration `mapstructure:"extended_timeout"`
}

// GovernorConfig 生成式能力治理設定
type GovernorConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"` // 兩次調用的最小間隔，0 表示停用
	Cooldown    time.Duration `mapstructure:"cooldown"`     // 配額用盡後的冷卻時間
	Workers     int           `mapstructure:"workers"`      // 併發調用上限
}

// CacheConfig 緩存配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// SuggestConfig 自動補全治理設定
type SuggestConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// 加載 .env 文件（缺少時改用環境變數與預設值）
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found")
	}

	// 設定預設值
	setDefaults()

	// 設定環境變數前綴
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 綁定環境變量
	viper.BindEnv("openrouter.enabled", "OPENROUTER_ENABLED")
	viper.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	viper.BindEnv("openrouter.model", "OPENROUTER_MODEL")
	viper.BindEnv("openrouter.max_tokens", "MODEL_MAX_TOKENS")
	viper.BindEnv("user_store.path", "USER_STORE_PATH")
	viper.BindEnv("meal_api.base_url", "MEAL_API_BASE_URL")
	viper.BindEnv("sources.priority", "SOURCES_PRIORITY")
	viper.BindEnv("cache.enabled", "CACHE_ENABLED")
	viper.BindEnv("cache.ttl", "CACHE_TTL")
	viper.BindEnv("governor.min_interval", "GOVERNOR_MIN_INTERVAL")
	viper.BindEnv("governor.cooldown", "GOVERNOR_COOLDOWN")
	viper.BindEnv("log_level", "LOG_LEVEL")

	// 設定設定檔名稱和路徑
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	// 讀取設定檔
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 添加調試日誌（logger 尚未初始化，改用 fmt.Println）
	fmt.Println("Loading configuration", "openrouter_api_key:", maskAPIKey(viper.GetString("openrouter.api_key")), "openrouter_model:", viper.GetString("openrouter.model"))

	// 解析設定
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 環境變數給的優先順序是逗號字串，這裡拆開
	config.Sources.Priority = normalizePriority(config.Sources.Priority)

	// 驗證必要設定
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// maskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// normalizePriority 整理優先順序清單：拆逗號、修剪、轉小寫
func normalizePriority(priority []string) []string {
	out := make([]string, 0, len(priority))
	for _, p := range priority {
		for _, part := range strings.Split(p, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// setDefaults 設定預設值
func setDefaults() {
	// 應用程式設定
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.debug", true)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.name", "dish-directory")

	// 來源設定
	viper.SetDefault("sources.priority", []string{"user_store", "external_api", "ai"})

	// 使用者投稿庫設定
	viper.SetDefault("user_store.path", "data/recipes.db")

	// 外部食譜 API 設定
	viper.SetDefault("meal_api.base_url", "https://www.themealdb.com/api/json/v1/1")
	viper.SetDefault("meal_api.timeout", "10s")

	// OpenRouter 設定
	viper.SetDefault("openrouter.enabled", false)
	viper.SetDefault("openrouter.model", "qwen/qwen2.5-vl-72b-instruct:free")
	viper.SetDefault("openrouter.max_tokens", 1000)
	viper.SetDefault("openrouter.timeout", "8s")
	viper.SetDefault("openrouter.extended_timeout", "20s")

	// 治理設定
	viper.SetDefault("governor.min_interval", "0s")
	viper.SetDefault("governor.cooldown", "10m")
	viper.SetDefault("governor.workers", 4)

	// 快取設定
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.max_size", 1000)
	viper.SetDefault("cache.ttl", "5m")
	viper.SetDefault("cache.cleanup_interval", "10m")

	// 自動補全設定
	viper.SetDefault("suggest.cooldown", "5m")
	viper.SetDefault("suggest.timeout", "4s")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	// 驗證來源優先順序：每個已知來源各出現一次
	if len(config.Sources.Priority) != len(common.KnownSources) {
		return fmt.Errorf("sources priority must list exactly %d sources, got %d", len(common.KnownSources), len(config.Sources.Priority))
	}
	known := make(map[string]bool, len(common.KnownSources))
	for _, s := range common.KnownSources {
		known[string(s)] = true
	}
	seen := make(map[string]bool, len(common.KnownSources))
	for _, p := range config.Sources.Priority {
		if !known[p] {
			return fmt.Errorf("unknown source in priority: %s", p)
		}
		if seen[p] {
			return fmt.Errorf("duplicate source in priority: %s", p)
		}
		seen[p] = true
	}

	// 驗證外部 API 設定
	if config.MealAPI.BaseURL == "" {
		return fmt.Errorf("meal api base url is required")
	}
	if config.MealAPI.Timeout <= 0 {
		return fmt.Errorf("invalid meal api timeout")
	}

	// 驗證 OpenRouter 設定
	if config.OpenRouter.Enabled && config.OpenRouter.APIKey == "" {
		return fmt.Errorf("openrouter api key is required when enabled")
	}
	if config.OpenRouter.Timeout <= 0 || config.OpenRouter.ExtendedTimeout <= 0 {
		return fmt.Errorf("invalid openrouter timeout")
	}
	if config.OpenRouter.ExtendedTimeout < config.OpenRouter.Timeout {
		return fmt.Errorf("extended timeout must not be shorter than timeout")
	}

	// 驗證治理設定
	if config.Governor.Workers <= 0 {
		return fmt.Errorf("invalid governor workers")
	}
	if config.Governor.Cooldown <= 0 {
		return fmt.Errorf("invalid governor cooldown")
	}

	// 驗證快取設定
	if config.Cache.Enabled {
		if config.Cache.MaxSize <= 0 {
			return fmt.Errorf("invalid cache max size")
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("invalid cache ttl")
		}
		if config.Cache.CleanupInterval <= 0 {
			return fmt.Errorf("invalid cache cleanup interval")
		}
	}

	// 驗證自動補全設定
	if config.Suggest.Cooldown <= 0 {
		return fmt.Errorf("invalid suggest cooldown")
	}
	if config.Suggest.Timeout <= 0 {
		return fmt.Errorf("invalid suggest timeout")
	}

	return nil
}
