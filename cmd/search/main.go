package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"dish-directory/internal/core/ai/cache"
	"dish-directory/internal/core/ai/governor"
	"dish-directory/internal/core/ai/openrouter"
	"dish-directory/internal/core/search"
	"dish-directory/internal/core/source"
	"dish-directory/internal/infrastructure/config"
	"dish-directory/internal/pkg/common"
	"dish-directory/internal/store"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var cfg *config.Config

func main() {
	app := &cli.App{
		Name:    "dish-directory",
		Usage:   "Aggregated recipe search across a user store, a public API and a generative model",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Search recipes across all sources",
				ArgsUsage: "<term>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "mode",
						Aliases: []string{"m"},
						Usage:   "Query mode: name or ingredient (auto-detected when omitted)",
					},
					&cli.StringFlag{
						Name:    "user",
						Aliases: []string{"u"},
						Usage:   "Search as this user (restricted store visibility)",
					},
				},
			},
			{
				Name:      "suggest",
				Usage:     "Complete a partial dish name",
				ArgsUsage: "<partial>",
				Action:    suggestCommand,
			},
			{
				Name:   "add",
				Usage:  "Add a recipe to the user store",
				Action: addCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Recipe name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "ingredients",
						Usage: "Comma-separated ingredient list",
					},
					&cli.StringFlag{
						Name:  "instructions",
						Usage: "Cooking instructions",
					},
					&cli.StringFlag{
						Name:  "image-url",
						Usage: "Image URL",
					},
					&cli.StringFlag{
						Name:    "user",
						Aliases: []string{"u"},
						Usage:   "Submit as this user",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup 載入設定並初始化日誌，.env 的載入在 LoadConfig 內完成
func setup(c *cli.Context) error {
	loaded, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = loaded

	logLevel := cfg.LogLevel
	if lv := c.String("log-level"); lv != "" {
		logLevel = lv
	}
	if err := common.InitLogger(logLevel); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	common.LogInfo("啟動應用",
		zap.String("version", cfg.App.Version),
		zap.String("env", cfg.App.Env),
		zap.Bool("debug", cfg.App.Debug),
	)
	return nil
}

func teardown(c *cli.Context) error {
	common.LogInfo("應用結束")
	common.Sync()
	return nil
}

func searchCommand(c *cli.Context) error {
	term := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if term == "" {
		return fmt.Errorf("usage: search [--mode name|ingredient] <term>")
	}

	st, err := store.Open(cfg.UserStore.Path)
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}
	defer st.Close()

	client := openrouter.NewClient(cfg)
	defer client.Close()

	cacheManager := cache.NewManager(cfg)
	defer cacheManager.Close()

	gov, err := governor.New(cfg, client, cacheManager)
	if err != nil {
		return fmt.Errorf("failed to create governor: %w", err)
	}
	defer gov.Close()

	svc := search.NewService(cfg,
		source.NewUserStoreConnector(st),
		source.NewMealDBConnector(cfg),
		gov,
	)

	result, err := svc.Search(c.Context, term, common.SearchMode(c.String("mode")), identityFromFlags(c))
	if err != nil {
		return err
	}

	return printJSON(result)
}

func suggestCommand(c *cli.Context) error {
	partial := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if partial == "" {
		return fmt.Errorf("usage: suggest <partial>")
	}

	client := openrouter.NewClient(cfg)
	defer client.Close()

	suggester := search.NewSuggester(cfg, client)
	fmt.Println(suggester.Suggest(c.Context, partial))
	return nil
}

func addCommand(c *cli.Context) error {
	st, err := store.Open(cfg.UserStore.Path)
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}
	defer st.Close()

	rec := common.Recipe{
		Name:         c.String("name"),
		Ingredients:  splitIngredients(c.String("ingredients")),
		Instructions: c.String("instructions"),
		ImageURL:     c.String("image-url"),
		Source:       common.SourceUserStore,
	}

	if err := st.Insert(c.Context, rec, identityFromFlags(c)); err != nil {
		return fmt.Errorf("failed to add recipe: %w", err)
	}

	fmt.Printf("Added %q\n", rec.Name)
	return nil
}

// identityFromFlags 依旗標決定可見範圍，本機操作者預設為提權身分
func identityFromFlags(c *cli.Context) common.Identity {
	if user := c.String("user"); user != "" {
		return common.UserIdentity{ID: user}
	}
	return common.SystemIdentity{}
}

func splitIngredients(raw string) []string {
	var out []string
	for _, item := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '、'
	}) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
