package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dish-directory/internal/pkg/common"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store 使用者投稿庫，背後是一個 SQLite 資料庫
// 食譜的可見範圍由查詢時帶入的身份決定
type Store struct {
	db *sql.DB
}

// Open 打開投稿庫並套用遷移
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open user store: %w", err)
	}

	// 記憶體資料庫每條連線各自獨立，必須限制為單一連線
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	common.LogInfo("投稿庫已開啟",
		zap.String("path", path),
	)
	return &Store{db: db}, nil
}

// FindByNameFragment 以名稱片段查詢投稿
// 提權身份可見全部，受限身份只見公開列與自己的列，未帶身份一律拒絕
func (s *Store) FindByNameFragment(ctx context.Context, fragment string, identity common.Identity) ([]common.RawRecord, error) {
	if identity == nil {
		return nil, common.ErrPermissionDenied
	}

	query := `
		SELECT id, name, ingredients, instructions, image_url, owner_id
		FROM recipes
		WHERE LOWER(name) LIKE ?`
	args := []any{"%" + strings.ToLower(strings.TrimSpace(fragment)) + "%"}

	if !identity.Elevated() {
		ownerID, _ := identity.UserID()
		query += ` AND (owner_id = '' OR owner_id = ?)`
		args = append(args, ownerID)
	}

	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("user store query: %w", err)
	}
	defer rows.Close()

	records := make([]common.RawRecord, 0)
	for rows.Next() {
		var (
			id, name        string
			ingredientsJSON string
			instructions    string
			imageURL        sql.NullString
			ownerID         sql.NullString
		)

		if err := rows.Scan(&id, &name, &ingredientsJSON, &instructions, &imageURL, &ownerID); err != nil {
			return nil, fmt.Errorf("user store scan: %w", err)
		}

		var ingredients []string
		_ = json.Unmarshal([]byte(ingredientsJSON), &ingredients)

		records = append(records, common.RawRecord{
			"id":           id,
			"name":         name,
			"ingredients":  ingredients,
			"instructions": instructions,
			"image_url":    imageURL.String,
			"owner_id":     ownerID.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user store rows: %w", err)
	}

	return records, nil
}

// Insert 寫入一筆投稿
// 受限身份只能以自己的名義投稿，提權身份可代任何人寫入
func (s *Store) Insert(ctx context.Context, rec common.Recipe, identity common.Identity) error {
	if identity == nil {
		return common.ErrPermissionDenied
	}

	if !identity.Elevated() {
		ownerID, ok := identity.UserID()
		if !ok {
			return common.ErrPermissionDenied
		}
		if rec.OwnerID != "" && rec.OwnerID != ownerID {
			return common.ErrPermissionDenied
		}
		rec.OwnerID = ownerID
	}

	if strings.TrimSpace(rec.Name) == "" {
		return fmt.Errorf("recipe name is required")
	}

	if rec.ID == "" {
		rec.ID = common.GenerateUUID()
	}
	if rec.CanonicalKey == "" {
		rec.CanonicalKey = common.CanonicalKey(rec.Name)
	}

	ingredientsJSON := "[]"
	if len(rec.Ingredients) > 0 {
		encoded, err := common.ToJSON(rec.Ingredients)
		if err != nil {
			return fmt.Errorf("failed to encode ingredients: %w", err)
		}
		ingredientsJSON = encoded
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipes (id, name, canonical_key, ingredients, instructions, image_url, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.CanonicalKey, ingredientsJSON, rec.Instructions, rec.ImageURL, rec.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recipe: %w", err)
	}

	common.LogInfo("投稿已寫入",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name),
	)
	return nil
}

// Close 關閉投稿庫
func (s *Store) Close() error {
	return s.db.Close()
}
