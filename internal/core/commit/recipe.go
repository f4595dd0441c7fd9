package commit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"recipe-curator/internal/infrastructure/storage"
	"recipe-curator/internal/pkg/common"
)

// IngredientLine 食譜中的一行食材，必定綁定一筆目錄條目
type IngredientLine struct {
	EntryID  string   `json:"entry_id"`
	Name     string   `json:"name"` // 提交當下的條目正規名稱
	Quantity *float64 `json:"quantity,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Note     string   `json:"note,omitempty"`
	RawLine  string   `json:"raw_line,omitempty"`
}

// Recipe 已提交的食譜聚合。提交後不可變；修改產生新 revision。
type Recipe struct {
	ID            string           `json:"id"`
	LineageID     string           `json:"lineage_id"`
	Revision      int              `json:"revision"`
	Title         string           `json:"title"`
	Lines         []IngredientLine `json:"lines"`
	Instructions  []string         `json:"instructions"`
	Category      string           `json:"category,omitempty"`
	SourceType    string           `json:"source_type"`
	SourceRef     string           `json:"source_ref,omitempty"`
	TotalCalories *float64         `json:"total_calories_estimated,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// RecipeStore 食譜持久層
type RecipeStore struct {
	db *storage.DB
}

// NewRecipeStore 創建食譜持久層
func NewRecipeStore(db *storage.DB) *RecipeStore {
	return &RecipeStore{db: db}
}

// insertTx 在交易內寫入食譜
func insertRecipeTx(ctx context.Context, tx *sql.Tx, recipe *Recipe) error {
	payload, err := common.ToJSON(recipe)
	if err != nil {
		return fmt.Errorf("encode recipe payload: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO recipes (id, lineage_id, revision, title, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		recipe.ID, recipe.LineageID, recipe.Revision, recipe.Title, payload, recipe.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert recipe %s: %w", recipe.ID, err)
	}
	return nil
}

// Get 依 id 讀食譜，不存在回傳 (nil, nil)
func (s *RecipeStore) Get(ctx context.Context, id string) (*Recipe, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM recipes WHERE id = ?`, id)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load recipe %s: %w", id, err)
	}
	var recipe Recipe
	if err := common.ParseJSON(payload, &recipe); err != nil {
		return nil, fmt.Errorf("decode recipe %s: %w", id, err)
	}
	return &recipe, nil
}

// LatestRevision 取同一系譜的最新版本號，沒有任何版本時回傳 0
func (s *RecipeStore) LatestRevision(ctx context.Context, lineageID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(revision), 0) FROM recipes WHERE lineage_id = ?`, lineageID)
	var revision int
	if err := row.Scan(&revision); err != nil {
		return 0, fmt.Errorf("latest revision for lineage %s: %w", lineageID, err)
	}
	return revision, nil
}
