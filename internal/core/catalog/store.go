package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"recipe-curator/internal/infrastructure/storage"
	"recipe-curator/internal/pkg/common"
)

// querier 讓同一套讀寫在交易內外都能使用
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store 主食材目錄的 SQLite 持久層。
// 條目建立走唯一鍵條件寫入，重複鍵一律解析回既有條目而非報錯。
type Store struct {
	db *storage.DB
}

// NewStore 創建目錄持久層
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

const entryColumns = `id, canonical_name, normalized_key, aliases, usage_count,
	calories_per_100g, calorie_source, calorie_updated_at, created_at`

func scanEntry(row *sql.Row) (*MasterIngredientEntry, error) {
	var (
		entry      MasterIngredientEntry
		aliasesRaw string
		calories   sql.NullFloat64
		calSource  sql.NullString
		calUpdated sql.NullTime
	)
	err := row.Scan(&entry.ID, &entry.CanonicalName, &entry.NormalizedKey, &aliasesRaw,
		&entry.UsageCount, &calories, &calSource, &calUpdated, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(aliasesRaw), &entry.Aliases); err != nil {
		return nil, fmt.Errorf("decode aliases for entry %s: %w", entry.ID, err)
	}
	if calories.Valid {
		v := calories.Float64
		entry.CaloriesPer100g = &v
	}
	if calSource.Valid {
		entry.CalorieSource = calSource.String
	}
	if calUpdated.Valid {
		t := calUpdated.Time
		entry.CalorieUpdatedAt = &t
	}
	return &entry, nil
}

// FindByNormalizedKey 依正規化鍵查條目，不存在回傳 (nil, nil)
func (s *Store) FindByNormalizedKey(ctx context.Context, key string) (*MasterIngredientEntry, error) {
	return findByNormalizedKey(ctx, s.db, key)
}

func findByNormalizedKey(ctx context.Context, q querier, key string) (*MasterIngredientEntry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ingredient_entries WHERE normalized_key = ?`, key)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ingredient by key %q: %w", key, err)
	}
	return entry, nil
}

// GetByID 依 id 查條目，不存在回傳 (nil, nil)
func (s *Store) GetByID(ctx context.Context, id string) (*MasterIngredientEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ingredient_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ingredient %s: %w", id, err)
	}
	return entry, nil
}

// CreateIfAbsent 以正規化鍵做原子性的 compare-and-create。
// 鍵已存在時回傳既有條目（樂觀去重，不是錯誤）。
func (s *Store) CreateIfAbsent(ctx context.Context, entry *MasterIngredientEntry) (*MasterIngredientEntry, error) {
	var result *MasterIngredientEntry
	err := storage.RetryOnBusy(ctx, func() error {
		var innerErr error
		result, innerErr = CreateIfAbsentTx(ctx, s.db, entry)
		return innerErr
	})
	return result, err
}

// CreateIfAbsentTx 交易內版本，提交服務用它把目錄成長收進同一筆交易
func CreateIfAbsentTx(ctx context.Context, q querier, entry *MasterIngredientEntry) (*MasterIngredientEntry, error) {
	if entry.NormalizedKey == "" {
		return nil, fmt.Errorf("entry normalized key is empty")
	}

	stored := *entry
	if stored.ID == "" {
		stored.ID = common.GenerateUUID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	aliasesRaw, err := json.Marshal(normalizeAliases(stored.Aliases))
	if err != nil {
		return nil, fmt.Errorf("encode aliases: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO ingredient_entries
			(id, canonical_name, normalized_key, aliases, usage_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (normalized_key) DO NOTHING`,
		stored.ID, stored.CanonicalName, stored.NormalizedKey, string(aliasesRaw),
		stored.UsageCount, stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create ingredient entry: %w", err)
	}

	// 無論剛插入或撞上既有鍵，都以資料庫內容為準
	existing, err := findByNormalizedKey(ctx, q, stored.NormalizedKey)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("ingredient entry %q vanished after insert", stored.NormalizedKey)
	}
	return existing, nil
}

// normalizeAliases 去重並排序，序列化結果穩定
func normalizeAliases(aliases []string) []string {
	seen := make(map[string]struct{}, len(aliases))
	out := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		if alias == "" {
			continue
		}
		if _, ok := seen[alias]; ok {
			continue
		}
		seen[alias] = struct{}{}
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// AppendAliasesTx 追加別名（集合聯集，絕不移除既有別名）
func AppendAliasesTx(ctx context.Context, q querier, id string, aliases []string) error {
	if len(aliases) == 0 {
		return nil
	}

	row := q.QueryRowContext(ctx, `SELECT aliases FROM ingredient_entries WHERE id = ?`, id)
	var raw string
	if err := row.Scan(&raw); err != nil {
		return fmt.Errorf("read aliases for entry %s: %w", id, err)
	}
	var existing []string
	if err := json.Unmarshal([]byte(raw), &existing); err != nil {
		return fmt.Errorf("decode aliases for entry %s: %w", id, err)
	}

	merged := normalizeAliases(append(existing, aliases...))
	if len(merged) == len(existing) {
		return nil
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode aliases: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`UPDATE ingredient_entries SET aliases = ? WHERE id = ?`, string(encoded), id); err != nil {
		return fmt.Errorf("append aliases for entry %s: %w", id, err)
	}
	return nil
}

// AppendAliases 交易外版本
func (s *Store) AppendAliases(ctx context.Context, id string, aliases []string) error {
	return storage.RetryOnBusy(ctx, func() error {
		return AppendAliasesTx(ctx, s.db, id, aliases)
	})
}

// IncrementUsageTx 提交食譜時累計條目使用次數
func IncrementUsageTx(ctx context.Context, q querier, id string) error {
	if _, err := q.ExecContext(ctx,
		`UPDATE ingredient_entries SET usage_count = usage_count + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("increment usage for entry %s: %w", id, err)
	}
	return nil
}

// TouchCalories 刷新條目上的熱量快取（含來源與時間戳）
func (s *Store) TouchCalories(ctx context.Context, id string, calories float64, source string) error {
	_, err := s.db.ExecWithRetry(ctx,
		`UPDATE ingredient_entries
		 SET calories_per_100g = ?, calorie_source = ?, calorie_updated_at = ?
		 WHERE id = ?`,
		calories, source, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch calories for entry %s: %w", id, err)
	}
	return nil
}

// Snapshot 讀出整個目錄的配對投影。讀多寫少，不加鎖。
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, canonical_name, normalized_key, aliases FROM ingredient_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load catalog snapshot: %w", err)
	}
	defer rows.Close()

	var entries []SnapshotEntry
	for rows.Next() {
		var (
			entry      SnapshotEntry
			aliasesRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.CanonicalName, &entry.NormalizedKey, &aliasesRaw); err != nil {
			return nil, fmt.Errorf("scan snapshot entry: %w", err)
		}
		var aliases []string
		if err := json.Unmarshal([]byte(aliasesRaw), &aliases); err != nil {
			return nil, fmt.Errorf("decode aliases for entry %s: %w", entry.ID, err)
		}

		keys := make([]string, 0, len(aliases)+1)
		keys = append(keys, NormalizeName(entry.CanonicalName))
		for _, alias := range aliases {
			if normalized := NormalizeName(alias); normalized != "" {
				keys = append(keys, normalized)
			}
		}
		entry.MatchKeys = keys
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return NewSnapshot(entries), nil
}
