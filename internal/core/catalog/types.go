package catalog

import (
	"time"
)

// MasterIngredientEntry 主食材目錄中的一筆正規條目。
// 建立後只允許兩種變更：追加別名、刷新熱量快取；永不硬刪除。
type MasterIngredientEntry struct {
	ID               string     `json:"id"`
	CanonicalName    string     `json:"canonical_name"`
	NormalizedKey    string     `json:"normalized_key"` // 全域唯一
	Aliases          []string   `json:"aliases"`        // 只增不減
	UsageCount       int        `json:"usage_count"`
	CaloriesPer100g  *float64   `json:"calories_per_100g,omitempty"`
	CalorieSource    string     `json:"calorie_source,omitempty"`
	CalorieUpdatedAt *time.Time `json:"calorie_updated_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Decision 候選配對的決策狀態
type Decision string

const (
	DecisionAutoAccepted  Decision = "auto-accepted"
	DecisionNeedsReview   Decision = "needs-review"
	DecisionRejected      Decision = "rejected"
	DecisionUserConfirmed Decision = "user-confirmed-match"
	DecisionUserCreated   Decision = "user-created-new"
)

// Resolved 決策是否已脫離待審狀態
func (d Decision) Resolved() bool {
	switch d {
	case DecisionAutoAccepted, DecisionUserConfirmed, DecisionUserCreated:
		return true
	default:
		return false
	}
}

// EntryMatch 一筆目錄條目的相似度配對
type EntryMatch struct {
	EntryID       string  `json:"entry_id"`
	CanonicalName string  `json:"canonical_name"`
	Score         float64 `json:"score"`
}

// IngredientMatchCandidate 一筆食材提及對目錄的解析結果
type IngredientMatchCandidate struct {
	MentionIndex   int          `json:"mention_index"`
	MentionName    string       `json:"mention_name"`
	NormalizedName string       `json:"normalized_name"`
	Candidates     []EntryMatch `json:"candidates"` // 依分數遞減，最多 MaxCandidates 筆
	Decision       Decision     `json:"decision"`
	ChosenEntryID  string       `json:"chosen_entry_id,omitempty"` // 自動接受或使用者確認後指向的條目
	ProposedName   string       `json:"proposed_name,omitempty"`   // 建議新建條目時的名稱
	ProposedKey    string       `json:"proposed_key,omitempty"`
}

// SnapshotEntry 解析時使用的目錄條目投影（名稱已正規化）
type SnapshotEntry struct {
	ID            string
	CanonicalName string
	NormalizedKey string
	// 正規化後的配對鍵集合：canonical name 本身加上所有別名
	MatchKeys []string
}

// Snapshot 目錄快照。解析器只透過這個介面讀目錄，
// 之後要換成倒排索引或 trigram 索引都不動 Resolve 的簽名。
type Snapshot interface {
	Entries() []SnapshotEntry
}

// memorySnapshot 最樸素的快照：整批條目的線性掃描
type memorySnapshot struct {
	entries []SnapshotEntry
}

// NewSnapshot 由條目清單建立快照
func NewSnapshot(entries []SnapshotEntry) Snapshot {
	return &memorySnapshot{entries: entries}
}

func (s *memorySnapshot) Entries() []SnapshotEntry {
	return s.entries
}
