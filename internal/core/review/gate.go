package review

import (
	"fmt"
	"strings"
	"time"

	"recipe-curator/internal/core/catalog"
	"recipe-curator/internal/core/ingest"
	"recipe-curator/internal/pkg/common"
)

// State 審核狀態
type State string

const (
	StateAwaitingUser State = "AwaitingUser"
	StateConfirmed    State = "Confirmed"
	StateDiscarded    State = "Discarded"
)

// PendingReview 等待使用者確認的草稿。
// 跨會話可續作：以 draft id 持久化，version 做樂觀並發控制。
type PendingReview struct {
	DraftID             string                             `json:"draft_id"`
	Version             int64                              `json:"version"`
	Draft               ingest.ExtractionDraft             `json:"draft"`
	Candidates          []catalog.IngredientMatchCandidate `json:"candidates"`
	LowConfidenceFields []string                           `json:"low_confidence_fields"`
	State               State                              `json:"state"`
	RecipeID            string                             `json:"recipe_id,omitempty"` // 提交完成後指向產出的食譜
	CreatedAt           time.Time                          `json:"created_at"`
	UpdatedAt           time.Time                          `json:"updated_at"`
}

// NewPendingReview 由草稿與解析結果建立待審核
func NewPendingReview(draft *ingest.ExtractionDraft, candidates []catalog.IngredientMatchCandidate, lowConfidence []string) *PendingReview {
	now := time.Now().UTC()
	return &PendingReview{
		DraftID:             draft.DraftID,
		Version:             1,
		Draft:               *draft,
		Candidates:          candidates,
		LowConfidenceFields: lowConfidence,
		State:               StateAwaitingUser,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// FieldEdit 一次欄位修正。nil 表示該欄位不動。
type FieldEdit struct {
	Title        *string  `json:"title,omitempty"`
	Category     *string  `json:"category,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
	AcceptFields []string `json:"accept_fields,omitempty"` // 把低信心欄位原樣接受
}

// CandidateAction 使用者對一筆候選的處置
type CandidateAction struct {
	MentionIndex int    `json:"mention_index"`
	Action       string `json:"action"`             // confirm-match / create-new / reject
	EntryID      string `json:"entry_id,omitempty"` // confirm-match 時指定條目
	NewName      string `json:"new_name,omitempty"` // create-new 時可覆寫名稱
}

// ensureOpen 終態一律拒絕變更
func (r *PendingReview) ensureOpen() error {
	if r.State != StateAwaitingUser {
		return common.ErrReviewClosed
	}
	return nil
}

// ApplyEdit 使用者修正欄位，AwaitingUser 上的自迴圈
func (r *PendingReview) ApplyEdit(edit *FieldEdit) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}

	if edit.Title != nil {
		r.Draft.Title = strings.TrimSpace(*edit.Title)
		r.markFieldResolved(ingest.FieldTitle)
	}
	if edit.Category != nil {
		r.Draft.Category = strings.TrimSpace(*edit.Category)
		r.markFieldResolved(ingest.FieldCategory)
	}
	if edit.Instructions != nil {
		r.Draft.Instructions = edit.Instructions
		r.markFieldResolved(ingest.FieldInstructions)
	}
	for _, field := range edit.AcceptFields {
		r.markFieldResolved(field)
	}

	r.UpdatedAt = time.Now().UTC()
	return nil
}

// markFieldResolved 把欄位從低信心清單移除
func (r *PendingReview) markFieldResolved(field string) {
	remaining := r.LowConfidenceFields[:0]
	for _, f := range r.LowConfidenceFields {
		if f != field {
			remaining = append(remaining, f)
		}
	}
	r.LowConfidenceFields = remaining
}

// ResolveCandidate 使用者處置一筆候選
func (r *PendingReview) ResolveCandidate(action *CandidateAction) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}

	var candidate *catalog.IngredientMatchCandidate
	for i := range r.Candidates {
		if r.Candidates[i].MentionIndex == action.MentionIndex {
			candidate = &r.Candidates[i]
			break
		}
	}
	if candidate == nil {
		return common.NewValidationError(fmt.Sprintf("no candidate for mention %d", action.MentionIndex))
	}

	switch action.Action {
	case "confirm-match":
		if action.EntryID == "" {
			return common.NewValidationError("confirm-match requires entry_id")
		}
		candidate.Decision = catalog.DecisionUserConfirmed
		candidate.ChosenEntryID = action.EntryID
		candidate.ProposedName = ""
		candidate.ProposedKey = ""
	case "create-new":
		name := strings.TrimSpace(action.NewName)
		if name == "" {
			name = strings.TrimSpace(candidate.MentionName)
		}
		if name == "" {
			return common.NewValidationError("create-new requires a name")
		}
		candidate.Decision = catalog.DecisionUserCreated
		candidate.ChosenEntryID = ""
		candidate.ProposedName = name
		candidate.ProposedKey = catalog.NormalizedKey(name)
	case "reject":
		candidate.Decision = catalog.DecisionRejected
		candidate.ChosenEntryID = ""
	default:
		return common.NewValidationError(fmt.Sprintf("unknown candidate action %q", action.Action))
	}

	r.UpdatedAt = time.Now().UTC()
	return nil
}

// OutstandingItems 尚未滿足確認條件的項目清單，給使用者明確的下一步
func (r *PendingReview) OutstandingItems() []string {
	var items []string
	for _, candidate := range r.Candidates {
		if !candidate.Decision.Resolved() && candidate.Decision != catalog.DecisionRejected {
			items = append(items, fmt.Sprintf("ingredient %q awaits a decision", candidate.MentionName))
		}
	}
	for _, field := range r.LowConfidenceFields {
		items = append(items, fmt.Sprintf("field %q needs confirmation or correction", field))
	}
	return items
}

// Confirm 轉入 Confirmed。
// 前提：每筆候選決策都已脫離待審，且所有低信心欄位都被接受或修正。
func (r *PendingReview) Confirm() error {
	if err := r.ensureOpen(); err != nil {
		return err
	}

	if items := r.OutstandingItems(); len(items) > 0 {
		return common.NewValidationError(strings.Join(items, "; "))
	}

	r.State = StateConfirmed
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Discard 明確取消，Confirmed 之前隨時可走
func (r *PendingReview) Discard() error {
	if r.State == StateConfirmed {
		return common.ErrReviewClosed
	}
	r.State = StateDiscarded
	r.UpdatedAt = time.Now().UTC()
	return nil
}
