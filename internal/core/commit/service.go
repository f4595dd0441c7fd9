package commit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"recipe-curator/internal/core/catalog"
	"recipe-curator/internal/core/review"
	"recipe-curator/internal/infrastructure/storage"
	"recipe-curator/internal/pkg/common"
)

// gramsPerUnit 熱量估算用的粗略換算表。液體以 1ml ≈ 1g 近似。
var gramsPerUnit = map[string]float64{
	"g":  1,
	"kg": 1000,
	"mg": 0.001,
	"oz": 28.35,
	"lb": 453.6,
	"ml": 1,
	"l":  1000,
}

// Service 把確認完成的審核草稿原子性地固化為食譜。
// 目錄成長（新建條目、追加別名、使用次數）、食譜寫入、審核消耗
// 全部收在同一筆 SQLite 交易裡：要嘛全部生效，要嘛全部不生效。
type Service struct {
	db         *storage.DB
	reviews    *review.Store
	recipes    *RecipeStore
	entries    *catalog.Store
	calories   *catalog.CalorieService
	dispatcher *Dispatcher

	// 交易收尾前的故障注入點，僅測試設定
	commitTxHook func(tx *sql.Tx) error
}

// NewService 創建提交服務
func NewService(db *storage.DB, reviews *review.Store, recipes *RecipeStore, entries *catalog.Store, calories *catalog.CalorieService, dispatcher *Dispatcher) *Service {
	return &Service{
		db:         db,
		reviews:    reviews,
		recipes:    recipes,
		entries:    entries,
		calories:   calories,
		dispatcher: dispatcher,
	}
}

// Commit 提交一份已確認的審核草稿。
// 冪等：同一草稿重複提交直接回傳先前產出的食譜。
// 失敗時交易整筆回滾，審核停留在 Confirmed，呼叫端可以重試。
func (s *Service) Commit(ctx context.Context, draftID string, version int64) (*Recipe, error) {
	pending, err := s.reviews.Get(ctx, draftID)
	if err != nil {
		return nil, err
	}

	// 已經提交過：回傳既有結果，不再動任何狀態
	if pending.RecipeID != "" {
		recipe, err := s.recipes.Get(ctx, pending.RecipeID)
		if err != nil {
			return nil, err
		}
		if recipe == nil {
			return nil, common.NewError(common.ErrCodeCommitFailed,
				"審核已消耗但食譜遺失", http.StatusServiceUnavailable,
				fmt.Errorf("review %s points to missing recipe %s", draftID, pending.RecipeID))
		}
		return recipe, nil
	}

	if version != pending.Version {
		return nil, common.ErrReviewConflict
	}

	switch pending.State {
	case review.StateConfirmed:
		// 繼續
	case review.StateDiscarded:
		return nil, common.ErrReviewClosed
	default:
		return nil, common.ErrGateUnsatisfied
	}
	if items := pending.OutstandingItems(); len(items) > 0 {
		return nil, common.ErrGateUnsatisfied
	}

	// 目錄讀取與熱量查詢都放在交易之外：
	// 連線池只有一條連線，交易內再開查詢會互相等待
	confirmed, err := s.loadConfirmedEntries(ctx, pending)
	if err != nil {
		return nil, err
	}
	proposedCalories := s.lookupProposedCalories(ctx, pending)

	now := time.Now().UTC()
	recipe := &Recipe{
		ID:           common.GenerateUUID(),
		Revision:     1,
		Title:        pending.Draft.Title,
		Instructions: pending.Draft.Instructions,
		Category:     pending.Draft.Category,
		SourceType:   string(pending.Draft.SourceModality),
		SourceRef:    pending.Draft.SourceRef,
		CreatedAt:    now,
	}
	recipe.LineageID = recipe.ID

	var created []*catalog.MasterIngredientEntry
	txErr := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		lines, newEntries, err := s.bindLines(ctx, tx, pending, confirmed)
		if err != nil {
			return err
		}
		created = newEntries
		recipe.Lines = lines
		recipe.TotalCalories = estimateCalories(lines, confirmed, newEntries, proposedCalories)

		if err := insertRecipeTx(ctx, tx, recipe); err != nil {
			return err
		}

		pending.RecipeID = recipe.ID
		pending.UpdatedAt = time.Now().UTC()
		if err := review.UpdateTx(ctx, tx, pending, version); err != nil {
			return err
		}
		if s.commitTxHook != nil {
			return s.commitTxHook(tx)
		}
		return nil
	})
	if txErr != nil {
		var custom *common.CustomError
		if errors.As(txErr, &custom) {
			return nil, txErr
		}
		common.LogError("食譜提交交易失敗", zap.String("draft_id", draftID), zap.Error(txErr))
		return nil, common.NewError(common.ErrCodeCommitFailed,
			"食譜提交失敗，請重試", http.StatusServiceUnavailable, txErr)
	}

	common.LogInfo("食譜提交完成",
		zap.String("recipe_id", recipe.ID),
		zap.String("draft_id", draftID),
		zap.Int("lines", len(recipe.Lines)),
		zap.Int("new_entries", len(created)))

	// 新條目的熱量快取補齊放在交易之後，網路失敗不影響提交結果
	s.refreshCalories(ctx, created)

	s.dispatcher.Dispatch(ctx, RecipeCommitted{
		RecipeID:    recipe.ID,
		DraftID:     draftID,
		Title:       recipe.Title,
		CommittedAt: now,
	})
	return recipe, nil
}

// RecipeEdit 提交後的食譜修訂內容，nil 欄位表示不動
type RecipeEdit struct {
	Title        *string  `json:"title,omitempty"`
	Category     *string  `json:"category,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
}

// Revise 對已提交的食譜發佈新修訂。
// 歷史版本不被改動：新列沿用同一 lineage，版本號接在最新版之後。
func (s *Service) Revise(ctx context.Context, recipeID string, edit *RecipeEdit) (*Recipe, error) {
	prev, err := s.recipes.Get(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, common.ErrNotFound
	}

	latest, err := s.recipes.LatestRevision(ctx, prev.LineageID)
	if err != nil {
		return nil, err
	}

	next := *prev
	next.ID = common.GenerateUUID()
	next.Revision = latest + 1
	next.CreatedAt = time.Now().UTC()
	if edit != nil {
		if edit.Title != nil {
			title := strings.TrimSpace(*edit.Title)
			if title == "" {
				return nil, common.NewValidationError("title must not be blank")
			}
			next.Title = title
		}
		if edit.Category != nil {
			next.Category = strings.TrimSpace(*edit.Category)
		}
		if len(edit.Instructions) > 0 {
			next.Instructions = edit.Instructions
		}
	}

	txErr := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return insertRecipeTx(ctx, tx, &next)
	})
	if txErr != nil {
		// (lineage, revision) 撞唯一鍵表示另一筆修訂搶先發佈
		common.LogError("食譜修訂寫入失敗", zap.String("recipe_id", recipeID), zap.Error(txErr))
		return nil, common.NewError(common.ErrCodeCommitFailed,
			"食譜修訂失敗，請重試", http.StatusServiceUnavailable, txErr)
	}

	common.LogInfo("食譜修訂完成",
		zap.String("recipe_id", next.ID),
		zap.String("lineage_id", next.LineageID),
		zap.Int("revision", next.Revision))
	return &next, nil
}

// loadConfirmedEntries 預先載入所有已確認配對指向的條目
func (s *Service) loadConfirmedEntries(ctx context.Context, pending *review.PendingReview) (map[string]*catalog.MasterIngredientEntry, error) {
	confirmed := make(map[string]*catalog.MasterIngredientEntry)
	for _, candidate := range pending.Candidates {
		if candidate.ChosenEntryID == "" || confirmed[candidate.ChosenEntryID] != nil {
			continue
		}
		entry, err := s.entries.GetByID(ctx, candidate.ChosenEntryID)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, common.NewValidationError(
				fmt.Sprintf("ingredient entry %s no longer exists", candidate.ChosenEntryID))
		}
		confirmed[entry.ID] = entry
	}
	return confirmed, nil
}

// lookupProposedCalories 對要新建的條目做熱量預查，失敗只是估算缺一項
func (s *Service) lookupProposedCalories(ctx context.Context, pending *review.PendingReview) map[string]float64 {
	values := make(map[string]float64)
	if s.calories == nil {
		return values
	}
	for _, candidate := range pending.Candidates {
		if candidate.Decision != catalog.DecisionUserCreated {
			continue
		}
		if value, _, ok := s.calories.Lookup(ctx, candidate.ProposedName); ok {
			values[candidate.ProposedKey] = value
		}
	}
	return values
}

// bindLines 在交易內把每則提及綁定到目錄條目，回傳食譜行與本次新建的條目
func (s *Service) bindLines(ctx context.Context, tx *sql.Tx, pending *review.PendingReview, confirmed map[string]*catalog.MasterIngredientEntry) ([]IngredientLine, []*catalog.MasterIngredientEntry, error) {
	candidateByIndex := make(map[int]*catalog.IngredientMatchCandidate, len(pending.Candidates))
	for i := range pending.Candidates {
		candidateByIndex[pending.Candidates[i].MentionIndex] = &pending.Candidates[i]
	}

	var lines []IngredientLine
	var created []*catalog.MasterIngredientEntry
	for _, mention := range pending.Draft.Mentions {
		candidate, ok := candidateByIndex[mention.Index]
		if !ok || candidate.Decision == catalog.DecisionRejected {
			continue
		}

		var entry *catalog.MasterIngredientEntry
		switch candidate.Decision {
		case catalog.DecisionAutoAccepted, catalog.DecisionUserConfirmed:
			entry = confirmed[candidate.ChosenEntryID]
			if entry == nil {
				return nil, nil, fmt.Errorf("entry %s not preloaded", candidate.ChosenEntryID)
			}
		case catalog.DecisionUserCreated:
			proposed := &catalog.MasterIngredientEntry{
				ID:            common.GenerateUUID(),
				CanonicalName: candidate.ProposedName,
				NormalizedKey: candidate.ProposedKey,
			}
			// 併發提交撞到同一個 key 時拿回既有條目，提交照常完成
			persisted, err := catalog.CreateIfAbsentTx(ctx, tx, proposed)
			if err != nil {
				return nil, nil, err
			}
			if persisted.ID == proposed.ID {
				created = append(created, persisted)
			}
			entry = persisted
		default:
			return nil, nil, common.ErrGateUnsatisfied
		}

		// 提及名稱與正規名稱不同時記成別名，之後的解析就能直配
		if candidate.NormalizedName != "" &&
			candidate.NormalizedName != catalog.NormalizeName(entry.CanonicalName) {
			if err := catalog.AppendAliasesTx(ctx, tx, entry.ID, []string{mention.Name}); err != nil {
				return nil, nil, err
			}
		}
		if err := catalog.IncrementUsageTx(ctx, tx, entry.ID); err != nil {
			return nil, nil, err
		}

		lines = append(lines, IngredientLine{
			EntryID:  entry.ID,
			Name:     entry.CanonicalName,
			Quantity: mention.Quantity,
			Unit:     mention.Unit,
			Note:     mention.Note,
			RawLine:  mention.RawLine,
		})
	}
	return lines, created, nil
}

// estimateCalories 粗估整道食譜的熱量。
// 只累計「有已知每百克熱量、且單位能換算成克」的行；一行都湊不齊就回傳 nil。
func estimateCalories(lines []IngredientLine, confirmed map[string]*catalog.MasterIngredientEntry, created []*catalog.MasterIngredientEntry, proposedCalories map[string]float64) *float64 {
	per100g := make(map[string]float64)
	for id, entry := range confirmed {
		if entry.CaloriesPer100g != nil {
			per100g[id] = *entry.CaloriesPer100g
		}
	}
	for _, entry := range created {
		if value, ok := proposedCalories[entry.NormalizedKey]; ok {
			per100g[entry.ID] = value
		}
	}

	var total float64
	var counted bool
	for _, line := range lines {
		value, ok := per100g[line.EntryID]
		if !ok || line.Quantity == nil {
			continue
		}
		factor, ok := gramsPerUnit[line.Unit]
		if !ok {
			continue
		}
		total += value * (*line.Quantity) * factor / 100
		counted = true
	}
	if !counted {
		return nil
	}
	return &total
}

// refreshCalories 補齊新建條目的熱量快取，純屬盡力而為
func (s *Service) refreshCalories(ctx context.Context, entries []*catalog.MasterIngredientEntry) {
	if s.calories == nil {
		return
	}
	for _, entry := range entries {
		if entry.CaloriesPer100g == nil {
			s.calories.Refresh(ctx, entry)
		}
	}
}
