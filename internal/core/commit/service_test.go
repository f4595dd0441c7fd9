package commit

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-curator/internal/core/catalog"
	"recipe-curator/internal/core/ingest"
	"recipe-curator/internal/core/review"
	"recipe-curator/internal/infrastructure/storage"
	"recipe-curator/internal/pkg/common"
)

type commitFixture struct {
	db       *storage.DB
	entries  *catalog.Store
	reviews  *review.Store
	recipes  *RecipeStore
	service  *Service
	received []RecipeCommitted
}

func newCommitFixture(t *testing.T) *commitFixture {
	t.Helper()
	db, err := storage.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &commitFixture{
		db:      db,
		entries: catalog.NewStore(db),
		reviews: review.NewStore(db),
		recipes: NewRecipeStore(db),
	}

	dispatcher := NewDispatcher(nil, "")
	dispatcher.Subscribe(SinkFunc(func(_ context.Context, event RecipeCommitted) error {
		f.received = append(f.received, event)
		return nil
	}))

	f.service = NewService(db, f.reviews, f.recipes, f.entries, nil, dispatcher)
	return f
}

func (f *commitFixture) createEntry(t *testing.T, name string) *catalog.MasterIngredientEntry {
	t.Helper()
	entry, err := f.entries.CreateIfAbsent(context.Background(), &catalog.MasterIngredientEntry{
		CanonicalName: name,
		NormalizedKey: catalog.NormalizedKey(name),
	})
	require.NoError(t, err)
	return entry
}

// confirmedReview 持久化一份已確認、等待提交的審核
func (f *commitFixture) confirmedReview(t *testing.T, mentions []ingest.RawIngredientMention, candidates []catalog.IngredientMatchCandidate) *review.PendingReview {
	t.Helper()
	draft := &ingest.ExtractionDraft{
		DraftID:        common.GenerateUUID(),
		SourceModality: ingest.ModalityManual,
		Title:          "Test Recipe",
		Mentions:       mentions,
		Instructions:   []string{"Cook."},
	}
	pending := review.NewPendingReview(draft, candidates, nil)
	pending.State = review.StateConfirmed
	require.NoError(t, f.reviews.Create(context.Background(), pending))
	return pending
}

func qty(v float64) *float64 { return &v }

func TestCommitBindsLinesAndGrowsNothing(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()

	flour := f.createEntry(t, "Flour")
	salt := f.createEntry(t, "Salt")
	tomato := f.createEntry(t, "Tomato")

	pending := f.confirmedReview(t,
		[]ingest.RawIngredientMention{
			{Index: 0, Name: "flour", Quantity: qty(200), Unit: "g"},
			{Index: 1, Name: "salt"},
			{Index: 2, Name: "tomatoe", Quantity: qty(2)},
		},
		[]catalog.IngredientMatchCandidate{
			{MentionIndex: 0, MentionName: "flour", NormalizedName: "flour",
				Decision: catalog.DecisionAutoAccepted, ChosenEntryID: flour.ID},
			{MentionIndex: 1, MentionName: "salt", NormalizedName: "salt",
				Decision: catalog.DecisionAutoAccepted, ChosenEntryID: salt.ID},
			{MentionIndex: 2, MentionName: "tomatoe", NormalizedName: "tomatoe",
				Decision: catalog.DecisionUserConfirmed, ChosenEntryID: tomato.ID},
		})

	recipe, err := f.service.Commit(ctx, pending.DraftID, 1)
	require.NoError(t, err)
	require.Len(t, recipe.Lines, 3)

	// 每一行都綁定條目，名稱採提交當下的正規名稱
	assert.Equal(t, flour.ID, recipe.Lines[0].EntryID)
	assert.Equal(t, "Flour", recipe.Lines[0].Name)
	assert.Equal(t, tomato.ID, recipe.Lines[2].EntryID)

	// 確認拼寫變體成為別名，之後的解析可以直配
	reloaded, err := f.entries.GetByID(ctx, tomato.ID)
	require.NoError(t, err)
	assert.Contains(t, reloaded.Aliases, "tomatoe")

	// 使用次數累計
	for _, entry := range []*catalog.MasterIngredientEntry{flour, salt, tomato} {
		after, err := f.entries.GetByID(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, after.UsageCount, entry.CanonicalName)
	}

	// 全員配對既有條目，目錄不成長
	snapshot, err := f.entries.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot.Entries(), 3)

	// 審核被消耗：指向食譜，狀態仍為 Confirmed
	consumed, err := f.reviews.Get(ctx, pending.DraftID)
	require.NoError(t, err)
	assert.Equal(t, recipe.ID, consumed.RecipeID)
	assert.Equal(t, review.StateConfirmed, consumed.State)

	// 事件以 at-least-once 發出
	require.Len(t, f.received, 1)
	assert.Equal(t, recipe.ID, f.received[0].RecipeID)
	assert.Equal(t, pending.DraftID, f.received[0].DraftID)
}

func TestCommitCreatesNewEntries(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()

	pending := f.confirmedReview(t,
		[]ingest.RawIngredientMention{{Index: 0, Name: "dragon fruit", Quantity: qty(1)}},
		[]catalog.IngredientMatchCandidate{
			{MentionIndex: 0, MentionName: "dragon fruit", NormalizedName: "dragon fruit",
				Decision:     catalog.DecisionUserCreated,
				ProposedName: "Dragon Fruit", ProposedKey: "dragon_fruit"},
		})

	recipe, err := f.service.Commit(ctx, pending.DraftID, 1)
	require.NoError(t, err)
	require.Len(t, recipe.Lines, 1)

	created, err := f.entries.FindByNormalizedKey(ctx, "dragon_fruit")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "Dragon Fruit", created.CanonicalName)
	assert.Equal(t, 1, created.UsageCount)
	assert.Equal(t, created.ID, recipe.Lines[0].EntryID)
}

func TestCommitCreateNewSurvivesDuplicateKey(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()

	// 另一次提交已搶先建立同一個鍵
	existing := f.createEntry(t, "Dragon Fruit")

	pending := f.confirmedReview(t,
		[]ingest.RawIngredientMention{{Index: 0, Name: "dragon fruit"}},
		[]catalog.IngredientMatchCandidate{
			{MentionIndex: 0, MentionName: "dragon fruit", NormalizedName: "dragon fruit",
				Decision:     catalog.DecisionUserCreated,
				ProposedName: "Dragon Fruit", ProposedKey: "dragon_fruit"},
		})

	recipe, err := f.service.Commit(ctx, pending.DraftID, 1)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, recipe.Lines[0].EntryID)

	// 提交必須解析到既有條目而不是報錯或另建一筆
	after, err := f.entries.GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.UsageCount)
}

func TestCommitSkipsRejectedMentions(t *testing.T) {
	f := newCommitFixture(t)
	flour := f.createEntry(t, "Flour")

	pending := f.confirmedReview(t,
		[]ingest.RawIngredientMention{
			{Index: 0, Name: "flour"},
			{Index: 1, Name: "decorative garnish"},
		},
		[]catalog.IngredientMatchCandidate{
			{MentionIndex: 0, MentionName: "flour", NormalizedName: "flour",
				Decision: catalog.DecisionAutoAccepted, ChosenEntryID: flour.ID},
			{MentionIndex: 1, MentionName: "decorative garnish", NormalizedName: "decorative garnish",
				Decision: catalog.DecisionRejected},
		})

	recipe, err := f.service.Commit(context.Background(), pending.DraftID, 1)
	require.NoError(t, err)
	require.Len(t, recipe.Lines, 1)
	assert.Equal(t, flour.ID, recipe.Lines[0].EntryID)
}

func TestCommitEstimatesCalories(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()

	flour := f.createEntry(t, "Flour")
	require.NoError(t, f.entries.TouchCalories(ctx, flour.ID, 364, "openfoodfacts"))

	pending := f.confirmedReview(t,
		[]ingest.RawIngredientMention{{Index: 0, Name: "flour", Quantity: qty(200), Unit: "g"}},
		[]catalog.IngredientMatchCandidate{
			{MentionIndex: 0, MentionName: "flour", NormalizedName: "flour",
				Decision: catalog.DecisionAutoAccepted, ChosenEntryID: flour.ID},
		})

	recipe, err := f.service.Commit(ctx, pending.DraftID, 1)
	require.NoError(t, err)
	require.NotNil(t, recipe.TotalCalories)
	assert.InDelta(t, 728, *recipe.TotalCalories, 1e-9)
}

func TestCommitWithoutConvertibleUnitsHasNoEstimate(t *testing.T) {
	f := newCommitFixture(t)
	flour := f.createEntry(t, "Flour")

	pending := f.confirmedReview(t,
		[]ingest.RawIngredientMention{{Index: 0, Name: "flour", Quantity: qty(2), Unit: "cup"}},
		[]catalog.IngredientMatchCandidate{
			{MentionIndex: 0, MentionName: "flour", NormalizedName: "flour",
				Decision: catalog.DecisionAutoAccepted, ChosenEntryID: flour.ID},
		})

	recipe, err := f.service.Commit(context.Background(), pending.DraftID, 1)
	require.NoError(t, err)
	assert.Nil(t, recipe.TotalCalories)
}

func TestCommitRequiresConfirmedState(t *testing.T) {
	f := newCommitFixture(t)
	flour := f.createEntry(t, "Flour")

	draft := &ingest.ExtractionDraft{
		DraftID:        common.GenerateUUID(),
		SourceModality: ingest.ModalityManual,
		Title:          "Test",
		Mentions:       []ingest.RawIngredientMention{{Index: 0, Name: "flour"}},
	}
	pending := review.NewPendingReview(draft, []catalog.IngredientMatchCandidate{
		{MentionIndex: 0, MentionName: "flour", NormalizedName: "flour",
			Decision: catalog.DecisionAutoAccepted, ChosenEntryID: flour.ID},
	}, []string{ingest.FieldInstructions})
	require.NoError(t, f.reviews.Create(context.Background(), pending))

	_, err := f.service.Commit(context.Background(), pending.DraftID, 1)
	assert.ErrorIs(t, err, common.ErrGateUnsatisfied)

	// 失敗的提交不留任何痕跡
	after, err := f.entries.GetByID(context.Background(), flour.ID)
	require.NoError(t, err)
	assert.Zero(t, after.UsageCount)
	assert.Empty(t, f.received)
}

func TestCommitDiscardedReview(t *testing.T) {
	f := newCommitFixture(t)

	pending := f.confirmedReview(t, nil, nil)
	pending.State = review.StateDiscarded
	require.NoError(t, f.reviews.Update(context.Background(), pending, 1))

	_, err := f.service.Commit(context.Background(), pending.DraftID, pending.Version)
	assert.ErrorIs(t, err, common.ErrReviewClosed)
}

func TestCommitStaleVersion(t *testing.T) {
	f := newCommitFixture(t)

	pending := f.confirmedReview(t, nil, nil)
	_, err := f.service.Commit(context.Background(), pending.DraftID, 7)
	assert.ErrorIs(t, err, common.ErrReviewConflict)
}

func TestCommitMissingReview(t *testing.T) {
	f := newCommitFixture(t)
	_, err := f.service.Commit(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, common.ErrReviewNotFound)
}

func TestCommitRollsBackOnStorageFailure(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()
	flour := f.createEntry(t, "Flour")

	pending := f.confirmedReview(t,
		[]ingest.RawIngredientMention{
			{Index: 0, Name: "flour"},
			{Index: 1, Name: "dragon fruit"},
		},
		[]catalog.IngredientMatchCandidate{
			{MentionIndex: 0, MentionName: "flour", NormalizedName: "flour",
				Decision: catalog.DecisionAutoAccepted, ChosenEntryID: flour.ID},
			{MentionIndex: 1, MentionName: "dragon fruit", NormalizedName: "dragon fruit",
				Decision:     catalog.DecisionUserCreated,
				ProposedName: "Dragon Fruit", ProposedKey: "dragon_fruit"},
		})

	boom := errors.New("disk full")
	f.service.commitTxHook = func(*sql.Tx) error { return boom }

	_, err := f.service.Commit(ctx, pending.DraftID, 1)
	require.Error(t, err)
	var custom *common.CustomError
	require.ErrorAs(t, err, &custom)
	assert.Equal(t, common.ErrCodeCommitFailed, custom.Code)

	// 交易整筆回滾：沒有食譜、目錄沒長、使用次數沒動
	var recipeCount int
	require.NoError(t, f.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM recipes`).Scan(&recipeCount))
	assert.Zero(t, recipeCount)

	ghost, err := f.entries.FindByNormalizedKey(ctx, "dragon_fruit")
	require.NoError(t, err)
	assert.Nil(t, ghost)

	after, err := f.entries.GetByID(ctx, flour.ID)
	require.NoError(t, err)
	assert.Zero(t, after.UsageCount)

	// 審核維持 Confirmed、版本不變，提交意圖沒丟
	stored, err := f.reviews.Get(ctx, pending.DraftID)
	require.NoError(t, err)
	assert.Equal(t, review.StateConfirmed, stored.State)
	assert.Equal(t, int64(1), stored.Version)
	assert.Empty(t, stored.RecipeID)
	assert.Empty(t, f.received)

	// 故障排除後重試成功
	f.service.commitTxHook = nil
	recipe, err := f.service.Commit(ctx, pending.DraftID, 1)
	require.NoError(t, err)
	require.Len(t, recipe.Lines, 2)
	require.Len(t, f.received, 1)
}

func TestCommitIsIdempotent(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()
	flour := f.createEntry(t, "Flour")

	pending := f.confirmedReview(t,
		[]ingest.RawIngredientMention{{Index: 0, Name: "flour"}},
		[]catalog.IngredientMatchCandidate{
			{MentionIndex: 0, MentionName: "flour", NormalizedName: "flour",
				Decision: catalog.DecisionAutoAccepted, ChosenEntryID: flour.ID},
		})

	first, err := f.service.Commit(ctx, pending.DraftID, 1)
	require.NoError(t, err)

	// 重複提交回傳同一份食譜，目錄不再成長
	second, err := f.service.Commit(ctx, pending.DraftID, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	after, err := f.entries.GetByID(ctx, flour.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.UsageCount)
	assert.Len(t, f.received, 1)
}

func TestReviseCreatesNewRevision(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()
	flour := f.createEntry(t, "Flour")

	pending := f.confirmedReview(t,
		[]ingest.RawIngredientMention{{Index: 0, Name: "flour"}},
		[]catalog.IngredientMatchCandidate{
			{MentionIndex: 0, MentionName: "flour", NormalizedName: "flour",
				Decision: catalog.DecisionAutoAccepted, ChosenEntryID: flour.ID},
		})

	first, err := f.service.Commit(ctx, pending.DraftID, 1)
	require.NoError(t, err)

	title := "Better Bake"
	second, err := f.service.Revise(ctx, first.ID, &RecipeEdit{Title: &title})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.LineageID, second.LineageID)
	assert.Equal(t, 2, second.Revision)
	assert.Equal(t, "Better Bake", second.Title)
	assert.Equal(t, first.Lines, second.Lines)

	// 歷史版本原封不動
	prev, err := f.recipes.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test Recipe", prev.Title)
	assert.Equal(t, 1, prev.Revision)

	// 對舊版再修訂仍接在系譜最新版之後
	category := "dessert"
	third, err := f.service.Revise(ctx, first.ID, &RecipeEdit{Category: &category})
	require.NoError(t, err)
	assert.Equal(t, 3, third.Revision)
	assert.Equal(t, "dessert", third.Category)
}

func TestReviseMissingRecipe(t *testing.T) {
	f := newCommitFixture(t)
	_, err := f.service.Revise(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestReviseRejectsBlankTitle(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()
	flour := f.createEntry(t, "Flour")

	pending := f.confirmedReview(t,
		[]ingest.RawIngredientMention{{Index: 0, Name: "flour"}},
		[]catalog.IngredientMatchCandidate{
			{MentionIndex: 0, MentionName: "flour", NormalizedName: "flour",
				Decision: catalog.DecisionAutoAccepted, ChosenEntryID: flour.ID},
		})
	first, err := f.service.Commit(ctx, pending.DraftID, 1)
	require.NoError(t, err)

	blank := "   "
	_, err = f.service.Revise(ctx, first.ID, &RecipeEdit{Title: &blank})
	assert.True(t, common.IsValidationError(err))
}
