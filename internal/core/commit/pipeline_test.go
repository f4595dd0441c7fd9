package commit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-curator/internal/core/catalog"
	"recipe-curator/internal/core/ingest"
	"recipe-curator/internal/core/review"
	"recipe-curator/internal/infrastructure/config"
	"recipe-curator/internal/pkg/common"
)

// 掃描清單走完整條流水線：抽取、解析、人工確認、提交。
// 拼錯的 tomatoe 進人工審核，確認後綁到既有條目，目錄不成長。
func TestScannedListCuratedEndToEnd(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()

	flour := f.createEntry(t, "Flour")
	salt := f.createEntry(t, "Salt")
	tomato := f.createEntry(t, "Tomato")

	cfg := &config.Config{
		Extract: config.ExtractConfig{
			ConfidenceThreshold: 0.6,
			MaxFallbackDepth:    2,
			StrategyTimeout:     time.Second,
			MaxRetries:          2,
			RetryBackoff:        time.Millisecond,
		},
		Resolver: config.ResolverConfig{
			AutoAcceptThreshold: 0.92,
			ReviewThreshold:     0.75,
			MaxCandidates:       3,
		},
	}
	orchestrator := ingest.NewOrchestrator(cfg,
		ingest.NewAdapterRegistry(ingest.NewManualAdapter()), nil)
	resolver := catalog.NewResolver(&cfg.Resolver)

	source := &ingest.RawSource{
		ID:       common.GenerateUUID(),
		Modality: ingest.ModalityManual,
		Payload: "Title: Weeknight Bake\n" +
			"Category: dinner\n" +
			"Ingredients:\n" +
			"2 cups flour\n" +
			"1 tsp salt\n" +
			"tomatoe\n" +
			"Instructions:\n" +
			"Mix everything.\n" +
			"Bake until golden.",
		CreatedAt: time.Now().UTC(),
	}

	draft, err := orchestrator.Extract(ctx, source)
	require.NoError(t, err)
	require.Len(t, draft.Mentions, 3)
	assert.False(t, draft.FullyManual)

	snapshot, err := f.entries.Snapshot(ctx)
	require.NoError(t, err)
	candidates := resolver.Resolve(draft.Mentions, snapshot)
	require.Len(t, candidates, 3)

	pending := review.NewPendingReview(draft, candidates,
		orchestrator.LowConfidenceFields(draft))
	require.NoError(t, f.reviews.Create(ctx, pending))

	// flour 與 salt 直配，只剩拼錯的 tomatoe 等人工處置
	assert.Equal(t, catalog.DecisionAutoAccepted, pending.Candidates[0].Decision)
	assert.Equal(t, catalog.DecisionAutoAccepted, pending.Candidates[1].Decision)
	assert.Equal(t, catalog.DecisionNeedsReview, pending.Candidates[2].Decision)
	require.Len(t, pending.OutstandingItems(), 1)

	// 提前提交被擋下
	_, err = f.service.Commit(ctx, pending.DraftID, pending.Version)
	assert.ErrorIs(t, err, common.ErrGateUnsatisfied)

	// 使用者確認 tomatoe 就是 Tomato
	require.NoError(t, pending.ResolveCandidate(&review.CandidateAction{
		MentionIndex: 2,
		Action:       "confirm-match",
		EntryID:      tomato.ID,
	}))
	require.NoError(t, pending.Confirm())
	require.NoError(t, f.reviews.Update(ctx, pending, pending.Version))

	recipe, err := f.service.Commit(ctx, pending.DraftID, pending.Version)
	require.NoError(t, err)

	// 三行食材、零筆新條目
	require.Len(t, recipe.Lines, 3)
	assert.Equal(t, flour.ID, recipe.Lines[0].EntryID)
	assert.Equal(t, ptrOf(2.0), recipe.Lines[0].Quantity)
	assert.Equal(t, "cup", recipe.Lines[0].Unit)
	assert.Equal(t, salt.ID, recipe.Lines[1].EntryID)
	assert.Equal(t, tomato.ID, recipe.Lines[2].EntryID)
	assert.Equal(t, "Weeknight Bake", recipe.Title)
	assert.Equal(t, "dinner", recipe.Category)

	after, err := f.entries.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, after.Entries(), 3)
}

func ptrOf(v float64) *float64 { return &v }
