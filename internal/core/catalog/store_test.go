package catalog

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-curator/internal/infrastructure/storage"
)

func newTestStore(t *testing.T) (*Store, *storage.DB) {
	t.Helper()
	db, err := storage.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), db
}

func TestCreateIfAbsentDeduplicatesByKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreateIfAbsent(ctx, &MasterIngredientEntry{
		CanonicalName: "Tomato",
		NormalizedKey: "tomato",
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	// 同一個鍵再建一次必須回到既有條目
	second, err := store.CreateIfAbsent(ctx, &MasterIngredientEntry{
		CanonicalName: "Tomatoes",
		NormalizedKey: "tomato",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Tomato", second.CanonicalName)
}

func TestCreateIfAbsentRequiresKey(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.CreateIfAbsent(context.Background(), &MasterIngredientEntry{CanonicalName: "x"})
	assert.Error(t, err)
}

func TestAppendAliasesIsAppendOnly(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	entry, err := store.CreateIfAbsent(ctx, &MasterIngredientEntry{
		CanonicalName: "Scallion",
		NormalizedKey: "scallion",
		Aliases:       []string{"green onion"},
	})
	require.NoError(t, err)

	require.NoError(t, store.AppendAliases(ctx, entry.ID, []string{"spring onion", "green onion"}))

	reloaded, err := store.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"green onion", "spring onion"}, reloaded.Aliases)

	// 重複追加不產生變化
	require.NoError(t, store.AppendAliases(ctx, entry.ID, []string{"spring onion"}))
	reloaded, err = store.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Len(t, reloaded.Aliases, 2)
}

func TestIncrementUsage(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	entry, err := store.CreateIfAbsent(ctx, &MasterIngredientEntry{
		CanonicalName: "Flour",
		NormalizedKey: "flour",
	})
	require.NoError(t, err)
	assert.Zero(t, entry.UsageCount)

	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		return IncrementUsageTx(ctx, tx, entry.ID)
	})
	require.NoError(t, err)

	reloaded, err := store.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.UsageCount)
}

func TestTouchCalories(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	entry, err := store.CreateIfAbsent(ctx, &MasterIngredientEntry{
		CanonicalName: "Butter",
		NormalizedKey: "butter",
	})
	require.NoError(t, err)
	assert.Nil(t, entry.CaloriesPer100g)

	require.NoError(t, store.TouchCalories(ctx, entry.ID, 717, "openfoodfacts"))

	reloaded, err := store.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.CaloriesPer100g)
	assert.Equal(t, 717.0, *reloaded.CaloriesPer100g)
	assert.Equal(t, "openfoodfacts", reloaded.CalorieSource)
	assert.NotNil(t, reloaded.CalorieUpdatedAt)
}

func TestFindByNormalizedKeyMissing(t *testing.T) {
	store, _ := newTestStore(t)
	entry, err := store.FindByNormalizedKey(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestSnapshotMatchKeys(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateIfAbsent(ctx, &MasterIngredientEntry{
		CanonicalName: "Scallion",
		NormalizedKey: "scallion",
		Aliases:       []string{"Green Onions"},
	})
	require.NoError(t, err)

	snapshot, err := store.Snapshot(ctx)
	require.NoError(t, err)

	entries := snapshot.Entries()
	require.Len(t, entries, 1)
	// 配對鍵包含正規化後的 canonical name 與所有別名
	assert.Equal(t, []string{"scallion", "green onion"}, entries[0].MatchKeys)
}
