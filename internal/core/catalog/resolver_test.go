package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-curator/internal/core/ingest"
	"recipe-curator/internal/infrastructure/config"
)

func testResolver() *Resolver {
	return NewResolver(&config.ResolverConfig{
		AutoAcceptThreshold: 0.92,
		ReviewThreshold:     0.75,
		MaxCandidates:       3,
	})
}

func snapshotOf(entries ...SnapshotEntry) Snapshot {
	return NewSnapshot(entries)
}

func entry(id, name string, aliases ...string) SnapshotEntry {
	keys := []string{NormalizeName(name)}
	for _, alias := range aliases {
		keys = append(keys, NormalizeName(alias))
	}
	return SnapshotEntry{
		ID:            id,
		CanonicalName: name,
		NormalizedKey: NormalizedKey(name),
		MatchKeys:     keys,
	}
}

func mentionsOf(names ...string) []ingest.RawIngredientMention {
	mentions := make([]ingest.RawIngredientMention, len(names))
	for i, name := range names {
		mentions[i] = ingest.RawIngredientMention{Index: i, Name: name}
	}
	return mentions
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("tomato", "tomato"))
	assert.Zero(t, Similarity("", "tomato"))
	assert.InDelta(t, 1.0-1.0/7.0, Similarity("tomatoe", "tomato"), 1e-9)
	assert.InDelta(t, 1.0-2.0/6.0, Similarity("tomato", "potato"), 1e-9)
}

func TestResolvePluralMatchesAutoAccepted(t *testing.T) {
	snapshot := snapshotOf(entry("e1", "Tomato"))

	candidates := testResolver().Resolve(mentionsOf("tomatoes"), snapshot)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, DecisionAutoAccepted, c.Decision)
	assert.Equal(t, "e1", c.ChosenEntryID)
	require.NotEmpty(t, c.Candidates)
	assert.Equal(t, 1.0, c.Candidates[0].Score)
}

func TestResolveNearMissNeedsReview(t *testing.T) {
	snapshot := snapshotOf(entry("e1", "Tomato"))

	candidates := testResolver().Resolve(mentionsOf("tomatoe"), snapshot)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, DecisionNeedsReview, c.Decision)
	assert.Empty(t, c.ChosenEntryID)
	assert.Empty(t, c.ProposedName)
	require.NotEmpty(t, c.Candidates)
	assert.InDelta(t, 1.0-1.0/7.0, c.Candidates[0].Score, 1e-9)
}

func TestResolveNoCloseMatchProposesNewEntry(t *testing.T) {
	snapshot := snapshotOf(entry("e1", "Tomato"))

	candidates := testResolver().Resolve(mentionsOf("cucumber"), snapshot)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, DecisionNeedsReview, c.Decision)
	assert.Equal(t, "cucumber", c.ProposedName)
	assert.Equal(t, "cucumber", c.ProposedKey)
}

func TestResolveMatchesAliases(t *testing.T) {
	snapshot := snapshotOf(entry("e1", "Scallion", "green onion"))

	candidates := testResolver().Resolve(mentionsOf("green onions"), snapshot)
	require.Len(t, candidates, 1)
	assert.Equal(t, DecisionAutoAccepted, candidates[0].Decision)
	assert.Equal(t, "e1", candidates[0].ChosenEntryID)
}

func TestResolveCandidateOrderingAndTruncation(t *testing.T) {
	// 四筆條目與提及的距離相同，候選截到前三且依名稱排序
	snapshot := snapshotOf(
		entry("e4", "bear"),
		entry("e2", "bead"),
		entry("e3", "beat"),
		entry("e1", "bean"),
	)

	candidates := testResolver().Resolve(mentionsOf("beam"), snapshot)
	require.Len(t, candidates, 1)

	matches := candidates[0].Candidates
	require.Len(t, matches, 3)
	assert.Equal(t, "bead", matches[0].CanonicalName)
	assert.Equal(t, "bean", matches[1].CanonicalName)
	assert.Equal(t, "bear", matches[2].CanonicalName)
}

func TestResolveIsDeterministic(t *testing.T) {
	snapshot := snapshotOf(
		entry("e1", "Tomato"),
		entry("e2", "Potato"),
		entry("e3", "Onion"),
	)
	mentions := mentionsOf("tomatos", "onion", "carrot")

	resolver := testResolver()
	first := resolver.Resolve(mentions, snapshot)
	second := resolver.Resolve(mentions, snapshot)
	assert.Equal(t, first, second)
}
