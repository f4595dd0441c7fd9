package catalog

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"recipe-curator/internal/core/ingest"
	"recipe-curator/internal/infrastructure/config"
)

// Resolver 食材解析器：把抽取出的提及對應到主食材目錄。
// 同樣的提及加同樣的目錄狀態必定產生同樣的候選與排序。
type Resolver struct {
	config *config.ResolverConfig
}

// NewResolver 創建解析器
func NewResolver(cfg *config.ResolverConfig) *Resolver {
	return &Resolver{config: cfg}
}

// Similarity 正規化後的字串相似度，落在 [0,1]。
// 1 - 編輯距離 / 較長字串長度；兩個空字串視為不相似。
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	distance := levenshtein.ComputeDistance(a, b)
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	score := 1 - float64(distance)/float64(maxLen)
	if score < 0 {
		return 0
	}
	return score
}

// Resolve 對每筆提及計算與目錄中所有條目（鍵與別名）的最佳相似度，
// 依閾值給出決策。成本為 O(mentions × catalog)；要加索引就換掉 Snapshot 實作。
func (r *Resolver) Resolve(mentions []ingest.RawIngredientMention, snapshot Snapshot) []IngredientMatchCandidate {
	entries := snapshot.Entries()
	candidates := make([]IngredientMatchCandidate, 0, len(mentions))

	for _, mention := range mentions {
		normalized := NormalizeName(mention.Name)

		matches := make([]EntryMatch, 0, len(entries))
		for _, entry := range entries {
			best := 0.0
			for _, key := range entry.MatchKeys {
				if score := Similarity(normalized, key); score > best {
					best = score
				}
			}
			if best > 0 {
				matches = append(matches, EntryMatch{
					EntryID:       entry.ID,
					CanonicalName: entry.CanonicalName,
					Score:         best,
				})
			}
		}

		// 分數遞減；平手依正規名稱、再依最小條目 id，保證排序可重現
		sort.Slice(matches, func(i, j int) bool {
			if matches[i].Score != matches[j].Score {
				return matches[i].Score > matches[j].Score
			}
			ci := strings.ToLower(matches[i].CanonicalName)
			cj := strings.ToLower(matches[j].CanonicalName)
			if ci != cj {
				return ci < cj
			}
			return matches[i].EntryID < matches[j].EntryID
		})

		if len(matches) > r.config.MaxCandidates {
			matches = matches[:r.config.MaxCandidates]
		}

		candidate := IngredientMatchCandidate{
			MentionIndex:   mention.Index,
			MentionName:    mention.Name,
			NormalizedName: normalized,
			Candidates:     matches,
		}

		switch {
		case len(matches) > 0 && matches[0].Score >= r.config.AutoAcceptThreshold:
			candidate.Decision = DecisionAutoAccepted
			candidate.ChosenEntryID = matches[0].EntryID
		case len(matches) > 0 && matches[0].Score >= r.config.ReviewThreshold:
			candidate.Decision = DecisionNeedsReview
		default:
			// 沒有夠像的條目：提議新建，仍需使用者確認
			candidate.Decision = DecisionNeedsReview
			candidate.ProposedName = strings.TrimSpace(mention.Name)
			candidate.ProposedKey = NormalizedKey(mention.Name)
		}

		candidates = append(candidates, candidate)
	}

	return candidates
}
