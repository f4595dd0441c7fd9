package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"recipe-curator/internal/core/ingest"
)

var (
	diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	nonWordPattern    = regexp.MustCompile(`[^a-z0-9]+`)
)

// StripDiacritics 去掉變音符號（crème → creme）
func StripDiacritics(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		return s
	}
	return out
}

// singularize 常見英文複數字尾還原。保守規則，寧可不動也不要改錯。
func singularize(word string) string {
	switch {
	case len(word) <= 3:
		return word
	case strings.HasSuffix(word, "ies"):
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "oes"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "sses"), strings.HasSuffix(word, "shes"),
		strings.HasSuffix(word, "ches"), strings.HasSuffix(word, "xes"),
		strings.HasSuffix(word, "zes"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "us"), strings.HasSuffix(word, "is"):
		return word
	case strings.HasSuffix(word, "s"):
		return word[:len(word)-1]
	default:
		return word
	}
}

// NormalizeName 把一筆提及文字變成可比對的正規名稱：
// 先借行解析器剝掉前導數量與單位，再小寫、去變音符、逐字還原單數。
func NormalizeName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return ""
	}

	if mention, ok := ingest.ParseIngredientLine(0, name); ok && mention.Name != "" {
		name = mention.Name
	}

	name = StripDiacritics(strings.ToLower(name))

	tokens := strings.Fields(name)
	for i, token := range tokens {
		tokens[i] = singularize(token)
	}
	return strings.Join(tokens, " ")
}

// NormalizedKey 由正規名稱產生全域唯一鍵（底線連接，僅保留字母數字）
func NormalizedKey(raw string) string {
	name := NormalizeName(raw)
	key := nonWordPattern.ReplaceAllString(name, "_")
	return strings.Trim(key, "_")
}
