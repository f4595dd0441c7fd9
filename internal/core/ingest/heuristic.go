package ingest

import (
	"regexp"
	"strings"
)

var (
	ingredientHeading  = regexp.MustCompile(`(?i)^#*\s*(ingredients?|食材|材料)\b`)
	instructionHeading = regexp.MustCompile(`(?i)^#*\s*(instructions?|directions?|method|steps?|preparation|作法|步驟|做法)\b`)
	titleHeading       = regexp.MustCompile(`(?i)^#*\s*(title|標題)\s*[:：]\s*(.+)$`)
	categoryHeading    = regexp.MustCompile(`(?i)^#*\s*(category|course|分類|類別)\s*[:：]\s*(.+)$`)
	stepPrefix         = regexp.MustCompile(`^(?:step\s+)?\d+[.)：:]?\s+`)
)

// heuristicParse 對純文字做逐行啟發式解析。
// 有段落標題時依標題分段；沒有時依每行形狀分類：
// 帶數量的短行視為食材，編號行或長句視為步驟。
func heuristicParse(text string, explicitStructure bool) *StrategyResult {
	var (
		title           string
		titleExplicit   bool
		category        string
		ingredientLines []string
		instructions    []string
	)

	// none / ingredients / instructions
	section := "none"
	sawHeading := false

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if m := titleHeading.FindStringSubmatch(line); m != nil {
			title = strings.TrimSpace(m[2])
			titleExplicit = true
			continue
		}
		if m := categoryHeading.FindStringSubmatch(line); m != nil {
			category = strings.TrimSpace(m[2])
			continue
		}
		if ingredientHeading.MatchString(line) {
			section = "ingredients"
			sawHeading = true
			continue
		}
		if instructionHeading.MatchString(line) {
			section = "instructions"
			sawHeading = true
			continue
		}

		switch section {
		case "ingredients":
			ingredientLines = append(ingredientLines, line)
		case "instructions":
			instructions = append(instructions, stepPrefix.ReplaceAllString(line, ""))
		default:
			// 標題前的第一行文字當作標題
			if title == "" {
				title = strings.TrimLeft(line, "# ")
				continue
			}
			if classifyAsIngredient(line) {
				ingredientLines = append(ingredientLines, line)
			} else {
				instructions = append(instructions, stepPrefix.ReplaceAllString(line, ""))
			}
		}
	}

	mentions, ingredientConfidence := ParseIngredientBlock(ingredientLines)

	confidence := map[string]float64{
		FieldIngredients: ingredientConfidence,
	}
	switch {
	case titleExplicit:
		confidence[FieldTitle] = 1.0
	case title != "":
		confidence[FieldTitle] = 0.5
	}
	if len(instructions) > 0 {
		if sawHeading {
			confidence[FieldInstructions] = 0.8
		} else {
			confidence[FieldInstructions] = 0.5
		}
	}
	if category != "" {
		confidence[FieldCategory] = 1.0
	}

	method := MethodHeuristic
	if explicitStructure {
		method = MethodManualStructured
	}

	return &StrategyResult{
		Title:           title,
		Mentions:        mentions,
		Instructions:    instructions,
		Category:        category,
		FieldConfidence: confidence,
		Method:          method,
	}
}

// classifyAsIngredient 無標題時的逐行分類
func classifyAsIngredient(line string) bool {
	if stepPrefix.MatchString(line) && len(line) > 40 {
		return false
	}
	mention, ok := ParseIngredientLine(0, line)
	if !ok {
		return false
	}
	if mention.Quantity != nil {
		return true
	}
	// 沒有數量時，短行較可能是食材（"salt to taste"）
	return len(strings.Fields(line)) <= 4
}
