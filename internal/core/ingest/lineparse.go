package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

// 常見單位詞彙表，鍵為出現在來源行中的寫法，值為正規化單位
var unitLexicon = map[string]string{
	// 重量
	"g": "g", "gram": "g", "grams": "g", "gr": "g",
	"kg": "kg", "kilogram": "kg", "kilograms": "kg",
	"oz": "oz", "ounce": "oz", "ounces": "oz",
	"lb": "lb", "lbs": "lb", "pound": "lb", "pounds": "lb",
	// 容量
	"ml": "ml", "milliliter": "ml", "milliliters": "ml", "millilitre": "ml", "millilitres": "ml",
	"cl": "cl", "dl": "dl",
	"l": "l", "liter": "l", "liters": "l", "litre": "l", "litres": "l",
	"cup": "cup", "cups": "cup", "c": "cup",
	"tbsp": "tbsp", "tablespoon": "tbsp", "tablespoons": "tbsp", "tbs": "tbsp",
	"tsp": "tsp", "teaspoon": "tsp", "teaspoons": "tsp",
	"pint": "pint", "pints": "pint", "pt": "pint",
	"quart": "quart", "quarts": "quart", "qt": "quart",
	"gallon": "gallon", "gallons": "gallon",
	"fl": "fl oz", // 後接 oz 時合併
	// 個數
	"piece": "piece", "pieces": "piece", "pz": "piece",
	"clove": "clove", "cloves": "clove",
	"slice": "slice", "slices": "slice",
	"can": "can", "cans": "can", "tin": "can", "tins": "can",
	"package": "package", "packages": "package", "pkg": "package",
	"bunch": "bunch", "bunches": "bunch",
	"sprig": "sprig", "sprigs": "sprig",
	"stick": "stick", "sticks": "stick",
	"stalk": "stalk", "stalks": "stalk",
	"head": "head", "heads": "head",
	"leaf": "leaf", "leaves": "leaf",
	"pinch": "pinch", "pinches": "pinch",
	"dash": "dash", "dashes": "dash",
	"handful": "handful", "handfuls": "handful",
}

// unicode 分數字元
var vulgarFractions = map[rune]float64{
	'¼': 0.25, '½': 0.5, '¾': 0.75,
	'⅓': 1.0 / 3.0, '⅔': 2.0 / 3.0,
	'⅕': 0.2, '⅖': 0.4, '⅗': 0.6, '⅘': 0.8,
	'⅛': 0.125, '⅜': 0.375, '⅝': 0.625, '⅞': 0.875,
}

var (
	notePattern  = regexp.MustCompile(`\(([^)]*)\)`)
	rangePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*[-–~]\s*\d+(?:\.\d+)?$`)
)

// parseQuantityToken 解析單一數量 token，支援小數、分數、unicode 分數與區間（取下界）
func parseQuantityToken(token string) (float64, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false
	}

	// 區間 "1-2" 取下界
	if m := rangePattern.FindStringSubmatch(token); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		return v, err == nil
	}

	// 純 unicode 分數或 "1½" 形式
	var base float64
	var rest []rune
	for _, r := range token {
		if frac, ok := vulgarFractions[r]; ok {
			prefix := strings.TrimSpace(string(rest))
			if prefix != "" {
				whole, err := strconv.ParseFloat(prefix, 64)
				if err != nil {
					return 0, false
				}
				base = whole
			}
			return base + frac, true
		}
		rest = append(rest, r)
	}

	// "1/2" 形式
	if idx := strings.Index(token, "/"); idx > 0 {
		num, errN := strconv.ParseFloat(token[:idx], 64)
		den, errD := strconv.ParseFloat(token[idx+1:], 64)
		if errN != nil || errD != nil || den == 0 {
			return 0, false
		}
		return num / den, true
	}

	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseIngredientLine 把一行食材文字拆成 數量 / 單位 / 名稱 / 備註。
// 回傳的 bool 表示該行是否被無歧義地解析（至少切出名稱）。
func ParseIngredientLine(index int, line string) (RawIngredientMention, bool) {
	mention := RawIngredientMention{Index: index, RawLine: line}

	working := strings.TrimSpace(line)
	// 去掉常見的列表前綴
	working = strings.TrimLeft(working, "-*•· \t")
	if working == "" {
		return mention, false
	}

	// 括號內容移入備註
	if m := notePattern.FindStringSubmatch(working); m != nil {
		mention.Note = strings.TrimSpace(m[1])
		working = strings.TrimSpace(notePattern.ReplaceAllString(working, " "))
	}

	tokens := strings.Fields(working)
	if len(tokens) == 0 {
		return mention, false
	}

	pos := 0

	// 前導數量，可能由兩個 token 組成（"1 1/2"）
	if qty, ok := parseQuantityToken(tokens[pos]); ok {
		quantity := qty
		pos++
		if pos < len(tokens) {
			if frac, ok := parseQuantityToken(tokens[pos]); ok && frac < 1 {
				quantity += frac
				pos++
			}
		}
		mention.Quantity = &quantity
	}

	// 單位（僅在有數量時才判定，避免把 "salt" 裡的詞誤認成單位）
	if mention.Quantity != nil && pos < len(tokens) {
		candidate := strings.ToLower(strings.Trim(tokens[pos], ".,"))
		unit, ok := unitLexicon[candidate]
		// "fl" 只有後接 "oz" 才是單位，否則留在名稱裡
		if ok && unit == "fl oz" {
			if pos+1 < len(tokens) && strings.ToLower(strings.Trim(tokens[pos+1], ".,")) == "oz" {
				pos++
			} else {
				ok = false
			}
		}
		if ok {
			mention.Unit = unit
			pos++
			// 跳過 "of"（"2 cups of flour"）
			if pos < len(tokens) && strings.EqualFold(tokens[pos], "of") {
				pos++
			}
		}
	}

	if pos >= len(tokens) {
		return mention, false
	}

	name := strings.Join(tokens[pos:], " ")
	// 逗號後的描述（"onion, finely chopped"）移入備註
	if idx := strings.Index(name, ","); idx >= 0 {
		trailing := strings.TrimSpace(name[idx+1:])
		if trailing != "" {
			if mention.Note != "" {
				mention.Note += "; " + trailing
			} else {
				mention.Note = trailing
			}
		}
		name = strings.TrimSpace(name[:idx])
	}
	if name == "" {
		return mention, false
	}
	mention.Name = name
	return mention, true
}

// ParseIngredientBlock 解析整個食材區塊。
// 第二個回傳值是該欄位的信心：完整解析（數量＋名稱）計 1，只有名稱計 0.5。
func ParseIngredientBlock(lines []string) ([]RawIngredientMention, float64) {
	var mentions []RawIngredientMention
	var score float64
	var total int

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		total++
		mention, ok := ParseIngredientLine(len(mentions), line)
		if !ok {
			continue
		}
		mentions = append(mentions, mention)
		if mention.Quantity != nil {
			score += 1.0
		} else {
			score += 0.5
		}
	}

	if total == 0 {
		return nil, 0
	}
	return mentions, score / float64(total)
}
