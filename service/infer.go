package service

import (
	"strings"

	"budgetbuddy/models"
)

// topicKeywords 主题标签及其同义词表。
// 标签按固定顺序匹配类别名称，只取第一个命中的标签；同义词表不做本地化。
var topicKeywords = []struct {
	label    string
	synonyms []string
}{
	{"food", []string{"burger", "pizza", "restaurant", "lunch", "dinner", "breakfast", "coffee", "grocery", "groceries", "snack", "meal", "takeout"}},
	{"transport", []string{"bus", "train", "taxi", "uber", "fuel", "gas", "parking", "metro", "car"}},
	{"entertainment", []string{"movie", "cinema", "concert", "game", "theater", "show", "party"}},
	{"shopping", []string{"clothes", "clothing", "shoes", "amazon", "mall", "electronics"}},
	{"health", []string{"doctor", "pharmacy", "medicine", "hospital", "dentist", "gym"}},
	{"utilities", []string{"electricity", "water", "internet", "phone", "heating", "bill"}},
	{"housing", []string{"rent", "mortgage", "furniture", "repair", "cleaning"}},
	{"travel", []string{"hotel", "flight", "vacation", "trip", "airbnb", "luggage"}},
	{"subscriptions", []string{"netflix", "spotify", "subscription", "membership", "streaming"}},
	{"education", []string{"course", "book", "tuition", "school", "university", "workshop"}},
}

// InferCategory 根据标题+描述文本为消费推断类别。
// 打分规则：类别名称在文本中出现 +2；类别名称包含某主题标签时，
// 该标签的每个同义词命中 +1。严格最高且非零者当选，
// 平分保留先遇到的候选（调用方按 id 升序传入即为最小 id 优先）。
// 返回 nil 表示无法推断，消费保持未分类。
func InferCategory(title, description string, categories []models.Category) *models.Category {
	text := strings.ToLower(strings.TrimSpace(title + " " + description))
	if text == "" || len(categories) == 0 {
		return nil
	}

	var best *models.Category
	bestScore := 0

	for i := range categories {
		cat := &categories[i]
		name := strings.ToLower(strings.TrimSpace(cat.Name))
		if name == "" {
			continue
		}

		score := 0
		if strings.Contains(text, name) {
			score += 2
		}

		// 只取第一个命中的主题标签
		for _, topic := range topicKeywords {
			if !strings.Contains(name, topic.label) {
				continue
			}
			for _, kw := range topic.synonyms {
				if strings.Contains(text, kw) {
					score++
				}
			}
			break
		}

		if score > bestScore {
			bestScore = score
			best = cat
		}
	}

	return best
}
