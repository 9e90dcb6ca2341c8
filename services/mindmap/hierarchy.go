package mindmap

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Denni-Wild/Subs-bot-sub000/models"
)

const (
	defaultMainTopic = "Анализ текста"
	generalTopic     = "Общие темы"
	generalEmoji     = "💡"
)

type category struct {
	name     string
	emoji    string
	keywords []string
}

// categories are checked in order; an idea joins the first that matches.
var categories = []category{
	{name: "ИИ и ML", emoji: "🤖", keywords: []string{"искусственный интеллект", "ии", "ai", "машинное обучение", "machine learning", "нейросет"}},
	{name: "Видео контент", emoji: "🎥", keywords: []string{"видео", "youtube", "субтитр", "video", "subtitles"}},
	{name: "Аудио обработка", emoji: "🎵", keywords: []string{"голос", "аудио", "транскрипц", "распознавание речи", "audio", "voice", "speech"}},
}

// BuildHierarchy groups ideas by keyword into topics. Duplicate ideas are
// dropped case-insensitively. Without ideas the map has only its default
// main topic.
func BuildHierarchy(ideas []string) *models.MindMap {
	byName := make(map[string]*models.MindMapTopic)
	order := make(map[string]int)
	seen := make(map[string]bool)

	for _, idea := range ideas {
		key := strings.ToLower(strings.TrimSpace(idea))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		name, emoji, rank := classify(idea)
		topic, ok := byName[name]
		if !ok {
			topic = &models.MindMapTopic{Name: name, Emoji: emoji}
			byName[name] = topic
			order[name] = rank
		}
		topic.Ideas = append(topic.Ideas, idea)
	}

	m := &models.MindMap{MainTopic: defaultMainTopic, Topics: make([]models.MindMapTopic, 0, len(byName))}
	for _, t := range byName {
		m.Topics = append(m.Topics, *t)
	}
	sort.SliceStable(m.Topics, func(i, j int) bool {
		a, b := m.Topics[i], m.Topics[j]
		if len(a.Ideas) != len(b.Ideas) {
			return len(a.Ideas) > len(b.Ideas)
		}
		return order[a.Name] < order[b.Name]
	})
	if len(m.Topics) > 0 {
		m.MainTopic = m.Topics[0].Name
	}
	return m
}

func classify(idea string) (name, emoji string, rank int) {
	words := " " + strings.Join(strings.FieldsFunc(strings.ToLower(idea), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}), " ") + " "

	for i, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(words, keywordPattern(kw)) {
				return c.name, c.emoji, i
			}
		}
	}
	return generalTopic, generalEmoji, len(categories)
}

// keywordPattern matches short keywords as whole words and longer ones as
// word prefixes, so inflected forms such as "субтитров" still match.
func keywordPattern(kw string) string {
	if utf8.RuneCountInString(kw) <= 3 {
		return " " + kw + " "
	}
	return " " + kw
}
