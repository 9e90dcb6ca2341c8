package summary

import (
	"context"
	"time"

	"github.com/Denni-Wild/Subs-bot-sub000/models"
)

// Completer is the remote summarization host.
type Completer interface {
	Complete(ctx context.Context, modelID, systemPrompt, userText string) (string, error)
}

// RunRecorder observes finished pipeline runs.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *models.SummaryRun) error
}

type Config struct {
	ChunkSize int
	// ShortTextThreshold is the rune count under which single-chunk text is
	// summarized in one call.
	ShortTextThreshold  int
	ChunkPause          time.Duration
	AggregationAttempts int
	AggregationDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:           1000,
		ShortTextThreshold:  2000,
		ChunkPause:          2 * time.Second,
		AggregationAttempts: 3,
		AggregationDelay:    5 * time.Second,
	}
}

type Options struct {
	// Prompt replaces the per-chunk system prompt.
	Prompt             string
	TranslateToRussian bool
	CallerKey          string
	Source             string
}

const (
	LanguageRussian = "ru"
	LanguageEnglish = "en"
	LanguageOther   = "other"
)

const (
	chunkPrompt       = "Кратко изложи основные мысли этого фрагмента текста."
	shortTextPrompt   = "Создай краткую и содержательную суммаризацию текста."
	aggregationPrompt = "Создай единую связную суммаризацию на основе этих фрагментов:"

	translatorPrompt      = "Ты - профессиональный переводчик. Переводи текст на русский язык, сохраняя смысл, стиль и структуру."
	translateFromEnglish  = "Переведи следующий текст с английского на русский язык, сохранив смысл и стиль:"
	translateFromAnyOther = "Переведи следующий текст на русский язык, сохранив смысл и стиль:"

	degradedLabel = "[Partial result: the final summary could not be assembled. Summaries of the individual fragments follow.]"
)
