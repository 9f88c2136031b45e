package tagger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"souq-backend/internal/domain"
	"souq-backend/internal/infra/openai"
)

const systemPrompt = `You label marketplace content for a bilingual (English/Arabic) audience.
Given a piece of content, detect its language and propose topical tags.
Every tag must carry both an English and an Arabic name; transliterations of the
same term count as one tag, not two. Prefer tags from the existing catalog when
they fit. Respond with a single JSON object of the form:
{"language":"en|ar","tags":[{"english_name":"...","arabic_name":"...","description":"..."}]}`

// chatCompletionClient — минимальный интерфейс клиента Chat Completions.
type chatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMTagger генерирует двуязычные теги через Chat Completions.
type LLMTagger struct {
	client  chatCompletionClient
	model   string
	maxTags int
}

// NewLLMTagger создаёт провайдера тегирования.
func NewLLMTagger(client chatCompletionClient, model string, maxTags int) *LLMTagger {
	if maxTags <= 0 {
		maxTags = 5
	}
	return &LLMTagger{client: client, model: model, maxTags: maxTags}
}

var _ domain.TagGenerator = (*LLMTagger)(nil)

type suggestionPayload struct {
	Language string                `json:"language"`
	Tags     []domain.TagCandidate `json:"tags"`
}

// GenerateTags запрашивает у модели теги для контента. Неразборчивый ответ
// повторяется один раз, после чего возвращается ErrValidation.
func (t *LLMTagger) GenerateTags(ctx context.Context, title, body string, existing []domain.Tag) (domain.TagSuggestion, error) {
	userPrompt := t.buildPrompt(title, body, existing)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: t.model,
			Messages: []openai.ChatMessage{
				{Role: openai.RoleSystem, Content: systemPrompt},
				{Role: openai.RoleUser, Content: userPrompt},
			},
			Temperature:    0.2,
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
		})
		if err != nil {
			return domain.TagSuggestion{}, fmt.Errorf("tagger: chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("пустой ответ модели")
			continue
		}
		suggestion, err := parseSuggestion(resp.Choices[0].Message.Content)
		if err != nil {
			lastErr = err
			continue
		}
		if len(suggestion.Tags) > t.maxTags {
			suggestion.Tags = suggestion.Tags[:t.maxTags]
		}
		return suggestion, nil
	}
	return domain.TagSuggestion{}, fmt.Errorf("%w: ответ модели не разобран: %v", domain.ErrValidation, lastErr)
}

func (t *LLMTagger) buildPrompt(title, body string, existing []domain.Tag) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n\nBody:\n%s\n\n", title, body)
	if len(existing) > 0 {
		sb.WriteString("Existing tag catalog (reuse when applicable):\n")
		for _, tag := range existing {
			fmt.Fprintf(&sb, "- %s / %s: %s\n", tag.NameEN, tag.NameAR, tag.Description)
		}
	}
	fmt.Fprintf(&sb, "\nPropose at most %d tags.", t.maxTags)
	return sb.String()
}

func parseSuggestion(content string) (domain.TagSuggestion, error) {
	var payload suggestionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return domain.TagSuggestion{}, fmt.Errorf("разбор JSON: %w", err)
	}
	tags := make([]domain.TagCandidate, 0, len(payload.Tags))
	for _, tag := range payload.Tags {
		tag.NameEN = strings.TrimSpace(tag.NameEN)
		tag.NameAR = strings.TrimSpace(tag.NameAR)
		if tag.NameEN == "" || tag.NameAR == "" {
			return domain.TagSuggestion{}, fmt.Errorf("тег без одного из имён: %q / %q", tag.NameEN, tag.NameAR)
		}
		tags = append(tags, tag)
	}
	return domain.TagSuggestion{Language: strings.TrimSpace(payload.Language), Tags: tags}, nil
}
