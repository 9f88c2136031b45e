package tagger

import (
	"context"
	"errors"
	"testing"

	"souq-backend/internal/domain"
	"souq-backend/internal/infra/openai"
)

type fakeChatClient struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatMessage{Role: "assistant", Content: f.responses[idx]}},
		},
	}, nil
}

func TestGenerateTagsParsesResponse(t *testing.T) {
	client := &fakeChatClient{responses: []string{
		`{"language":"en","tags":[{"english_name":"react","arabic_name":"ريأكت","description":"UI library"}]}`,
	}}
	tagger := NewLLMTagger(client, "gpt-4o-mini", 5)

	suggestion, err := tagger.GenerateTags(context.Background(), "Hooks intro", "About react hooks", nil)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if suggestion.Language != "en" {
		t.Errorf("язык: получили %q, ожидали en", suggestion.Language)
	}
	if len(suggestion.Tags) != 1 || suggestion.Tags[0].NameEN != "react" || suggestion.Tags[0].NameAR != "ريأكت" {
		t.Errorf("неверные теги: %+v", suggestion.Tags)
	}
}

func TestGenerateTagsRetriesOnMalformedJSON(t *testing.T) {
	client := &fakeChatClient{responses: []string{
		`not a json`,
		`{"language":"ar","tags":[{"english_name":"hooks","arabic_name":"هووكس","description":""}]}`,
	}}
	tagger := NewLLMTagger(client, "gpt-4o-mini", 5)

	suggestion, err := tagger.GenerateTags(context.Background(), "t", "b", nil)
	if err != nil {
		t.Fatalf("неожиданная ошибка после повтора: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("вызовов модели: %d, ожидали 2", client.calls)
	}
	if len(suggestion.Tags) != 1 {
		t.Errorf("неверные теги: %+v", suggestion.Tags)
	}
}

func TestGenerateTagsValidationErrorAfterRetries(t *testing.T) {
	client := &fakeChatClient{responses: []string{`broken`, `still broken`}}
	tagger := NewLLMTagger(client, "gpt-4o-mini", 5)

	_, err := tagger.GenerateTags(context.Background(), "t", "b", nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ErrValidation, получили %v", err)
	}
	if client.calls != 2 {
		t.Errorf("вызовов модели: %d, ожидали 2", client.calls)
	}
}

func TestGenerateTagsRejectsMissingArabicName(t *testing.T) {
	client := &fakeChatClient{responses: []string{
		`{"language":"en","tags":[{"english_name":"react","arabic_name":"","description":""}]}`,
	}}
	tagger := NewLLMTagger(client, "gpt-4o-mini", 5)

	_, err := tagger.GenerateTags(context.Background(), "t", "b", nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ErrValidation, получили %v", err)
	}
}

func TestGenerateTagsCapsTagCount(t *testing.T) {
	client := &fakeChatClient{responses: []string{
		`{"language":"en","tags":[
			{"english_name":"a","arabic_name":"أ","description":""},
			{"english_name":"b","arabic_name":"ب","description":""},
			{"english_name":"c","arabic_name":"ت","description":""}
		]}`,
	}}
	tagger := NewLLMTagger(client, "gpt-4o-mini", 2)

	suggestion, err := tagger.GenerateTags(context.Background(), "t", "b", nil)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(suggestion.Tags) != 2 {
		t.Errorf("тегов после усечения: %d, ожидали 2", len(suggestion.Tags))
	}
}
