package embedder

import (
	"context"
	"fmt"

	"souq-backend/internal/domain"
	"souq-backend/internal/infra/openai"
)

type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequest) (openai.EmbeddingResponse, error)
}

// OpenAI векторизует текст через /embeddings.
type OpenAI struct {
	client embeddingClient
	model  string
	dim    int
}

// NewOpenAI создаёт провайдера векторизации с фиксированной размерностью.
func NewOpenAI(client embeddingClient, model string, dim int) *OpenAI {
	return &OpenAI{client: client, model: model, dim: dim}
}

var _ domain.Embedder = (*OpenAI)(nil)

// EmbedText возвращает вектор заданной размерности для текста.
func (o *OpenAI) EmbedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      o.model,
		Input:      []string{text},
		Dimensions: o.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedder: пустой ответ векторизации")
	}
	vec := resp.Data[0].Embedding
	if o.dim > 0 && len(vec) != o.dim {
		return nil, fmt.Errorf("embedder: размерность %d, ожидали %d", len(vec), o.dim)
	}
	return vec, nil
}
