package modelclient

import (
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ragcore/ragcore/internal/domain"
)

// OpenAIEmbedder embeds text through OpenAI's embeddings API. It is the
// remote backend option for the embedding client.
type OpenAIEmbedder struct {
	client oai.Client
	model  string
}

// NewOpenAIEmbedder creates a remote embedding backend. If model is empty,
// "text-embedding-3-small" is used.
func NewOpenAIEmbedder(apiKey, model string, opts ...option.RequestOption) *OpenAIEmbedder {
	if model == "" {
		model = oai.EmbeddingModelTextEmbedding3Small
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIEmbedder{client: oai.NewClient(reqOpts...), model: model}
}

// EmbedBatch implements Embedder.
func (c *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: c.model,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "openai.embed_batch", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, domain.Wrap(domain.KindPermanent, "openai.embed_batch",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	out := make([][]float32, len(texts))
	for _, e := range resp.Data {
		if int(e.Index) >= len(texts) {
			return nil, domain.Wrap(domain.KindPermanent, "openai.embed_batch", fmt.Errorf("unexpected index %d", e.Index))
		}
		out[e.Index] = float64ToFloat32(e.Embedding)
	}
	return l2NormalizeBatch(out), nil
}

func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
