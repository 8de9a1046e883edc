package modelclient

import (
	"context"
	"encoding/base64"
	"errors"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ragcore/ragcore/internal/domain"
)

var errEmptyVisionResponse = errors.New("openai vision: empty response")

// OpenAIVisionLanguage implements VisionLanguageClient using OpenAI's
// vision-capable chat completions endpoint, one image per call.
type OpenAIVisionLanguage struct {
	client oai.Client
	model  string
}

// NewOpenAIVisionLanguage creates a vision-language client. If model is
// empty, "gpt-4o-mini" is used.
func NewOpenAIVisionLanguage(apiKey, model string, opts ...option.RequestOption) *OpenAIVisionLanguage {
	if model == "" {
		model = oai.ChatModelGPT4oMini
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIVisionLanguage{client: oai.NewClient(reqOpts...), model: model}
}

// DescribeImage implements VisionLanguageClient, captioning image against
// prompt. mimeType is sniffed from the image bytes' standard JPEG/PNG magic
// numbers, defaulting to image/png.
func (c *OpenAIVisionLanguage) DescribeImage(ctx context.Context, image []byte, prompt string) (string, error) {
	dataURL := "data:" + sniffImageMIME(image) + ";base64," + base64.StdEncoding.EncodeToString(image)

	contentParts := []oai.ChatCompletionContentPartUnionParam{
		{OfText: &oai.ChatCompletionContentPartTextParam{Text: prompt}},
		{OfImageURL: &oai.ChatCompletionContentPartImageParam{
			ImageURL: oai.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
		}},
	}

	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: oai.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			{OfUser: &oai.ChatCompletionUserMessageParam{
				Content: oai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: contentParts,
				},
			}},
		},
	})
	if err != nil {
		return "", domain.Wrap(domain.KindTransient, "openai.describe_image", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.Wrap(domain.KindPermanent, "openai.describe_image", errEmptyVisionResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func sniffImageMIME(data []byte) string {
	switch {
	case len(data) >= 8 && data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G':
		return "image/png"
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8:
		return "image/jpeg"
	case len(data) >= 6 && string(data[0:4]) == "GIF8":
		return "image/gif"
	case len(data) >= 12 && string(data[8:12]) == "WEBP":
		return "image/webp"
	default:
		return "image/png"
	}
}
