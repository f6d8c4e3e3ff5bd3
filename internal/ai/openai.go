package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"
)

const openAIMaxOutputTokens = 4096

type openAIProvider struct {
	client openai.Client
}

func newOpenAIProvider(baseURL, apiKey string) *openAIProvider {
	opts := []ooption.RequestOption{ooption.WithAPIKey(strings.TrimSpace(apiKey))}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, ooption.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	return &openAIProvider{client: openai.NewClient(opts...)}
}

func (p *openAIProvider) Edit(ctx context.Context, req EditRequest) (EditResult, error) {
	if p == nil {
		return EditResult{}, errors.New("nil provider")
	}
	if strings.TrimSpace(req.Model) == "" {
		return EditResult{}, errors.New("missing model")
	}

	params := oresponses.ResponseNewParams{
		Model:           oshared.ResponsesModel(strings.TrimSpace(req.Model)),
		MaxOutputTokens: openai.Int(openAIMaxOutputTokens),
		Instructions:    openai.String(systemPrompt),
		Input: oresponses.ResponseNewParamsInputUnion{
			OfString: openai.String(buildUserPrompt(req)),
		},
	}

	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return EditResult{}, fmt.Errorf("openai edit: %w", err)
	}

	code, message := extractCode(resp.OutputText())
	return EditResult{Code: code, Message: message}, nil
}
