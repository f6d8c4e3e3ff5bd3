package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

type anthropicProvider struct {
	client anthropic.Client
}

func newAnthropicProvider(baseURL, apiKey string) *anthropicProvider {
	opts := []aoption.RequestOption{aoption.WithAPIKey(strings.TrimSpace(apiKey))}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, aoption.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	return &anthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *anthropicProvider) Edit(ctx context.Context, req EditRequest) (EditResult, error) {
	if p == nil {
		return EditResult{}, errors.New("nil provider")
	}
	if strings.TrimSpace(req.Model) == "" {
		return EditResult{}, errors.New("missing model")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(strings.TrimSpace(req.Model)),
		MaxTokens: anthropicMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserPrompt(req))),
		},
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return EditResult{}, fmt.Errorf("anthropic edit: %w", err)
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			reply.WriteString(tb.Text)
		}
	}
	code, message := extractCode(reply.String())
	return EditResult{Code: code, Message: message}, nil
}
