// Package ai performs direct provider-backed code edits for users who bring their own API key.
// The usual path routes edits through the session channel's server-side agent; this package is
// the offline/local alternative.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/algorave/algorave-client/internal/draftstore"
)

// EditRequest asks a provider to transform the current buffer.
type EditRequest struct {
	Model   string
	Query   string
	Code    string
	History []draftstore.Message
}

// EditResult is the provider's answer. Code is empty when the model replied without a code block.
type EditResult struct {
	Code    string
	Message string
}

// Provider turns one edit request into one result. Implementations are stateless and safe for
// concurrent use.
type Provider interface {
	Edit(ctx context.Context, req EditRequest) (EditResult, error)
}

// NewProvider builds a provider adapter by type. Supported types: "anthropic", "openai", and
// "openai_compatible" (which needs baseURL).
func NewProvider(providerType, baseURL, apiKey string) (Provider, error) {
	providerType = strings.ToLower(strings.TrimSpace(providerType))
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("missing provider api key")
	}
	switch providerType {
	case "anthropic":
		return newAnthropicProvider(baseURL, apiKey), nil
	case "openai", "openai_compatible":
		return newOpenAIProvider(baseURL, apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", providerType)
	}
}

// systemPrompt frames every edit request. The fenced-block contract is what extractCode parses.
const systemPrompt = `You are a live-coding assistant for Strudel, a JavaScript dialect of TidalCycles for making music in the browser.
The user gives you their current pattern code and a request. Reply with the complete updated code in a single fenced code block, followed by a one or two sentence explanation.
Keep the user's structure and naming where possible. Never remove sound unless asked.`

// buildUserPrompt folds the conversation history and current buffer into one user turn.
func buildUserPrompt(req EditRequest) string {
	var b strings.Builder
	for _, m := range req.History {
		role := strings.TrimSpace(m.Role)
		if role == "" {
			role = "user"
		}
		fmt.Fprintf(&b, "[%s] %s\n", role, strings.TrimSpace(m.Content))
	}
	b.WriteString("Current code:\n```\n")
	b.WriteString(req.Code)
	b.WriteString("\n```\n\nRequest: ")
	b.WriteString(strings.TrimSpace(req.Query))
	return b.String()
}

// extractCode pulls the first fenced code block out of a model reply. The text outside the block
// is returned as the explanation. When no block exists the whole reply is the explanation.
func extractCode(reply string) (code, message string) {
	start := strings.Index(reply, "```")
	if start < 0 {
		return "", strings.TrimSpace(reply)
	}
	rest := reply[start+3:]
	// Skip an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", strings.TrimSpace(reply)
	}
	code = strings.TrimRight(rest[:end], "\n")
	message = strings.TrimSpace(reply[:start] + rest[end+3:])
	return code, message
}
