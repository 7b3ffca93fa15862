package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeProvider implements Provider against Anthropic's API. It is used as
// the rerank stage's cross-encoder-style scoring backend and as an
// alternate compose-stage provider.
type ClaudeProvider struct {
	Model     string
	MaxTokens int64
	client    *anthropic.Client
}

var _ Provider = (*ClaudeProvider)(nil)

// NewClaudeProvider resolves the API key from ANTHROPIC_API_KEY and
// constructs the underlying client eagerly so a misconfigured deployment
// fails at startup rather than on first query.
func NewClaudeProvider(model string, maxTokens int64) (*ClaudeProvider, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeProvider{Model: model, MaxTokens: maxTokens, client: &client}, nil
}

// GenerateResponse sends prompt as a single user message, with systemPrompt
// (if any) carried separately via the API's System parameter, mirroring
// convertMessagesToClaude's first-system-message extraction.
func (p *ClaudeProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	model := p.Model
	if val, ok := options["model"].(string); ok && val != "" {
		model = val
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude generation failed: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}
	return out.String(), nil
}
