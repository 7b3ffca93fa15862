package llm

import "context"

// OpenAIProvider is a lightweight placeholder backend kept from the
// teacher's provider roster for deployments that configure a model this
// module doesn't yet speak to directly. Unlike the teacher's original, it
// carries no per-model prompt-styling logic — this system has no
// multi-model-debate feature to justify that, so it is a plain
// pass-through stub.
type OpenAIProvider struct{}

func (p *OpenAIProvider) GenerateResponse(_ context.Context, _ string, _ string, _ map[string]interface{}) (string, error) {
	return "", providerError("llm: OpenAIProvider is not wired to a live backend")
}

var _ Provider = (*OpenAIProvider)(nil)
