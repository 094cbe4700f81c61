package qa

import (
	"context"
	"encoding/json"
	"strings"

	"steeple/internal/domain"
	"steeple/internal/llm"
	"steeple/internal/repo"
)

// LLMComposer phrases catalog results with the model instead of the
// built-in templates. Failures surface as ProviderError; there is no
// fallback to the heuristic composer once selected.
func LLMComposer(p llm.Provider) func(ctx context.Context, question string, calls []domain.Call, results [][]repo.CatalogRow) (string, error) {
	return func(ctx context.Context, question string, calls []domain.Call, results [][]repo.CatalogRow) (string, error) {
		data, err := json.Marshal(results)
		if err != nil {
			return "", domain.ProviderError{Provider: "llm", Msg: "encode catalog results: " + err.Error()}
		}
		var b strings.Builder
		b.WriteString("Answer the question in one or two plain sentences using only this data.\n")
		b.WriteString("Question: " + question + "\n")
		b.WriteString("Data: " + string(data) + "\n")
		answer, err := p.Complete(ctx, b.String())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(answer), nil
	}
}
