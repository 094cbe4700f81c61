package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"steeple/internal/domain"
)

// Provider is a text-completion backend. Implementations must respect the
// context deadline and surface failures as ProviderError; the planner
// never retries beyond its single repair attempt.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Gemini calls the Google generative language REST API.
type Gemini struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// HTTPClient overrides the default client; tests point it at a stub.
	HTTPClient *http.Client
	// BaseURL overrides the API endpoint; tests point it at a local server.
	BaseURL string
}

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	base := g.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, g.Model, g.APIKey)

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", domain.ProviderError{Provider: "gemini", Msg: fmt.Sprintf("encode request: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", domain.ProviderError{Provider: "gemini", Msg: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	client := g.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", domain.ProviderError{Provider: "gemini", Msg: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", domain.ProviderError{Provider: "gemini", Msg: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return "", domain.ProviderError{Provider: "gemini", Msg: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(data), 200))}
	}

	var out geminiResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", domain.ProviderError{Provider: "gemini", Msg: fmt.Sprintf("decode response: %v", err)}
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", domain.ProviderError{Provider: "gemini", Msg: "empty completion"}
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
