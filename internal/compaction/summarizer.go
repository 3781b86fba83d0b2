package compaction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lumenote-ai/notebook-platform/internal/llm"
	"github.com/lumenote-ai/notebook-platform/internal/model"
)

// HTTPSummarizer calls the external summarization service.
//
// Contract: POST {messages} -> 200 {summary, title}; any non-2xx response is
// a hard failure for the workflow.
type HTTPSummarizer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSummarizer creates a summarizer against the given endpoint.
func NewHTTPSummarizer(endpoint string) *HTTPSummarizer {
	return &HTTPSummarizer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type summarizeRequest struct {
	Messages []model.Message `json:"messages"`
}

// Summarize posts the transcript and decodes the result.
func (s *HTTPSummarizer) Summarize(ctx context.Context, msgs []model.Message) (Summary, error) {
	body, err := json.Marshal(summarizeRequest{Messages: msgs})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to marshal transcript: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return Summary{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Summary{}, fmt.Errorf("summarization request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Summary{}, fmt.Errorf("summarization service returned %d", resp.StatusCode)
	}

	var out Summary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Summary{}, fmt.Errorf("failed to decode summarization response: %w", err)
	}
	return out, nil
}

// LLMSummarizer produces the summary and title with a provider model,
// used when no dedicated summarization service is configured.
type LLMSummarizer struct {
	client llm.Client
	model  string
}

// NewLLMSummarizer creates an LLM-backed summarizer.
func NewLLMSummarizer(client llm.Client, modelID string) *LLMSummarizer {
	return &LLMSummarizer{client: client, model: modelID}
}

// Summarize prompts the model for a JSON {summary, title} pair.
func (s *LLMSummarizer) Summarize(ctx context.Context, msgs []model.Message) (Summary, error) {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}

	resp, err := s.client.Complete(ctx, &llm.CompletionRequest{
		Model:     s.model,
		MaxTokens: 1024,
		Messages: []llm.ChatMessage{
			{
				Role: "user",
				Content: "Summarize this conversation so it can continue in a fresh context. " +
					`Respond with JSON only: {"summary": "...", "title": "..."}.` +
					"\n\n" + b.String(),
			},
		},
	})
	if err != nil {
		return Summary{}, err
	}

	content := strings.TrimSpace(resp.Content)
	// Models occasionally fence the JSON.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out Summary
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return Summary{}, fmt.Errorf("failed to parse summarization output: %w", err)
	}
	return out, nil
}
