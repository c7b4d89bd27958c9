// Package summarize talks to an OpenAI-compatible chat-completions endpoint
// to produce short narrative digests. Every failure here is soft: callers
// are expected to fall back to a deterministic plain-text rendering.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	maxCompletionTokens = 1024
)

type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func NewClient(apiKey, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *Client) Available() bool {
	return c.apiKey != ""
}

// SummarizeSiteDigest produces a short narrative summary of one source's
// top items. Each line is "title (author, N replies)" or similar.
func (c *Client) SummarizeSiteDigest(ctx context.Context, site string, lines []string) (string, error) {
	if !c.Available() {
		return "", fmt.Errorf("summarization not configured")
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("nothing to summarize for %s", site)
	}

	prompt := fmt.Sprintf(
		"以下是 %s 今日的热门讨论列表。用中文写一段 3-5 句的综述,概括大家在聊什么,不要逐条复述:\n\n%s",
		site, strings.Join(lines, "\n"))

	return c.complete(ctx, prompt)
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body := map[string]interface{}{
		"model":                 c.model,
		"max_completion_tokens": maxCompletionTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	slog.Debug("Summarization request starting", "model", c.model)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("Summarization API error", "status", resp.StatusCode)
		return "", fmt.Errorf("API error (status %d)", resp.StatusCode)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}

	choice := result.Choices[0]
	if choice.FinishReason == "length" {
		slog.Warn("Summary truncated by token limit", "model", c.model)
	}

	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty completion")
	}
	return content, nil
}
