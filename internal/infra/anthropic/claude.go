package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voznote/internal/application"
	"voznote/internal/domain"
	"voznote/internal/infra"
)

type ClaudeClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	retry      infra.RetryConfig
}

func NewClaudeClient(apiKey, model string) *ClaudeClient {
	return NewClaudeClientWithURL(apiKey, model, "https://api.anthropic.com/v1")
}

func NewClaudeClientWithURL(apiKey, model, baseURL string) *ClaudeClient {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &ClaudeClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		model:      model,
		retry:      infra.DefaultRetryConfig(),
	}
}

func (c *ClaudeClient) SetRetryConfig(cfg infra.RetryConfig) {
	c.retry = cfg
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Summarize collapses every failure into a summarization error.
func (c *ClaudeClient) Summarize(ctx context.Context, transcription string) (string, error) {
	reqBody := request{
		Model:     c.model,
		MaxTokens: 2048,
		Messages: []message{
			{Role: "user", Content: application.SummaryPrompt(transcription)},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	result, err := infra.Do(ctx, c.retry, func() (response, error) {
		var result response

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(bodyBytes))
		if err != nil {
			return result, fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return result, infra.TransportError("claude", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			var apiErr errorResponse
			_ = json.Unmarshal(respBody, &apiErr)
			kind := infra.ClassifyHTTPStatus(resp.StatusCode, apiErr.Error.Type)
			return result, domain.NewError(kind, "", fmt.Errorf("claude API error %d: %s", resp.StatusCode, apiErr.Error.Message))
		}

		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return result, domain.NewError(domain.KindConnection, "", fmt.Errorf("decoding response: %w", err))
		}

		return result, nil
	})

	if err != nil {
		return "", domain.NewError(domain.KindSummarization, "", err)
	}

	var b strings.Builder
	for _, block := range result.Content {
		b.WriteString(block.Text)
	}
	if text := strings.TrimSpace(b.String()); text != "" {
		return text, nil
	}
	return application.SummaryFallback, nil
}
