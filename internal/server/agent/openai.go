package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/anonchat/internal/common"
	"github.com/dmitrijs2005/anonchat/internal/logging"
)

// OpenAI talks to any server implementing the OpenAI chat completions wire
// format (OpenAI, OpenRouter, vLLM, Ollama, llama.cpp and the like).
type OpenAI struct {
	httpClient   *http.Client
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	pseudo       *logging.Pseudonymizer
}

type Config struct {
	// Endpoint is the API base URL, e.g. https://api.openai.com/v1.
	Endpoint     string
	Model        string
	APIKey       string
	SystemPrompt string
	Timeout      time.Duration
}

func NewOpenAI(cfg Config, pseudo *logging.Pseudonymizer) *OpenAI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAI{
		httpClient:   &http.Client{Timeout: timeout},
		endpoint:     strings.TrimRight(cfg.Endpoint, "/") + "/chat/completions",
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		pseudo:       pseudo,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	// User lets the provider tell users apart without learning who they are.
	User string `json:"user,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (o *OpenAI) Ask(ctx context.Context, userID int64, text string) (string, error) {
	req := chatRequest{Model: o.model, User: o.pseudo.UserID(userID)}
	if o.systemPrompt != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: o.systemPrompt})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: text})

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %w", common.ErrAgentUnavailable, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %w", common.ErrAgentUnavailable, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	httpResponse, err := o.httpClient.Do(httpRequest)
	if err != nil {
		return "", fmt.Errorf("%w: sending request: %w", common.ErrAgentUnavailable, err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s", common.ErrAgentUnavailable, readError(httpResponse))
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %w", common.ErrAgentUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", common.ErrAgentUnavailable)
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply", common.ErrAgentUnavailable)
	}
	return reply, nil
}

func readError(httpResponse *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError errorResponse
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return fmt.Sprintf("status %d: %s: %s", httpResponse.StatusCode, wireError.Error.Type, wireError.Error.Message)
	}
	return fmt.Sprintf("status %d", httpResponse.StatusCode)
}
