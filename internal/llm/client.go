// Package llm talks to chat-completion providers and adapts them to the
// ranking and answering steps.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Whopus/Repox/internal/config"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"

	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	DefaultOllamaBaseURL    = "http://localhost:11434"
)

// ErrEmptyResponse is returned when a provider answers without content.
var ErrEmptyResponse = errors.New("empty response from model")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompleteOptions selects the model and sampling for one call.
type CompleteOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Completer is the single capability the scorer and answerer need.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts CompleteOptions) (string, error)
}

type Client struct {
	provider   string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// OpenAI-compatible chat completions
type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Anthropic API structures
type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Ollama API structures
type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

func NewClient(cfg config.LLMConfig, timeout time.Duration) (*Client, error) {
	provider := strings.ToLower(cfg.Provider)
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	switch provider {
	case ProviderOpenAI:
		if baseURL == "" {
			baseURL = DefaultOpenAIBaseURL
		}
	case ProviderAnthropic:
		if baseURL == "" || baseURL == DefaultOpenAIBaseURL {
			baseURL = DefaultAnthropicBaseURL
		}
	case ProviderOllama:
		if baseURL == "" || baseURL == DefaultOpenAIBaseURL {
			baseURL = DefaultOllamaBaseURL
		}
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	if provider != ProviderOllama && cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for %s (set api_key in %s or the environment)", provider, config.FileName)
	}

	return &Client{
		provider:   provider,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

// Complete sends one non-streaming chat request and returns the reply text.
func (c *Client) Complete(ctx context.Context, messages []Message, opts CompleteOptions) (string, error) {
	switch c.provider {
	case ProviderAnthropic:
		return c.completeAnthropic(ctx, messages, opts)
	case ProviderOllama:
		return c.completeOllama(ctx, messages, opts)
	default:
		return c.completeOpenAI(ctx, messages, opts)
	}
}

func (c *Client) completeOpenAI(ctx context.Context, messages []Message, opts CompleteOptions) (string, error) {
	body := openAIRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	var response openAIResponse
	if err := c.post(ctx, c.baseURL+"/chat/completions", "OpenAI", headers, body, &response); err != nil {
		return "", err
	}

	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("OpenAI: %w", ErrEmptyResponse)
	}
	return response.Choices[0].Message.Content, nil
}

func (c *Client) completeAnthropic(ctx context.Context, messages []Message, opts CompleteOptions) (string, error) {
	var system []string
	var turns []Message
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	body := anthropicRequest{
		Model:       opts.Model,
		System:      strings.Join(system, "\n\n"),
		Messages:    turns,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}

	var response anthropicResponse
	if err := c.post(ctx, c.baseURL+"/v1/messages", "Anthropic", headers, body, &response); err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("Anthropic: %w", ErrEmptyResponse)
	}
	return text.String(), nil
}

func (c *Client) completeOllama(ctx context.Context, messages []Message, opts CompleteOptions) (string, error) {
	body := ollamaRequest{
		Model:    opts.Model,
		Messages: messages,
		Stream:   false,
		Options: &ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	}

	var response ollamaResponse
	if err := c.post(ctx, c.baseURL+"/api/chat", "Ollama", nil, body, &response); err != nil {
		return "", err
	}

	if response.Message.Content == "" {
		return "", fmt.Errorf("Ollama: %w", ErrEmptyResponse)
	}
	return response.Message.Content, nil
}

func (c *Client) post(ctx context.Context, url, name string, headers map[string]string, payload, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if name == "Ollama" {
			return fmt.Errorf("failed to connect to Ollama: %w (make sure Ollama is running)", err)
		}
		return fmt.Errorf("failed to reach %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s API error %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", name, err)
	}
	return nil
}
