package mistral

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/apkaapna007-a11y/nelson-gpt/internal/config"
)

const maxErrorBodyBytes = 8 * 1024

var ErrMissingAPIKey = errors.New("mistral api key is not configured")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool is an OpenAI-style function declaration.
type Tool struct {
	Type     string          `json:"type"`
	Function json.RawMessage `json:"function"`
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type Source struct {
	URL   string
	Title string
}

type StreamRequest struct {
	Model    string
	Messages []Message
	Tools    []Tool
}

// StreamCallbacks receive one step's events in arrival order. Any callback
// returning an error aborts the stream with that error.
type StreamCallbacks struct {
	OnStart     func() error
	OnText      func(string) error
	OnReasoning func(string) error
	OnSource    func(Source) error
	OnUsage     func(Usage) error
}

type StepResult struct {
	FinishReason string
}

type streamAPIRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
	Stream   bool      `json:"stream"`
}

type streamAPIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type contentChunk struct {
	Type     string         `json:"type"`
	Text     string         `json:"text"`
	Thinking []contentChunk `json:"thinking"`
	URL      string         `json:"url"`
	Title    string         `json:"title"`
}

type streamAPIResponse struct {
	Choices []struct {
		Delta struct {
			Content json.RawMessage `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *streamAPIUsage `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Object  string `json:"object"`
	Message string `json:"message"`
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("mistral returned %d: %s", e.StatusCode, e.Body)
}

func NewClient(cfg config.Config, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return Client{
		apiKey:     strings.TrimSpace(cfg.MistralAPIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.MistralBaseURL), "/"),
		httpClient: httpClient,
	}
}

// StreamChatCompletion runs one completion step and reports why the model
// stopped.
func (c Client) StreamChatCompletion(ctx context.Context, req StreamRequest, callbacks StreamCallbacks) (StepResult, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return StepResult{}, ErrMissingAPIKey
	}
	if strings.TrimSpace(req.Model) == "" {
		return StepResult{}, errors.New("model is required")
	}
	if len(req.Messages) == 0 {
		return StepResult{}, errors.New("messages are required")
	}

	payload, err := json.Marshal(streamAPIRequest{
		Model:    strings.TrimSpace(req.Model),
		Messages: req.Messages,
		Tools:    req.Tools,
		Stream:   true,
	})
	if err != nil {
		return StepResult{}, fmt.Errorf("marshal mistral request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return StepResult{}, fmt.Errorf("build mistral request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return StepResult{}, fmt.Errorf("request mistral: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return StepResult{}, APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if callbacks.OnStart != nil {
		if err := callbacks.OnStart(); err != nil {
			return StepResult{}, err
		}
	}

	var result StepResult
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return result, nil
		}

		var parsed streamAPIResponse
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			continue
		}

		if parsed.Error != nil && strings.TrimSpace(parsed.Error.Message) != "" {
			return result, errors.New(strings.TrimSpace(parsed.Error.Message))
		}
		if parsed.Object == "error" && strings.TrimSpace(parsed.Message) != "" {
			return result, errors.New(strings.TrimSpace(parsed.Message))
		}

		for _, choice := range parsed.Choices {
			if err := dispatchContent(choice.Delta.Content, callbacks); err != nil {
				return result, err
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				result.FinishReason = *choice.FinishReason
			}
		}

		if parsed.Usage != nil && callbacks.OnUsage != nil {
			if err := callbacks.OnUsage(Usage{
				PromptTokens:     parsed.Usage.PromptTokens,
				CompletionTokens: parsed.Usage.CompletionTokens,
				TotalTokens:      parsed.Usage.TotalTokens,
			}); err != nil {
				return result, err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("read mistral stream: %w", err)
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if result.FinishReason == "" {
		return result, errors.New("mistral stream ended before a finish reason was sent")
	}
	return result, nil
}

// Delta content is either a plain string or a list of typed chunks.
func dispatchContent(raw json.RawMessage, callbacks StreamCallbacks) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil
		}
		return emitText(text, callbacks)
	}

	var chunks []contentChunk
	if err := json.Unmarshal(trimmed, &chunks); err != nil {
		return nil
	}
	for _, chunk := range chunks {
		switch chunk.Type {
		case "text":
			if err := emitText(chunk.Text, callbacks); err != nil {
				return err
			}
		case "thinking":
			for _, inner := range chunk.Thinking {
				if inner.Text == "" || callbacks.OnReasoning == nil {
					continue
				}
				if err := callbacks.OnReasoning(inner.Text); err != nil {
					return err
				}
			}
		case "tool_reference":
			if strings.TrimSpace(chunk.URL) == "" || callbacks.OnSource == nil {
				continue
			}
			if err := callbacks.OnSource(Source{URL: strings.TrimSpace(chunk.URL), Title: strings.TrimSpace(chunk.Title)}); err != nil {
				return err
			}
		}
	}
	return nil
}

func emitText(text string, callbacks StreamCallbacks) error {
	if text == "" || callbacks.OnText == nil {
		return nil
	}
	return callbacks.OnText(text)
}
