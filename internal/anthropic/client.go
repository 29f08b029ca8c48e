package anthropic

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
	"time"

	"inkwell/engine/internal/egress"
	"inkwell/engine/internal/llm"
)

const defaultBaseURL = "https://api.anthropic.com"
const defaultVersion = "2023-06-01"
const defaultMaxTokens = 4096

// Client implements the Anthropic Messages API with SSE streaming and tool use.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient() *Client {
	transport := egress.NewAllowlistRoundTripper(http.DefaultTransport, []string{"api.anthropic.com"})
	return &Client{
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout:   120 * time.Second,
			Transport: transport,
		},
	}
}

func (c *Client) ValidateKey(ctx context.Context, apiKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", defaultVersion)
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, llm.ErrEgressBlocked) {
			return llm.ErrEgressBlocked
		}
		return err
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("validation failed: %s", resp.Status)
	}
	return nil
}

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []llm.Message `json:"messages"`
	Stream    bool          `json:"stream"`
	Tools     []llm.Tool    `json:"tools,omitempty"`
}

type streamEvent struct {
	Type         string        `json:"type"`
	ContentBlock *blockStart   `json:"content_block,omitempty"`
	Delta        *blockDelta   `json:"delta,omitempty"`
	Message      *messageInfo  `json:"message,omitempty"`
	Error        *apiErrorInfo `json:"error,omitempty"`
}

type blockStart struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type blockDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type messageInfo struct {
	StopReason string `json:"stop_reason,omitempty"`
}

type apiErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// toolUseState accumulates one tool_use block while its input JSON streams in.
type toolUseState struct {
	id    string
	name  string
	input strings.Builder
}

// StreamChat sends the conversation to the Messages API with streaming enabled
// and accumulates text and tool_use blocks. onDelta is invoked for each text
// fragment as it arrives; it may be nil.
func (c *Client) StreamChat(ctx context.Context, apiKey, model, system string, messages []llm.Message, tools []llm.Tool, onDelta func(string)) (llm.ChatResponse, error) {
	if strings.TrimSpace(apiKey) == "" {
		return llm.ChatResponse{}, llm.ErrNoAPIKey
	}
	payload := messagesRequest{
		Model:     model,
		MaxTokens: defaultMaxTokens,
		System:    system,
		Messages:  messages,
		Stream:    true,
		Tools:     tools,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return llm.ChatResponse{}, err
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", defaultVersion)
	req.Header.Set("content-type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, llm.ErrEgressBlocked) {
			return llm.ChatResponse{}, llm.ErrEgressBlocked
		}
		return llm.ChatResponse{}, err
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		return llm.ChatResponse{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody, _ := io.ReadAll(resp.Body)
		return llm.ChatResponse{}, fmt.Errorf("anthropic error: %s - %s", resp.Status, extractErrorMessage(errorBody))
	}
	return c.consumeStream(resp.Body, onDelta)
}

func (c *Client) consumeStream(body io.Reader, onDelta func(string)) (llm.ChatResponse, error) {
	var text strings.Builder
	var toolUses []llm.ToolUse
	var current *toolUseState
	stopReason := llm.StopEndTurn

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			continue
		}
		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		switch event.Type {
		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == llm.BlockToolUse {
				current = &toolUseState{id: event.ContentBlock.ID, name: event.ContentBlock.Name}
			}
		case "content_block_delta":
			if event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case "text_delta":
				text.WriteString(event.Delta.Text)
				if onDelta != nil && event.Delta.Text != "" {
					onDelta(event.Delta.Text)
				}
			case "input_json_delta":
				if current != nil {
					current.input.WriteString(event.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			if current != nil {
				input := strings.TrimSpace(current.input.String())
				if input == "" {
					input = "{}"
				}
				if !json.Valid([]byte(input)) {
					input = "{}"
				}
				toolUses = append(toolUses, llm.ToolUse{
					ID:    current.id,
					Name:  current.name,
					Input: json.RawMessage(input),
				})
				current = nil
			}
		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				stopReason = event.Delta.StopReason
			}
		case "message_stop":
			if event.Message != nil && event.Message.StopReason != "" {
				stopReason = event.Message.StopReason
			}
		case "error":
			if event.Error != nil {
				return llm.ChatResponse{}, fmt.Errorf("%s: %s", event.Error.Type, event.Error.Message)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return llm.ChatResponse{}, err
	}
	if len(toolUses) > 0 && stopReason == llm.StopEndTurn {
		stopReason = llm.StopToolUse
	}
	return llm.ChatResponse{Text: text.String(), ToolUses: toolUses, StopReason: stopReason}, nil
}

func statusError(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return llm.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return llm.ErrRateLimited
	case status >= 500:
		return llm.ErrUnavailable
	default:
		return nil
	}
}

func extractErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return string(body)
}
