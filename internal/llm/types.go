package llm

import "encoding/json"

// Block content types used in messages.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Stop reasons reported by the model.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// ContentBlock is one element of a message body: text, a tool invocation the
// model requested, or the result of a prior invocation.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Message is a single turn in the conversation sent to the model.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage builds a plain text message for the given role.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// Tool describes a callable tool exposed to the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolUse is a structured tool invocation requested by the model. Input is
// untrusted JSON and must be validated before acting on it.
type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of executing a ToolUse, fed back as a user turn.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// ToolResultsMessage wraps executed tool results into the follow-up user turn
// the model expects after requesting tools.
func ToolResultsMessage(results []ToolResult) Message {
	blocks := make([]ContentBlock, 0, len(results))
	for _, result := range results {
		blocks = append(blocks, ContentBlock{
			Type:      BlockToolResult,
			ToolUseID: result.ToolUseID,
			Content:   result.Content,
			IsError:   result.IsError,
		})
	}
	return Message{Role: "user", Content: blocks}
}

// ChatResponse is the accumulated outcome of one model call.
type ChatResponse struct {
	Text       string    `json:"text"`
	ToolUses   []ToolUse `json:"tool_uses,omitempty"`
	StopReason string    `json:"stop_reason"`
}
