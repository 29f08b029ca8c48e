package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"inkwell/engine/internal/document"
	"inkwell/engine/internal/errinfo"
	"inkwell/engine/internal/llm"
)

type agentLoopConfig struct {
	documentID string
	apiKey     string
	modelID    string
	maxTurns   int
	messages   []llm.Message
	handler    *ToolHandler
}

type agentLoopResult struct {
	finalText     string
	messageID     string
	turnCount     int
	toolCallCount int
	err           *errinfo.ErrorInfo
}

// AgentSendMessage appends the user's message and drives the agent until it
// stops naturally or hits the turn cap. Runs are exclusive per document.
func (e *Engine) AgentSendMessage(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
		Text       string `json:"text"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAgent, "invalid params")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAgent, "empty message")
	}
	doc, errInfo := e.requireDocument(req.DocumentID)
	if errInfo != nil {
		return nil, errInfo
	}
	runCtx, runID, errInfo := e.beginAgentRun(ctx, req.DocumentID)
	if errInfo != nil {
		return nil, errInfo
	}
	defer e.endAgentRun(req.DocumentID, runID)

	apiKey, errInfo := e.anthropicKey()
	if errInfo != nil {
		return nil, errInfo
	}
	cfg, err := e.settings.Load()
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
	}

	userID := fmt.Sprintf("u-%d", e.now().UnixNano())
	if err := e.appendConversation(req.DocumentID, conversationMessage{
		Type:      "user_message",
		MessageID: userID,
		Role:      "user",
		Text:      req.Text,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseAgent, err.Error())
	}

	history, err := e.loadConversation(req.DocumentID)
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseAgent, err.Error())
	}

	result := e.runAgentLoop(runCtx, doc, agentLoopConfig{
		documentID: req.DocumentID,
		apiKey:     apiKey,
		modelID:    cfg.ModelID,
		maxTurns:   cfg.MaxAgentTurns,
		messages:   historyToMessages(history),
		handler:    NewToolHandler(e, doc),
	})
	if result.err != nil {
		if e.notify != nil {
			e.notify("AgentRunFailed", map[string]any{
				"document_id": req.DocumentID,
				"error":       result.err,
			})
		}
		return nil, result.err
	}
	return map[string]any{
		"message_id":      result.messageID,
		"turn_count":      result.turnCount,
		"tool_call_count": result.toolCallCount,
	}, nil
}

// historyToMessages replays the persisted conversation as model input. Only
// text survives across runs; tool traffic is transient within a run. Empty
// entries are dropped because the API rejects empty content blocks.
func historyToMessages(history []conversationMessage) []llm.Message {
	var messages []llm.Message
	for _, entry := range history {
		if strings.TrimSpace(entry.Text) == "" {
			continue
		}
		switch entry.Type {
		case "user_message":
			messages = append(messages, llm.TextMessage("user", entry.Text))
		case "assistant_message":
			messages = append(messages, llm.TextMessage("assistant", entry.Text))
		}
	}
	return messages
}

func (e *Engine) runAgentLoop(ctx context.Context, doc *document.Document, cfg agentLoopConfig) agentLoopResult {
	var result agentLoopResult
	if cfg.maxTurns <= 0 {
		cfg.maxTurns = 10
	}
	messages := append([]llm.Message{}, cfg.messages...)
	startedAt := e.now()
	e.logger.Info("agent.run_start", "document_id", cfg.documentID, "model", cfg.modelID, "max_turns", cfg.maxTurns)

	// The agent's view is resynchronized after the run no matter how it
	// ended; a failed run must not replay stale diffs next time.
	defer func() {
		e.docMu.Lock()
		e.tracker.Capture(doc)
		e.docMu.Unlock()
	}()

	for turn := 0; turn < cfg.maxTurns; turn++ {
		e.docMu.Lock()
		changes := e.tracker.ChangesSince(doc)
		system := buildSystemPrompt(doc, changes)
		e.docMu.Unlock()

		messageID := fmt.Sprintf("a-%d", e.now().UnixNano())
		var streamed strings.Builder
		onDelta := func(delta string) {
			streamed.WriteString(delta)
			if e.notify != nil {
				e.notify("AgentStreamDelta", map[string]any{
					"document_id": cfg.documentID,
					"message_id":  messageID,
					"token_delta": delta,
				})
			}
		}

		e.logger.Info("agent.turn_start", "document_id", cfg.documentID, "turn", turn, "messages", len(messages))
		resp, err := e.streamChatWithRateLimitRetry(ctx, cfg, system, messages, onDelta, turn)
		if err != nil {
			// No visible output means the placeholder the UI created for
			// this message can be dropped; nothing is persisted for it.
			e.logger.Warn("agent.api_error", "document_id", cfg.documentID, "turn", turn, "streamed_bytes", streamed.Len(), "error", err.Error())
			result.err = mapLLMError(errinfo.PhaseAgent, err)
			return result
		}
		result.turnCount = turn + 1

		if text := strings.TrimSpace(resp.Text); text != "" {
			if err := e.appendConversation(cfg.documentID, conversationMessage{
				Type:      "assistant_message",
				MessageID: messageID,
				Role:      "assistant",
				Text:      resp.Text,
				CreatedAt: e.now().UTC().Format(time.RFC3339),
			}); err != nil {
				result.err = errinfo.FileWriteFailed(errinfo.PhaseAgent, err.Error())
				return result
			}
		}

		if len(resp.ToolUses) == 0 || resp.StopReason == llm.StopEndTurn {
			result.finalText = strings.TrimSpace(resp.Text)
			result.messageID = messageID
			if e.notify != nil {
				e.notify("AgentMessageComplete", map[string]any{
					"document_id": cfg.documentID,
					"message_id":  messageID,
				})
			}
			e.logger.Info("agent.run_complete", "document_id", cfg.documentID, "turns", result.turnCount,
				"tool_calls", result.toolCallCount, "elapsed_ms", e.now().Sub(startedAt).Milliseconds())
			return result
		}

		messages = append(messages, assistantTurnMessage(resp))
		results := e.executeToolUses(cfg, resp.ToolUses)
		result.toolCallCount += len(resp.ToolUses)
		messages = append(messages, llm.ToolResultsMessage(results))
	}

	result.err = errinfo.AgentTurnLimit(errinfo.PhaseAgent,
		fmt.Sprintf("agent stopped after %d turns without finishing", cfg.maxTurns))
	e.logger.Warn("agent.turn_limit", "document_id", cfg.documentID, "turns", cfg.maxTurns)
	return result
}

// executeToolUses runs every requested tool concurrently and returns results
// in request order. Tools serialize on the document mutex internally, so
// execution order between them is unspecified but each mutation is atomic.
func (e *Engine) executeToolUses(cfg agentLoopConfig, uses []llm.ToolUse) []llm.ToolResult {
	results := make([]llm.ToolResult, len(uses))
	var wg sync.WaitGroup
	for i, use := range uses {
		wg.Add(1)
		go func(i int, use llm.ToolUse) {
			defer wg.Done()
			if e.notify != nil {
				e.notify("AgentToolExecuting", map[string]any{
					"document_id": cfg.documentID,
					"tool_name":   use.Name,
					"tool_use_id": use.ID,
				})
			}
			started := e.now()
			result := cfg.handler.Execute(use)
			results[i] = result
			e.logger.Info("agent.tool_complete", "document_id", cfg.documentID, "tool", use.Name,
				"is_error", result.IsError, "elapsed_ms", e.now().Sub(started).Milliseconds())
			if e.notify != nil {
				e.notify("AgentToolComplete", map[string]any{
					"document_id": cfg.documentID,
					"tool_name":   use.Name,
					"tool_use_id": use.ID,
					"is_error":    result.IsError,
				})
			}
		}(i, use)
	}
	wg.Wait()
	return results
}

// assistantTurnMessage rebuilds the assistant turn for the follow-up request:
// any text first, then the tool_use blocks exactly as received.
func assistantTurnMessage(resp llm.ChatResponse) llm.Message {
	var blocks []llm.ContentBlock
	if strings.TrimSpace(resp.Text) != "" {
		blocks = append(blocks, llm.ContentBlock{Type: llm.BlockText, Text: resp.Text})
	}
	for _, use := range resp.ToolUses {
		blocks = append(blocks, llm.ContentBlock{
			Type:  llm.BlockToolUse,
			ID:    use.ID,
			Name:  use.Name,
			Input: use.Input,
		})
	}
	return llm.Message{Role: "assistant", Content: blocks}
}

func (e *Engine) streamChatWithRateLimitRetry(
	ctx context.Context,
	cfg agentLoopConfig,
	system string,
	messages []llm.Message,
	onDelta func(string),
	turn int,
) (llm.ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= rateLimitRetryMaxAttempts; attempt++ {
		resp, err := e.client.StreamChat(ctx, cfg.apiKey, cfg.modelID, system, messages, WriterTools, onDelta)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.Is(err, llm.ErrRateLimited) {
			return llm.ChatResponse{}, err
		}
		if attempt == rateLimitRetryMaxAttempts {
			return llm.ChatResponse{}, err
		}
		retryAttempt := attempt + 1
		wait := rateLimitBackoffDuration(retryAttempt)
		e.logger.Warn("agent.rate_limited", "turn", turn, "retry_attempt", retryAttempt,
			"retry_max", rateLimitRetryMaxAttempts, "retry_in_ms", wait.Milliseconds())
		if e.notify != nil {
			e.notify("AgentRateLimitWarning", map[string]any{
				"document_id":   cfg.documentID,
				"retry_attempt": retryAttempt,
				"retry_max":     rateLimitRetryMaxAttempts,
				"wait_ms":       wait.Milliseconds(),
			})
		}
		if err := e.sleep(ctx, wait); err != nil {
			return llm.ChatResponse{}, err
		}
	}
	if lastErr != nil {
		return llm.ChatResponse{}, lastErr
	}
	return llm.ChatResponse{}, errors.New("rate-limit retry failed")
}

func rateLimitBackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	wait := rateLimitRetryBaseDelay * time.Duration(1<<uint(attempt-1))
	if wait > rateLimitRetryMaxDelay {
		return rateLimitRetryMaxDelay
	}
	return wait
}
