package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"inkwell/engine/internal/errinfo"
	"inkwell/engine/internal/llm"
)

func toolUseResponse(name string, input string) llm.ChatResponse {
	return llm.ChatResponse{
		Text:       "",
		StopReason: llm.StopToolUse,
		ToolUses: []llm.ToolUse{
			{ID: "tu-1", Name: name, Input: json.RawMessage(input)},
		},
	}
}

func TestAgentSendMessageSimpleReply(t *testing.T) {
	eng, fake := newTestEngine(t)
	recorder := &notifyRecorder{}
	eng.SetNotifier(recorder.record)
	id := createDocument(t, eng, "Essay")

	fake.enqueue(fakeStep{resp: llm.ChatResponse{Text: "Happy to help.", StopReason: llm.StopEndTurn}})
	result, errInfo := eng.AgentSendMessage(context.Background(), mustParams(t, map[string]any{
		"document_id": id,
		"text":        "What should I write about?",
	}))
	if errInfo != nil {
		t.Fatalf("send message: %+v", errInfo)
	}
	out := result.(map[string]any)
	if out["turn_count"] != 1 || out["tool_call_count"] != 0 {
		t.Fatalf("unexpected result: %+v", out)
	}
	if recorder.count("AgentStreamDelta") == 0 {
		t.Fatalf("no stream deltas emitted: %v", recorder.events)
	}
	if recorder.count("AgentMessageComplete") != 1 {
		t.Fatalf("expected one completion event: %v", recorder.events)
	}

	conversation, _ := eng.loadConversation(id)
	if len(conversation) != 2 || conversation[1].Role != "assistant" || conversation[1].Text != "Happy to help." {
		t.Fatalf("conversation not persisted: %+v", conversation)
	}
}

func TestAgentSendMessageRejectsEmptyText(t *testing.T) {
	eng, _ := newTestEngine(t)
	id := createDocument(t, eng, "Essay")
	_, errInfo := eng.AgentSendMessage(context.Background(), mustParams(t, map[string]any{
		"document_id": id,
		"text":        "   ",
	}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeValidationFailed {
		t.Fatalf("expected validation failure, got %+v", errInfo)
	}
}

func TestAgentToolUseThenReply(t *testing.T) {
	eng, fake := newTestEngine(t)
	recorder := &notifyRecorder{}
	eng.SetNotifier(recorder.record)
	id := createDocument(t, eng, "Essay")

	fake.enqueue(
		fakeStep{resp: toolUseResponse(ToolUpdateContent, `{"mode":"replace","text":"A fresh draft."}`)},
		fakeStep{resp: llm.ChatResponse{Text: "I replaced the draft.", StopReason: llm.StopEndTurn}},
	)
	result, errInfo := eng.AgentSendMessage(context.Background(), mustParams(t, map[string]any{
		"document_id": id,
		"text":        "Rewrite the draft.",
	}))
	if errInfo != nil {
		t.Fatalf("send message: %+v", errInfo)
	}
	out := result.(map[string]any)
	if out["turn_count"] != 2 || out["tool_call_count"] != 1 {
		t.Fatalf("unexpected result: %+v", out)
	}
	if recorder.count("AgentToolExecuting") != 1 || recorder.count("AgentToolComplete") != 1 {
		t.Fatalf("tool events missing: %v", recorder.events)
	}

	got, _ := eng.DocumentGet(context.Background(), mustParams(t, map[string]any{"document_id": id}))
	if got.(map[string]any)["content"] != "A fresh draft." {
		t.Fatalf("tool mutation not applied: %+v", got)
	}
}

func TestAgentTurnCapTerminatesToolLoop(t *testing.T) {
	eng, fake := newTestEngine(t)
	id := createDocument(t, eng, "Essay")

	// The default response is overridden to always request a tool, so only
	// the cap can end the run.
	fake.defaultResp = toolUseResponse(ToolGetDocument, `{}`)
	_, errInfo := eng.AgentSendMessage(context.Background(), mustParams(t, map[string]any{
		"document_id": id,
		"text":        "Loop forever.",
	}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeAgentTurnLimit {
		t.Fatalf("expected AGENT_TURN_LIMIT_REACHED, got %+v", errInfo)
	}
	if fake.callCount() != 10 {
		t.Fatalf("expected exactly 10 model calls, got %d", fake.callCount())
	}
}

func TestAgentTransportErrorAbortsAndNotifies(t *testing.T) {
	eng, fake := newTestEngine(t)
	recorder := &notifyRecorder{}
	eng.SetNotifier(recorder.record)
	id := createDocument(t, eng, "Essay")

	fake.enqueue(fakeStep{err: llm.ErrUnavailable})
	_, errInfo := eng.AgentSendMessage(context.Background(), mustParams(t, map[string]any{
		"document_id": id,
		"text":        "hello",
	}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeProviderUnavailable {
		t.Fatalf("expected PROVIDER_UNAVAILABLE, got %+v", errInfo)
	}
	if recorder.count("AgentRunFailed") != 1 {
		t.Fatalf("expected failure notification: %v", recorder.events)
	}
	// The failed turn produced no visible content, so nothing assistant-side
	// was persisted.
	conversation, _ := eng.loadConversation(id)
	for _, entry := range conversation {
		if entry.Role == "assistant" {
			t.Fatalf("empty assistant turn persisted: %+v", entry)
		}
	}
}

func TestAgentCredentialErrorByText(t *testing.T) {
	eng, fake := newTestEngine(t)
	id := createDocument(t, eng, "Essay")

	fake.enqueue(fakeStep{err: errors.New("invalid x-api-key header")})
	_, errInfo := eng.AgentSendMessage(context.Background(), mustParams(t, map[string]any{
		"document_id": id,
		"text":        "hello",
	}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeProviderAuthFailed {
		t.Fatalf("expected PROVIDER_AUTH_FAILED, got %+v", errInfo)
	}
}

func TestAgentSnapshotResyncAfterRun(t *testing.T) {
	eng, fake := newTestEngine(t)
	id := createDocument(t, eng, "Essay")

	if _, errInfo := eng.DocumentUpdateContent(context.Background(), mustParams(t, map[string]any{
		"document_id": id,
		"content":     "User edits before the run.",
	})); errInfo != nil {
		t.Fatalf("update content: %+v", errInfo)
	}

	fake.enqueue(fakeStep{resp: llm.ChatResponse{Text: "Noted.", StopReason: llm.StopEndTurn}})
	if _, errInfo := eng.AgentSendMessage(context.Background(), mustParams(t, map[string]any{
		"document_id": id,
		"text":        "anything new?",
	})); errInfo != nil {
		t.Fatalf("send message: %+v", errInfo)
	}
	if !strings.Contains(fake.lastSystem(), "Changes since your last turn") {
		t.Fatalf("user edit not rendered into context:\n%s", fake.lastSystem())
	}

	doc, errInfo := eng.requireDocument(id)
	if errInfo != nil {
		t.Fatalf("require document: %+v", errInfo)
	}
	if changes := eng.tracker.ChangesSince(doc); changes != nil {
		t.Fatalf("snapshot not resynchronized after run: %+v", changes)
	}
}

func TestAgentSnapshotResyncAfterFailure(t *testing.T) {
	eng, fake := newTestEngine(t)
	id := createDocument(t, eng, "Essay")

	if _, errInfo := eng.DocumentUpdateContent(context.Background(), mustParams(t, map[string]any{
		"document_id": id,
		"content":     "Edited again.",
	})); errInfo != nil {
		t.Fatalf("update content: %+v", errInfo)
	}

	fake.enqueue(fakeStep{err: llm.ErrUnavailable})
	if _, errInfo := eng.AgentSendMessage(context.Background(), mustParams(t, map[string]any{
		"document_id": id,
		"text":        "hello",
	})); errInfo == nil {
		t.Fatalf("expected failure")
	}

	doc, errInfo := eng.requireDocument(id)
	if errInfo != nil {
		t.Fatalf("require document: %+v", errInfo)
	}
	if changes := eng.tracker.ChangesSince(doc); changes != nil {
		t.Fatalf("failed run left a stale snapshot: %+v", changes)
	}
}

func TestAgentRateLimitRetries(t *testing.T) {
	eng, fake := newTestEngine(t)
	id := createDocument(t, eng, "Essay")
	eng.sleep = func(ctx context.Context, _ time.Duration) error { return nil }

	fake.enqueue(
		fakeStep{err: llm.ErrRateLimited},
		fakeStep{err: llm.ErrRateLimited},
		fakeStep{resp: llm.ChatResponse{Text: "Recovered.", StopReason: llm.StopEndTurn}},
	)
	result, errInfo := eng.AgentSendMessage(context.Background(), mustParams(t, map[string]any{
		"document_id": id,
		"text":        "hello",
	}))
	if errInfo != nil {
		t.Fatalf("expected retry to recover: %+v", errInfo)
	}
	if result.(map[string]any)["turn_count"] != 1 {
		t.Fatalf("retries should stay within one turn: %+v", result)
	}
	if fake.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", fake.callCount())
	}
}
