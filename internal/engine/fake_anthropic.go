package engine

import (
	"context"
	"sync"

	"inkwell/engine/internal/llm"
)

type fakeStep struct {
	resp llm.ChatResponse
	err  error
}

// fakeAnthropic is a scripted stand-in for the real client. Steps are consumed
// in order; once the script is exhausted it falls back to the default
// response, which lets tests model both fixed exchanges and infinite loops.
type fakeAnthropic struct {
	mu          sync.Mutex
	script      []fakeStep
	defaultResp llm.ChatResponse
	calls       [][]llm.Message
	systems     []string
}

func newFakeAnthropic() *fakeAnthropic {
	return &fakeAnthropic{
		defaultResp: llm.ChatResponse{
			Text:       "This is a canned reply from the fake model.",
			StopReason: llm.StopEndTurn,
		},
	}
}

func (f *fakeAnthropic) enqueue(steps ...fakeStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, steps...)
}

func (f *fakeAnthropic) ValidateKey(ctx context.Context, apiKey string) error {
	return nil
}

func (f *fakeAnthropic) StreamChat(ctx context.Context, apiKey, model, system string, messages []llm.Message, tools []llm.Tool, onDelta func(string)) (llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, append([]llm.Message(nil), messages...))
	f.systems = append(f.systems, system)
	step := fakeStep{resp: f.defaultResp}
	if len(f.script) > 0 {
		step = f.script[0]
		f.script = f.script[1:]
	}
	f.mu.Unlock()

	if step.err != nil {
		return llm.ChatResponse{}, step.err
	}
	if onDelta != nil && step.resp.Text != "" {
		onDelta(step.resp.Text)
	}
	return step.resp, nil
}

func (f *fakeAnthropic) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAnthropic) lastSystem() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.systems) == 0 {
		return ""
	}
	return f.systems[len(f.systems)-1]
}
