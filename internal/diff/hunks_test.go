package diff

import (
	"strings"
	"testing"
)

func TestHunksBasic(t *testing.T) {
	hunks := Hunks("a\nb\nc\n", "a\nB\nc\n")
	if len(hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(hunks))
	}
	var added, removed, context int
	for _, line := range hunks[0].Lines {
		switch line.Type {
		case LineAdded:
			added++
		case LineRemoved:
			removed++
		case LineContext:
			context++
		}
	}
	if added != 1 || removed != 1 || context != 2 {
		t.Fatalf("unexpected line mix: added=%d removed=%d context=%d", added, removed, context)
	}
}

func TestHunksLineNumbers(t *testing.T) {
	hunks := Hunks("a\nb\n", "a\nb\nc\n")
	lines := hunks[0].Lines
	last := lines[len(lines)-1]
	if last.Type != LineAdded || last.NewLine != 3 || last.Text != "c" {
		t.Fatalf("unexpected trailing line: %+v", last)
	}
}

func TestHunksWithLimit(t *testing.T) {
	big := strings.Repeat("line\n", 100)
	if _, truncated := HunksWithLimit(big, big, 50); !truncated {
		t.Fatalf("expected truncation for oversized input")
	}
	if hunks, truncated := HunksWithLimit("a\n", "b\n", 50); truncated || len(hunks) != 1 {
		t.Fatalf("expected full diff for small input")
	}
}
