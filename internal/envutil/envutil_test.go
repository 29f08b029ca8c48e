package envutil

import (
	"os"
	"testing"
)

func TestParseBool(t *testing.T) {
	truthy := []string{"1", "true", "TRUE", " t ", "yes", "Y", "on"}
	for _, value := range truthy {
		if !ParseBool(value) {
			t.Fatalf("expected %q to parse as true", value)
		}
	}
	falsy := []string{"", "0", "false", "off", "nope"}
	for _, value := range falsy {
		if ParseBool(value) {
			t.Fatalf("expected %q to parse as false", value)
		}
	}
}

func TestInt(t *testing.T) {
	os.Setenv("INKWELL_TEST_INT", "12")
	defer os.Unsetenv("INKWELL_TEST_INT")
	if got := Int("INKWELL_TEST_INT", 5); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
	if got := Int("INKWELL_TEST_INT_MISSING", 5); got != 5 {
		t.Fatalf("expected fallback 5, got %d", got)
	}
	os.Setenv("INKWELL_TEST_INT", "not-a-number")
	if got := Int("INKWELL_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7 on parse failure, got %d", got)
	}
}
