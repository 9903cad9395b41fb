package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("TRIAGEPIPE_TEST_BOOL", "yes")
	if !ParseBoolEnv("TRIAGEPIPE_TEST_BOOL", false) {
		t.Error("expected 'yes' to parse as true")
	}
	t.Setenv("TRIAGEPIPE_TEST_BOOL", "off")
	if ParseBoolEnv("TRIAGEPIPE_TEST_BOOL", true) {
		t.Error("expected 'off' to parse as false")
	}
	t.Setenv("TRIAGEPIPE_TEST_BOOL", "maybe")
	if !ParseBoolEnv("TRIAGEPIPE_TEST_BOOL", true) {
		t.Error("expected invalid value to return default")
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("TRIAGEPIPE_TEST_INT", "12")
	if got := ParseIntEnv("TRIAGEPIPE_TEST_INT", 5); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
	t.Setenv("TRIAGEPIPE_TEST_INT", "not-a-number")
	if got := ParseIntEnv("TRIAGEPIPE_TEST_INT", 5); got != 5 {
		t.Errorf("expected default 5, got %d", got)
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("hello", 3); got != "hel" {
		t.Errorf("expected 'hel', got %q", got)
	}
	if got := TruncateString("hi", 10); got != "hi" {
		t.Errorf("expected 'hi', got %q", got)
	}
	if got := TruncateString("hi", 0); got != "hi" {
		t.Errorf("expected limit 0 to be a no-op, got %q", got)
	}
}
