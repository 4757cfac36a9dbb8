package logging

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "password parameter",
			input:    "host=localhost password=secret123 dbname=sentinel",
			expected: "host=localhost password=[REDACTED] dbname=sentinel",
		},
		{
			name:     "url credentials",
			input:    "postgres://sentinel:s3cret@db:5432/sentinel?sslmode=disable",
			expected: "postgres://[REDACTED]@[REDACTED]/sentinel?sslmode=disable",
		},
		{
			name:     "no credentials",
			input:    "postgres://db:5432/sentinel",
			expected: "postgres://db:5432/sentinel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeConnectionString(tt.input); got != tt.expected {
				t.Errorf("SanitizeConnectionString(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	if got := SanitizeError(nil); got != "" {
		t.Errorf("expected empty string for nil error, got %q", got)
	}

	err := errors.New("dial postgres://sentinel:hunter2@db:5432/x failed; Authorization: Bearer aaa.bbb.ccc")
	got := SanitizeError(err)
	if strings.Contains(got, "hunter2") {
		t.Errorf("password leaked: %q", got)
	}
	if strings.Contains(got, "aaa.bbb.ccc") {
		t.Errorf("token leaked: %q", got)
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"soc-team@example.com", "s***@example.com"},
		{"a@b.io", "a***@b.io"},
		{"not-an-email", RedactedText},
		{"@example.com", RedactedText},
	}

	for _, tt := range tests {
		if got := MaskEmail(tt.input); got != tt.expected {
			t.Errorf("MaskEmail(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}

	masked := MaskEmails([]string{"x@y.com", "z@w.com"})
	if len(masked) != 2 || masked[1] != "z***@w.com" {
		t.Errorf("MaskEmails returned %v", masked)
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("short", 10); got != "short" {
		t.Errorf("expected unchanged string, got %q", got)
	}
	if got := TruncateString("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("expected truncated string, got %q", got)
	}
}

func TestTruncateString_MultibyteBoundary(t *testing.T) {
	// "日本語" is three 3-byte runes; a 4-byte limit lands inside the second.
	got := TruncateString("日本語", 4)
	if got != "日..." {
		t.Errorf("expected cut at rune boundary, got %q", got)
	}
	if !utf8.ValidString(got) {
		t.Errorf("expected valid UTF-8, got %q", got)
	}
}
