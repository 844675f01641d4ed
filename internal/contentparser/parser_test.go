package contentparser

import (
	"strings"
	"testing"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello world"},
		{"  hello \n\t world  ", "hello world"},
		{"<p>hello <b>world</b></p>", "hello world"},
		{"<script>alert(1)</script>gm", "gm"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := PlainText(tt.input)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.expected {
				t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseHashIgnoresMarkup(t *testing.T) {
	a, err := Parse("<p>gm  frens</p>")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse("gm frens")
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash != b.Hash {
		t.Errorf("hashes differ: %s vs %s", a.Hash, b.Hash)
	}
	if !strings.HasPrefix(a.Hash, HashPrefix) || len(a.Hash) != len(HashPrefix)+64 {
		t.Errorf("unexpected hash format %q", a.Hash)
	}

	c, _ := Parse("gn frens")
	if c.Hash == a.Hash {
		t.Error("different text produced the same hash")
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("привет", 3); got != "при" {
		t.Errorf("Snippet = %q, want при", got)
	}
	if got := Snippet("abc", 10); got != "abc" {
		t.Errorf("Snippet = %q, want abc", got)
	}
	if got := Snippet("abc", 0); got != "" {
		t.Errorf("Snippet = %q, want empty", got)
	}
}

func TestGuessLanguage(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Привет мир, это тестовый текст", "ru"},
		{"Hello world, this is a test", "en"},
		{"你好世界", "zh"},
		{"", "unknown"},
		{"12345 !!!", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := GuessLanguage(tt.input); got != tt.expected {
				t.Errorf("GuessLanguage(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
