package telegram

import (
	"strings"
	"testing"
)

func TestSplitTextShortPassthrough(t *testing.T) {
	t.Parallel()

	got := splitText("hello", 100, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %q, want [hello]", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	line := strings.Repeat("a", 40)
	text := line + "\n" + line + "\n" + line
	got := splitText(text, 100, "")
	if len(got) != 2 {
		t.Fatalf("got %d chunks: %q", len(got), got)
	}
	// The first chunk ends at a line boundary, not mid-line.
	if got[0] != line+"\n"+line {
		t.Fatalf("first chunk = %q", got[0])
	}
	if got[1] != line {
		t.Fatalf("second chunk = %q", got[1])
	}
}

func TestSplitTextKeepsEveryRune(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 500; i++ {
		b.WriteString("строка ")
	}
	text := b.String()
	chunks := splitText(text, 200, "")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	joined := strings.Join(chunks, "")
	// Whitespace at boundaries may be trimmed, but no word may be lost.
	if strings.ReplaceAll(joined, " ", "") != strings.ReplaceAll(text, " ", "") {
		t.Fatal("chunks lost content")
	}
	for i, c := range chunks {
		if n := len([]rune(c)); n > 200 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
	}
}

func TestSplitTextAvoidsCuttingHTMLTags(t *testing.T) {
	t.Parallel()

	// Arrange a window that would end inside the <a> tag.
	pad := strings.Repeat("x", 90)
	text := pad + `<a href="https://example.org/contest/1">Round</a>` + strings.Repeat("y", 80)
	for _, chunk := range splitText(text, 100, "HTML") {
		if strings.Count(chunk, "<") != strings.Count(chunk, ">") {
			t.Fatalf("chunk cut inside a tag: %q", chunk)
		}
	}
}
