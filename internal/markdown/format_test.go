package markdown

import (
	"strings"
	"testing"
)

func TestFormatBold(t *testing.T) {
	got := Format("Hello **world**")
	if got != "Hello <strong>world</strong>" {
		t.Fatalf("Format() = %q", got)
	}
}

func TestFormatItalicDoesNotRematchBold(t *testing.T) {
	got := Format("**bold** and *italic*")
	if got != "<strong>bold</strong> and <em>italic</em>" {
		t.Fatalf("Format() = %q", got)
	}
}

func TestFormatInlineCode(t *testing.T) {
	got := Format("run `go test` now")
	if got != "run <code>go test</code> now" {
		t.Fatalf("Format() = %q", got)
	}
}

func TestFormatLineBreaks(t *testing.T) {
	got := Format("first\nsecond\r\nthird")
	if got != "first<br>second<br>third" {
		t.Fatalf("Format() = %q", got)
	}
}

func TestFormatMentions(t *testing.T) {
	got := Format("@avery please review")
	if got != `<span class="mention">@avery</span> please review` {
		t.Fatalf("Format() = %q", got)
	}
}

func TestFormatEscapesHTMLBeforeSubstitution(t *testing.T) {
	got := Format(`<script>alert("x")</script> **bold**`)
	if strings.Contains(got, "<script>") {
		t.Fatalf("Format() left raw HTML in output: %q", got)
	}
	if !strings.Contains(got, "<strong>bold</strong>") {
		t.Fatalf("Format() dropped bold markup: %q", got)
	}
}

func TestFormatIsDeterministic(t *testing.T) {
	input := "Hi @team, **please** check `fmt.Errorf`\n*thanks*"
	first := Format(input)
	second := Format(input)
	if first != second {
		t.Fatalf("Format() not deterministic: %q vs %q", first, second)
	}
}

func TestFormatLeavesUnterminatedDelimitersAlone(t *testing.T) {
	got := Format("2 * 3 equals 6")
	if got != "2 * 3 equals 6" {
		t.Fatalf("Format() = %q", got)
	}
}

func TestMentions(t *testing.T) {
	got := Mentions("@avery ping @blake and @avery again")
	if len(got) != 2 || got[0] != "avery" || got[1] != "blake" {
		t.Fatalf("Mentions() = %v", got)
	}
}

func TestMentionsEmpty(t *testing.T) {
	if got := Mentions("no mentions here"); got != nil {
		t.Fatalf("Mentions() = %v, want nil", got)
	}
}
