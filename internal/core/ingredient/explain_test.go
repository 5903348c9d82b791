package ingredient

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestExplainRendersMarkdown(t *testing.T) {
	gen := &fakeGenerator{content: "```markdown\n- **aspartame**: artificial sweetener\n```"}

	html := NewExplainer(gen).Explain(context.Background(), []string{"aspartame", "lead"})
	if !strings.Contains(html, "<li><strong>aspartame</strong>: artificial sweetener</li>") {
		t.Fatalf("unexpected html %q", html)
	}

	prompt := gen.requests[0].Prompt
	if !strings.Contains(prompt, "aspartame, lead") || !strings.Contains(prompt, "no medical claims") {
		t.Fatalf("unexpected prompt %q", prompt)
	}
	if gen.requests[0].JSONMode || gen.requests[0].Temperature != nil {
		t.Fatal("explanation requests are free-form")
	}
}

func TestExplainNoFlagsPrompt(t *testing.T) {
	gen := &fakeGenerator{content: "Eat a *balanced* diet."}

	html := NewExplainer(gen).Explain(context.Background(), nil)
	if !strings.Contains(html, "<em>balanced</em>") {
		t.Fatalf("unexpected html %q", html)
	}
	if !strings.Contains(gen.requests[0].Prompt, "No harmful ingredients were flagged") {
		t.Fatalf("unexpected prompt %q", gen.requests[0].Prompt)
	}
}

func TestExplainFallbacks(t *testing.T) {
	cases := map[string]*Explainer{
		"error":      NewExplainer(&fakeGenerator{err: errors.New("refused")}),
		"empty":      NewExplainer(&fakeGenerator{content: "   "}),
		"no service": NewExplainer(nil),
	}
	for name, e := range cases {
		if got := e.Explain(context.Background(), []string{"x"}); got != FallbackHTML {
			t.Fatalf("%s: got %q, want fallback", name, got)
		}
	}
}

func TestExplainOmitsRawHTML(t *testing.T) {
	gen := &fakeGenerator{content: "<script>alert(1)</script>\n\nhello"}

	html := NewExplainer(gen).Explain(context.Background(), nil)
	if strings.Contains(html, "<script>") {
		t.Fatalf("raw html must not be rendered: %q", html)
	}
}

func TestFallbackHTMLMatchesRenderer(t *testing.T) {
	got, err := NewExplainer(nil).Render(FallbackMessage)
	if err != nil || got != FallbackHTML {
		t.Fatalf("Render = %q, %v", got, err)
	}
}
