package ingredient

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"ingredient-checker/internal/core/ai/cache"
	"ingredient-checker/internal/core/ai/provider"
	"ingredient-checker/internal/core/ai/service"
	"ingredient-checker/internal/infrastructure/config"
)

type fakeGenerator struct {
	mu       sync.Mutex
	content  string
	err      error
	requests []*provider.Request
}

func (g *fakeGenerator) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &provider.Response{Content: g.content}, nil
}

type fakeProber struct {
	flags  []string
	called [][]string
}

func (p *fakeProber) Probe(ctx context.Context, phrases []string) []string {
	p.called = append(p.called, phrases)
	return p.flags
}

func TestClassifyUsesAIResult(t *testing.T) {
	gen := &fakeGenerator{content: `{"parsedIngredients":["Sugar","aspartame","sugar"],"items":[{"term":"sugar","harmful":false,"reason":"ok"},{"term":"Aspartame","harmful":true,"reason":"artificial sweetener"}]}`}
	prober := &fakeProber{flags: []string{"sugar"}}

	got := NewClassifier(gen, prober).Classify(context.Background(), "Ingredients: Sugar, Aspartame")

	if got.Source != SourceAI {
		t.Fatalf("source = %s, want ai", got.Source)
	}
	if !reflect.DeepEqual(got.ParsedIngredients, []string{"sugar", "aspartame"}) {
		t.Fatalf("parsed = %q", got.ParsedIngredients)
	}
	if !reflect.DeepEqual(got.Flags, []string{"aspartame"}) {
		t.Fatalf("flags = %q", got.Flags)
	}
	if len(prober.called) != 0 {
		t.Fatal("prober must not run when the AI path succeeds")
	}

	req := gen.requests[0]
	if !req.JSONMode || !req.Deterministic() {
		t.Fatalf("classifier request must be JSON mode with temperature 0: %+v", req)
	}
}

func TestClassifyRecoversEmbeddedJSON(t *testing.T) {
	gen := &fakeGenerator{content: "Sure! Here it is:\n```json\n{\"parsedIngredients\":[\"salt\"],\"items\":[{\"term\":\"salt\",\"harmful\":false,\"reason\":\"fine {really}\"}]}\n```"}

	got := NewClassifier(gen, nil).Classify(context.Background(), "salt")
	if got.Source != SourceAI || !reflect.DeepEqual(got.ParsedIngredients, []string{"salt"}) {
		t.Fatalf("unexpected classification %+v", got)
	}
}

func TestClassifyForcesToxinsHarmful(t *testing.T) {
	gen := &fakeGenerator{content: `{"parsedIngredients":["water","arsenic"],"items":[{"term":"water","harmful":false,"reason":"ok"},{"term":"arsenic","harmful":false,"reason":"trace"}]}`}

	got := NewClassifier(gen, nil).Classify(context.Background(), "water, arsenic")
	if !reflect.DeepEqual(got.Flags, []string{"arsenic"}) {
		t.Fatalf("flags = %q", got.Flags)
	}
	for _, it := range got.Items {
		if it.Term == "arsenic" && (!it.Harmful || it.Reason != toxinReason) {
			t.Fatalf("arsenic not forced harmful: %+v", it)
		}
	}
}

func TestClassifyAddsToxinOmittedByModel(t *testing.T) {
	gen := &fakeGenerator{content: `{"parsedIngredients":["water"],"items":[{"term":"water","harmful":false,"reason":"ok"}]}`}

	got := NewClassifier(gen, nil).Classify(context.Background(), "Water, Arsenic")
	if !reflect.DeepEqual(got.Flags, []string{"arsenic"}) {
		t.Fatalf("flags = %q", got.Flags)
	}
	if !reflect.DeepEqual(got.ParsedIngredients, []string{"water", "arsenic"}) {
		t.Fatalf("parsed = %q", got.ParsedIngredients)
	}
}

func TestClassifyToxinWordBoundary(t *testing.T) {
	gen := &fakeGenerator{content: `{"parsedIngredients":["unleaded flavor","leader extract"],"items":[{"term":"unleaded flavor","harmful":false,"reason":"ok"},{"term":"leader extract","harmful":false,"reason":"ok"}]}`}

	got := NewClassifier(gen, nil).Classify(context.Background(), "unleaded flavor, leader extract")
	if len(got.Flags) != 0 {
		t.Fatalf("expected no flags, got %q", got.Flags)
	}
}

func TestClassifyToxinNegatedByFree(t *testing.T) {
	gen := &fakeGenerator{content: `{"parsedIngredients":["water","lead-free packaging"],"items":[{"term":"water","harmful":false,"reason":"ok"},{"term":"lead-free packaging","harmful":false,"reason":"packaging note"}]}`}

	got := NewClassifier(gen, nil).Classify(context.Background(), "Water, lead-free packaging, mercury free")
	if len(got.Flags) != 0 {
		t.Fatalf("expected no flags for toxin-free phrases, got %q", got.Flags)
	}

	if toxins := findToxins("lead free, lead acetate"); !reflect.DeepEqual(toxins, []string{"lead"}) {
		t.Fatalf("findToxins = %q", toxins)
	}
}

func TestClassifyScenarioSafetyFirstLead(t *testing.T) {
	gen := &fakeGenerator{content: `{"parsedIngredients":["aspartame","monosodium glutamate (msg)","lead"],"items":[{"term":"aspartame","harmful":false,"reason":"approved"},{"term":"monosodium glutamate (msg)","harmful":false,"reason":"approved"},{"term":"lead","harmful":false,"reason":"unsure"}]}`}

	got := NewClassifier(gen, nil).Classify(context.Background(), "aspartame, msg, lead")
	if !reflect.DeepEqual(got.Flags, []string{"lead"}) {
		t.Fatalf("flags = %q", got.Flags)
	}
	if Score(got.Flags) != RiskMedium {
		t.Fatalf("risk = %s, want medium", Score(got.Flags))
	}
}

func TestClassifyFallbackWithoutProbeFlags(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("unreachable")}
	prober := &fakeProber{}

	input := "Sugar, Palm Oil, Lactose"
	got := NewClassifier(gen, prober).Classify(context.Background(), input)

	if got.Source != SourceFallback {
		t.Fatalf("source = %s, want fallback", got.Source)
	}
	if !reflect.DeepEqual(got.ParsedIngredients, ListForDisplay(input)) {
		t.Fatalf("parsed = %q", got.ParsedIngredients)
	}
	if len(got.Flags) != 0 || got.Items != nil {
		t.Fatalf("unexpected flags %q items %+v", got.Flags, got.Items)
	}
	if len(prober.called) != 1 || !reflect.DeepEqual(prober.called[0], ListForDisplay(input)) {
		t.Fatalf("prober should receive the normalized list, got %q", prober.called)
	}
}

func TestClassifyFallbackWithProbeFlags(t *testing.T) {
	gen := &fakeGenerator{content: "not json at all"}
	prober := &fakeProber{flags: []string{"Palm Oil"}}

	got := NewClassifier(gen, prober).Classify(context.Background(), "Sugar, Palm Oil")
	if got.Source != SourceOFF {
		t.Fatalf("source = %s, want off", got.Source)
	}
	if !reflect.DeepEqual(got.Flags, []string{"Palm Oil"}) {
		t.Fatalf("flags = %q", got.Flags)
	}
}

func TestClassifyWithoutGenerator(t *testing.T) {
	got := NewClassifier(nil, nil).Classify(context.Background(), "salt, arsenic")
	if got.Source != SourceFallback || len(got.Flags) != 0 {
		t.Fatalf("unexpected classification %+v", got)
	}
}

// scriptedProvider 依序回傳預設的回應
type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (p *scriptedProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	reply := p.replies[len(p.replies)-1]
	if p.calls < len(p.replies) {
		reply = p.replies[p.calls]
	}
	p.calls++
	return &provider.Response{Content: reply}, nil
}

func (p *scriptedProvider) GetModel() string { return "scripted" }
func (p *scriptedProvider) Close() error     { return nil }

func TestClassifyDoesNotCacheMalformedReply(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		"I cannot answer that in JSON.",
		`{"parsedIngredients":["sugar"],"items":[{"term":"sugar","harmful":false,"reason":"ok"}]}`,
	}}
	store := cache.NewManager(config.CacheConfig{Enabled: true, MaxSize: 10, TTL: time.Hour})
	t.Cleanup(func() { _ = store.Close() })
	classifier := NewClassifier(service.New(p, store), nil)

	first := classifier.Classify(context.Background(), "Sugar")
	if first.Source != SourceFallback {
		t.Fatalf("first source = %s, want fallback", first.Source)
	}

	second := classifier.Classify(context.Background(), "Sugar")
	if second.Source != SourceAI {
		t.Fatalf("second source = %s, want ai", second.Source)
	}

	third := classifier.Classify(context.Background(), "Sugar")
	if third.Source != SourceAI {
		t.Fatalf("third source = %s, want ai", third.Source)
	}
	if p.calls != 2 {
		t.Fatalf("expected the valid reply to be served from cache, provider calls = %d", p.calls)
	}
}
