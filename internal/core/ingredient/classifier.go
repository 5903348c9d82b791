package ingredient

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ingredient-checker/internal/core/ai/provider"
	"ingredient-checker/internal/pkg/common"

	"go.uber.org/zap"
)

// Source 標記結果的來源
type Source string

const (
	SourceAI       Source = "ai"
	SourceOFF      Source = "off"
	SourceFallback Source = "fallback"
)

const toxinReason = "known toxic substance"

var toxinPattern = regexp.MustCompile(`(?i)\b(poison|bleach|antifreeze|cyanide|arsenic|mercury|lead|lye)\b`)

// toxinAbsentPattern 毒物詞後接 "-free" / " free" 表示不含該物質
var toxinAbsentPattern = regexp.MustCompile(`(?i)^[\s-]*free\b`)

// findToxins 回傳片語中實際指稱毒物的詞；"lead-free" 之類的否定用法不算
func findToxins(phrase string) []string {
	var out []string
	for _, loc := range toxinPattern.FindAllStringIndex(phrase, -1) {
		if toxinAbsentPattern.MatchString(phrase[loc[1]:]) {
			continue
		}
		out = append(out, phrase[loc[0]:loc[1]])
	}
	return out
}

// Generator 生成式文字服務
type Generator interface {
	Generate(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

// PhraseProber 對片語做次要的風險查詢
type PhraseProber interface {
	Probe(ctx context.Context, phrases []string) []string
}

// Item 單一成分的分類結果
type Item struct {
	Term    string `json:"term"`
	Harmful bool   `json:"harmful"`
	Reason  string `json:"reason"`
}

// Classification 分類結果；Items 只在 AI 路徑存在
type Classification struct {
	ParsedIngredients []string
	Items             []Item
	Flags             []string
	Source            Source
}

type classifierOutput struct {
	ParsedIngredients []string `json:"parsedIngredients"`
	Items             []Item   `json:"items"`
}

// Classifier 以 AI 分類成分，失敗時改用正規化清單加產品查詢
type Classifier struct {
	generator Generator
	prober    PhraseProber
}

// NewClassifier 創建分類器；generator 或 prober 為 nil 時跳過對應步驟
func NewClassifier(generator Generator, prober PhraseProber) *Classifier {
	return &Classifier{generator: generator, prober: prober}
}

// Classify 永遠回傳可用的結果，不回傳錯誤
func (c *Classifier) Classify(ctx context.Context, raw string) Classification {
	normalized := Normalize(raw)

	out, err := c.classifyWithAI(ctx, normalized)
	if err == nil {
		return finishAI(out, raw)
	}

	common.LogDegraded("ai-to-off", err, zap.Int("text_length", len(normalized)))
	return c.fallback(ctx, raw)
}

func (c *Classifier) classifyWithAI(ctx context.Context, normalized string) (*classifierOutput, error) {
	if c.generator == nil {
		return nil, fmt.Errorf("classifier has no generator")
	}

	resp, err := c.generator.Generate(ctx, &provider.Request{
		Prompt:      buildClassifierPrompt(normalized),
		JSONMode:    true,
		Temperature: provider.Float64(0),
		Validate: func(content string) error {
			_, err := parseClassifierOutput(content)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return parseClassifierOutput(resp.Content)
}

func parseClassifierOutput(content string) (*classifierOutput, error) {
	var out classifierOutput
	if err := common.ParseJSONLenient(content, &out); err != nil {
		return nil, fmt.Errorf("unparseable classifier response: %w", err)
	}
	return &out, nil
}

func (c *Classifier) fallback(ctx context.Context, raw string) Classification {
	parsed := ListForDisplay(raw)

	var flags []string
	if c.prober != nil && len(parsed) > 0 {
		flags = c.prober.Probe(ctx, parsed)
	}

	source := SourceFallback
	if len(flags) > 0 {
		source = SourceOFF
	}
	return Classification{ParsedIngredients: parsed, Flags: flags, Source: source}
}

// finishAI 正規化 AI 輸出並套用毒物強制標記
func finishAI(out *classifierOutput, raw string) Classification {
	parsed := dedupePhrases(out.ParsedIngredients)
	hasParsed := len(parsed) > 0

	var items []Item
	index := make(map[string]int)
	for _, it := range out.Items {
		term := normalizePhrase(it.Term)
		if term == "" {
			continue
		}
		if i, dup := index[term]; dup {
			items[i].Harmful = items[i].Harmful || it.Harmful
			continue
		}
		index[term] = len(items)
		items = append(items, Item{Term: term, Harmful: it.Harmful, Reason: strings.TrimSpace(it.Reason)})
	}

	covered := make(map[string]bool)
	for i := range items {
		toxins := findToxins(items[i].Term)
		if len(toxins) == 0 {
			continue
		}
		if !items[i].Harmful || items[i].Reason == "" {
			items[i].Reason = toxinReason
		}
		items[i].Harmful = true
		for _, t := range toxins {
			covered[strings.ToLower(t)] = true
		}
	}

	candidates := append(append([]string{}, parsed...), dedupePhrases(ListForDisplay(raw))...)
	for _, phrase := range candidates {
		missing := false
		for _, t := range findToxins(phrase) {
			if !covered[strings.ToLower(t)] {
				missing = true
				covered[strings.ToLower(t)] = true
			}
		}
		if !missing {
			continue
		}
		if _, exists := index[phrase]; !exists {
			index[phrase] = len(items)
			items = append(items, Item{Term: phrase, Harmful: true, Reason: toxinReason})
		}
		if hasParsed && !containsPhrase(parsed, phrase) {
			parsed = append(parsed, phrase)
		}
	}

	var flags []string
	for _, it := range items {
		if it.Harmful && !containsPhrase(flags, it.Term) {
			flags = append(flags, it.Term)
		}
	}

	return Classification{ParsedIngredients: parsed, Items: items, Flags: flags, Source: SourceAI}
}

// dedupePhrases 小寫化並移除空白與重複項，保留順序
func dedupePhrases(in []string) []string {
	var out []string
	for _, s := range in {
		p := normalizePhrase(s)
		if p == "" || containsPhrase(out, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func containsPhrase(list []string, p string) bool {
	for _, s := range list {
		if s == p {
			return true
		}
	}
	return false
}

func buildClassifierPrompt(text string) string {
	return fmt.Sprintf(`You are a food-safety assistant.

TASK A: Parse the ingredient text below into a deduplicated list of individual ingredients. Lowercase every entry, trim whitespace, and expand common abbreviations (for example "msg" becomes "monosodium glutamate (msg)").

TASK B: Classify each parsed ingredient as harmful or not, with a reason of at most 20 words.
SAFETY-FIRST RULE: any ingredient that is or contains a known poison or toxin (poison, bleach, antifreeze, cyanide, arsenic, mercury, lead, lye) MUST be marked harmful=true, even when unsure.
Consider these concern categories: artificial sweeteners, artificial colors, preservatives, flavor enhancers, trans fats, high added sugar, common allergens, and industrial chemicals.

Respond with strict JSON only, no markdown, exactly in this shape:
{"parsedIngredients": ["..."], "items": [{"term": "...", "harmful": true, "reason": "..."}]}

Ingredient text:
%s`, text)
}
