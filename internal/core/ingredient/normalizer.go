// Package ingredient 實作成分文字的正規化、分類、風險評分與說明產生。
package ingredient

import (
	"regexp"
	"strings"
)

var (
	headerPattern     = regexp.MustCompile(`(?i)^\s*ingredients?[ \t]*(?:[:\-]|\r?\n)\s*`)
	disclaimerPattern = regexp.MustCompile(`(?i)\bcontains\s+\d+(?:\.\d+)?\s*%[^:]*:\s*`)
	bulletPattern     = regexp.MustCompile(`[·•●▪◦∙]`)
	spacePattern      = regexp.MustCompile(`\s+`)
	segmentPattern    = regexp.MustCompile(`[,;\n]+`)
	leadingAndPattern = regexp.MustCompile(`(?i)^and\s+`)
)

// Normalize 移除標頭與百分比聲明、把項目符號換成空白並壓縮空白。
// 重複套用到不再變化為止，因此結果再次正規化不會改變。
// 第一輪之後每次變化都會讓字串變短，迴圈必定結束。
func Normalize(raw string) string {
	s := normalizeOnce(raw)
	for {
		next := normalizeOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func normalizeOnce(s string) string {
	s = headerPattern.ReplaceAllString(s, "")
	s = disclaimerPattern.ReplaceAllString(s, "")
	s = bulletPattern.ReplaceAllString(s, " ")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ListForDisplay 將文字切成有序的成分片語；保留原大小寫，重複項（不分大小寫）只留第一個
func ListForDisplay(raw string) []string {
	normalized := Normalize(raw)
	if normalized == "" {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	for _, segment := range segmentPattern.Split(normalized, -1) {
		phrase := cleanSegment(segment)
		if phrase == "" {
			continue
		}
		key := strings.ToLower(phrase)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, phrase)
	}
	return out
}

func cleanSegment(segment string) string {
	s := strings.TrimSpace(segment)
	for {
		next := leadingAndPattern.ReplaceAllString(s, "")
		next = strings.TrimSpace(strings.TrimSuffix(next, "."))
		if next == s {
			return s
		}
		s = next
	}
}

// normalizePhrase 小寫、壓縮空白，用於比對與去重
func normalizePhrase(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
