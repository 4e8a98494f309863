package preprocess

import (
	"html"
	"regexp"
	"strings"
)

// Preprocessor strips boilerplate from raw Korean news text and normalizes
// punctuation and whitespace so downstream embedding sees clean prose.
// All methods are pure functions of their input.
type Preprocessor struct {
	patterns []noisePattern
}

type noisePattern struct {
	re   *regexp.Regexp
	name string
}

// Report describes what Analyze removed, without exposing regex internals.
type Report struct {
	OriginalLength  int
	ProcessedLength int
	ReductionRatio  float64
	RemovedPatterns []string
}

// Noise pattern order is significant: reporter lines are removed before the
// generic bracket tags they would otherwise partially match.
var noisePatterns = []struct{ expr, name string }{
	// 기자 정보
	{`[가-힣]{2,4}\s*기자\s*[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`, "기자 이메일"},
	{`[가-힣]{2,4}\s*기자\s*\([^)]+\)`, "기자 정보"},
	{`[가-힣]{2,4}\s*특파원`, "특파원"},
	// 뉴스 태그
	{`\[[가-힣A-Za-z0-9\s]+뉴스\]`, "뉴스 태그"},
	{`\[[가-힣]+\s*=\s*[가-힣]+\s*기자\]`, "기자 태그"},
	{`\(서울=[가-힣]+\)`, "지역 태그"},
	{`\(종합\d*\)`, "종합 태그"},
	{`\(상보\)`, "상보 태그"},
	{`\(속보\)`, "속보 태그"},
	// 저작권 문구
	{`무단\s*(전재|복제|배포).*?금지`, "저작권 문구"},
	{`저작권.*?[가-힣]+에\s*있습니다`, "저작권 문구"},
	{`ⓒ.*$`, "저작권 기호"},
	{`©.*$`, "저작권 기호"},
	// 관련 기사 링크
	{`[▶▷►→]\s*관련.*$`, "관련기사"},
	{`[▶▷►→]\s*[가-힣]+.*$`, "관련링크"},
	{`\[관련기사\].*$`, "관련기사"},
	// 광고/홍보 문구
	{`자세한\s*내용은.*?확인`, "홍보 문구"},
	{`문의\s*:?\s*\d{2,4}[-\s]?\d{3,4}[-\s]?\d{4}`, "연락처"},
	// SNS 공유
	{`페이스북.*?공유`, "SNS 공유"},
	{`트위터.*?공유`, "SNS 공유"},
	{`카카오.*?공유`, "SNS 공유"},
}

var (
	quoteSingleRe = regexp.MustCompile("[‘’`]")
	quoteDoubleRe = regexp.MustCompile(`[“”„]`)
	hyphenRe      = regexp.MustCompile(`[‐‑‒–—―]`)
	ellipsisRe    = regexp.MustCompile(`[…⋯]`)
	manyDotsRe    = regexp.MustCompile(`\.{4,}`)
	unicodeSpRe   = regexp.MustCompile(`[\x{00a0}\x{2000}-\x{200b}\x{3000}]`)
	spaceTabRe    = regexp.MustCompile(`[ \t]+`)
	newlinesRe    = regexp.MustCompile(`\n{3,}`)
)

// New compiles the noise patterns once; the returned Preprocessor is safe for
// concurrent use.
func New() *Preprocessor {
	compiled := make([]noisePattern, 0, len(noisePatterns))
	for _, p := range noisePatterns {
		compiled = append(compiled, noisePattern{
			re:   regexp.MustCompile(`(?im)` + p.expr),
			name: p.name,
		})
	}
	return &Preprocessor{patterns: compiled}
}

// Normalize cleans one raw text. Stage order matters: entities are decoded
// before pattern matching, and patterns are removed before whitespace
// normalization since removal leaves new whitespace runs behind.
func (p *Preprocessor) Normalize(raw string) string {
	text, _ := p.run(raw)
	return text
}

// NormalizeBatch cleans several texts, preserving order.
func (p *Preprocessor) NormalizeBatch(raws []string) []string {
	out := make([]string, len(raws))
	for i, raw := range raws {
		out[i] = p.Normalize(raw)
	}
	return out
}

// Analyze reports which noise categories fired alongside length statistics,
// letting tests verify removal without asserting exact regex behavior.
func (p *Preprocessor) Analyze(raw string) Report {
	processed, removed := p.run(raw)
	origLen := len([]rune(raw))
	procLen := len([]rune(processed))
	ratio := 0.0
	if origLen > 0 {
		ratio = 1 - float64(procLen)/float64(origLen)
	}
	return Report{
		OriginalLength:  origLen,
		ProcessedLength: procLen,
		ReductionRatio:  ratio,
		RemovedPatterns: removed,
	}
}

func (p *Preprocessor) run(raw string) (string, []string) {
	if raw == "" {
		return "", nil
	}
	text := html.UnescapeString(raw)

	var removed []string
	for _, pat := range p.patterns {
		if pat.re.MatchString(text) {
			removed = append(removed, pat.name)
			text = pat.re.ReplaceAllString(text, "")
		}
	}

	text = normalizeSpecialChars(text)
	text = normalizeWhitespace(text)
	return strings.TrimSpace(text), removed
}

func normalizeSpecialChars(text string) string {
	text = quoteSingleRe.ReplaceAllString(text, "'")
	text = quoteDoubleRe.ReplaceAllString(text, `"`)
	text = hyphenRe.ReplaceAllString(text, "-")
	text = ellipsisRe.ReplaceAllString(text, "...")
	text = manyDotsRe.ReplaceAllString(text, "...")
	text = unicodeSpRe.ReplaceAllString(text, " ")
	return text
}

func normalizeWhitespace(text string) string {
	text = spaceTabRe.ReplaceAllString(text, " ")
	text = newlinesRe.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}
