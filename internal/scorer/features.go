package scorer

import (
	"regexp"
	"strings"
)

// computeFeatures evaluates all 15 scorer features against text. Keyword
// lists are fixed here (SPEC_FULL.md Open Question (a)): they are not part
// of the wire contract, only their aggregate effect is.
func computeFeatures(text string, req Request, tt TokenThresholds) map[string]float64 {
	lower := strings.ToLower(text)

	return map[string]float64{
		"token_count":          tokenCountFeature(text, tt),
		"code_presence":        clamp01(keywordDensity(lower, codeKeywords) + codeFenceBonus(text)),
		"reasoning_markers":    keywordDensity(lower, reasoningKeywords),
		"technical_terms":      keywordDensity(lower, technicalKeywords),
		"creative_markers":     keywordDensity(lower, creativeKeywords),
		"simple_indicators":    simpleIndicatorFeature(lower, req),
		"multi_step_patterns":  multiStepFeature(lower),
		"question_complexity":  questionComplexityFeature(text),
		"imperative_verbs":     leadingImperativeFeature(lower),
		"constraint_count":     keywordDensity(lower, constraintKeywords),
		"output_format":        keywordDensity(lower, outputFormatKeywords),
		"reference_complexity": referenceComplexityFeature(lower),
		"negation_complexity":  keywordDensity(lower, negationKeywords),
		"domain_specificity":   keywordDensity(lower, domainKeywords),
		"agentic_task":         keywordDensity(lower, agenticKeywords),
	}
}

// approxTokens estimates token count as chars/4, the common rule-of-thumb
// ratio for English text used throughout the example pack.
func approxTokens(text string) int {
	return len(text) / 4
}

func tokenCountFeature(text string, tt TokenThresholds) float64 {
	n := approxTokens(text)
	switch {
	case n <= tt.ShortUpper:
		return -1
	case n >= tt.LongLower:
		return 1
	default:
		span := tt.LongLower - tt.ShortUpper
		if span <= 0 {
			return 1
		}
		return -1 + 2*float64(n-tt.ShortUpper)/float64(span)
	}
}

var codeFenceRe = regexp.MustCompile("```")

func codeFenceBonus(text string) float64 {
	if codeFenceRe.MatchString(text) {
		return 0.4
	}
	return 0
}

var (
	codeKeywords = []string{
		"function", "class ", "def ", "import ", "return ", "=>", "{}", ";",
		"algorithm", "compile", "stack trace", "exception", "variable",
	}
	reasoningKeywords = []string{
		"prove", "derive", "theorem", "lemma", "step by step", "because",
		"therefore", "implies", "reasoning", "justify", "logically",
	}
	technicalKeywords = []string{
		"architecture", "protocol", "algorithm", "complexity", "latency",
		"throughput", "distributed", "concurrency", "database", "schema",
	}
	creativeKeywords = []string{
		"poem", "story", "imagine", "write a", "fictional", "narrative",
		"metaphor", "verse",
	}
	simplePrefixes = []string{
		"what is", "who is", "hello", "hi ", "thanks", "thank you",
		"define ", "when is", "where is",
	}
	constraintKeywords = []string{
		"must", "should not", "shall not", "at most", "at least",
		"exactly", "no more than", "required to",
	}
	outputFormatKeywords = []string{
		"json", "table", "markdown", "schema", "yaml", "csv",
	}
	negationKeywords = []string{
		"not ", "no ", "never", "without", "cannot", "isn't", "doesn't",
	}
	domainKeywords = []string{
		"statute", "diagnosis", "clinical", "liability", "valuation",
		"amortization", "jurisdiction", "prescription", "regulatory",
	}
	agenticKeywords = []string{
		"then call", "use the", "tool", "plan and execute", "next step",
		"invoke", "orchestrate", "agent",
	}
)

// keywordDensity counts keyword occurrences and normalizes to [0,1] by an
// empirically chosen saturation point (4 distinct hits reads as "dense").
func keywordDensity(lower string, keywords []string) float64 {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	const saturation = 4.0
	v := float64(hits) / saturation
	return clamp01(v)
}

func simpleIndicatorFeature(lower string, req Request) float64 {
	trimmed := strings.TrimSpace(lower)
	score := 0.0
	for _, p := range simplePrefixes {
		if strings.HasPrefix(trimmed, p) {
			score = 1
			break
		}
	}
	if len(req.Messages) <= 1 && len(trimmed) < 60 {
		score = clamp01(score + 0.4)
	}
	return score
}

var multiStepRe = regexp.MustCompile(`(?m)^\s*(\d+[.)]|[-*])\s`)

func multiStepFeature(lower string) float64 {
	matches := multiStepRe.FindAllStringIndex(lower, -1)
	hits := len(matches)
	for _, w := range []string{"first", "then", "next", "finally", "after that"} {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	const saturation = 5.0
	return clamp01(float64(hits) / saturation)
}

func questionComplexityFeature(text string) float64 {
	count := strings.Count(text, "?")
	if count <= 1 {
		return 0
	}
	const saturation = 4.0
	return clamp01(float64(count) / saturation)
}

var imperativeVerbs = []string{
	"write", "create", "analyze", "compare", "build", "design", "implement",
	"generate", "summarize", "evaluate", "refactor",
}

func leadingImperativeFeature(lower string) float64 {
	trimmed := strings.TrimSpace(lower)
	for _, v := range imperativeVerbs {
		if strings.HasPrefix(trimmed, v) {
			return 1
		}
	}
	return 0
}

var referenceRe = regexp.MustCompile(`https?://|\[\d+\]|\bciteq?\b|\baccording to\b`)

func referenceComplexityFeature(lower string) float64 {
	matches := referenceRe.FindAllStringIndex(lower, -1)
	const saturation = 3.0
	return clamp01(float64(len(matches)) / saturation)
}
