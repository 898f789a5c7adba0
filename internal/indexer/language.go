package indexer

import "unicode"

// scriptClass is the coarse script bucket classifySegment assigns to a
// segment; real language codes come from the STT provider. voteLanguage uses
// only the segment's weight, not its class (§4.6 L2).
type scriptClass string

const (
	scriptCJK   scriptClass = "cjk"
	scriptLatin scriptClass = "latin"
	scriptOther scriptClass = "other"
)

// classifySegment buckets one transcript segment's text by script, counting
// CJK runes as whole "tokens" (no word boundaries) and Latin-script text by
// whitespace-delimited tokens, per §4.6's CJK-aware scoring rule.
func classifySegment(text string) (class scriptClass, weight int) {
	cjkRunes := 0
	latinRunes := 0
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r), unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r), unicode.Is(unicode.Hangul, r):
			cjkRunes++
		case unicode.IsLetter(r):
			latinRunes++
		}
	}
	if cjkRunes == 0 && latinRunes == 0 {
		return scriptOther, 0
	}
	if cjkRunes > latinRunes {
		return scriptCJK, cjkRunes
	}
	return scriptLatin, tokenCount(text)
}

func tokenCount(text string) int {
	count := 0
	inToken := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inToken = false
			continue
		}
		if !inToken {
			count++
			inToken = true
		}
	}
	return count
}

// sampleVote is one STT sample contributed to the majority vote: the
// provider's reported language/confidence plus the text it recognized.
type sampleVote struct {
	language   string
	confidence float64
	text       string
}

// voteLanguage picks the majority language across up to K sampled segments,
// breaking ties first by summed classifySegment weight and then by total
// reported confidence; the returned confidence is the winner's average. If
// no sample reports a language, it returns the first sample's values (§4.6).
func voteLanguage(samples []sampleVote, k int) (string, float64) {
	if len(samples) == 0 {
		return "", 0
	}
	if k > 0 && k < len(samples) {
		samples = samples[:k]
	}

	counts := map[string]int{}
	confidence := map[string]float64{}
	weight := map[string]int{}
	for _, s := range samples {
		if s.language == "" {
			continue
		}
		counts[s.language]++
		confidence[s.language] += s.confidence
		_, w := classifySegment(s.text)
		weight[s.language] += w
	}

	var best string
	for lang, n := range counts {
		if best == "" {
			best = lang
			continue
		}
		switch {
		case n > counts[best]:
			best = lang
		case n == counts[best] && weight[lang] > weight[best]:
			best = lang
		case n == counts[best] && weight[lang] == weight[best] && confidence[lang] > confidence[best]:
			best = lang
		}
	}
	if best == "" {
		return samples[0].language, samples[0].confidence
	}
	avgConfidence := confidence[best] / float64(counts[best])
	return best, avgConfidence
}
