package agent

import (
	"strings"
)

// Similarity thresholds for dropping a thought that repeats streamed text.
const (
	containedRatio   = 0.8
	overlapThreshold = 0.9
	observationProbe = 100
)

// normalize removes all whitespace so comparisons ignore formatting.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// observationInThought reports whether thought merely restates observation.
func observationInThought(thought, observation string) bool {
	t, o := normalize(thought), normalize(observation)
	if t == "" || o == "" {
		return false
	}
	if t == o || strings.Contains(t, o) {
		return true
	}
	if runes := []rune(o); len(runes) > observationProbe {
		return strings.HasPrefix(t, string(runes[:observationProbe]))
	}
	return false
}

// duplicatesText reports whether thought repeats text already streamed to
// the user. Empty accumulated text never matches.
func duplicatesText(thought, accumulated string) bool {
	t, a := normalize(thought), normalize(accumulated)
	if t == "" || a == "" {
		return false
	}

	if strings.Contains(t, a) {
		// A thought that extends the text is kept.
		tLen, aLen := len([]rune(t)), len([]rune(a))
		return float64(aLen)/float64(tLen) >= containedRatio
	}
	if strings.Contains(a, t) {
		return true
	}
	return overlap(t, a) >= overlapThreshold
}

// overlap is the share of thought characters that also occur in text,
// relative to the longer of the two.
func overlap(thought, text string) float64 {
	seen := make(map[rune]struct{}, len(text))
	for _, r := range text {
		seen[r] = struct{}{}
	}

	var common, n int
	for _, r := range thought {
		n++
		if _, ok := seen[r]; ok {
			common++
		}
	}
	return float64(common) / float64(max(n, len([]rune(text)), 1))
}
