package quality

import (
	"regexp"
	"strings"
	"unicode"
)

var wordRE = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Words tokenizes text the same way the reference scorer does: runs of
// letters, digits, and underscore, Unicode-aware.
func Words(text string) []string {
	if text == "" {
		return nil
	}
	matches := wordRE.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

func isDevanagari(r rune) bool {
	return r >= 0x0900 && r <= 0x097F
}

// DevanagariRatio is the fraction of letters in text that fall in the
// Devanagari Unicode block. Text with no letters scores 0.
func DevanagariRatio(text string) float64 {
	letters := 0
	devanagari := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if isDevanagari(r) {
				devanagari++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(devanagari) / float64(letters)
}

// RepeatRatio is the adjacent-duplicate-word rate (case-folded). Fewer
// than two words scores 0.
func RepeatRatio(words []string) float64 {
	if len(words) < 2 {
		return 0
	}
	repeats := 0
	for i := 1; i < len(words); i++ {
		if strings.ToLower(words[i]) == strings.ToLower(words[i-1]) {
			repeats++
		}
	}
	return float64(repeats) / float64(len(words)-1)
}

func uniqueRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[strings.ToLower(w)] = true
	}
	return float64(len(seen)) / float64(len(words))
}

// SegmentScore is the scored transcription segment with its hints.
type SegmentScore struct {
	Score           float64
	WordCount       int
	CharCount       int
	DevanagariRatio float64
	UniqueRatio     float64
	RepeatRatio     float64
	Hints           []string
}

// ScoreSegment computes the weighted transcription segment score (spec.md
// section 4.6): 0.28*density + 0.22*length + 0.22*devanagari + 0.18*unique
// + 0.10*(1-repeat), clamped to [0,1] and rounded to 4 decimals.
func ScoreSegment(text string) SegmentScore {
	stripped := strings.TrimSpace(text)
	words := Words(stripped)
	wordCount := len(words)
	charCount := len([]rune(stripped))

	devanagariRatio := DevanagariRatio(stripped)
	repeatRatio := RepeatRatio(words)
	unique := uniqueRatio(words)

	density := minF(1.0, float64(wordCount)/80.0)
	length := minF(1.0, float64(charCount)/450.0)

	raw := 0.28*density + 0.22*length + 0.22*devanagariRatio + 0.18*unique + 0.10*(1.0-repeatRatio)
	score := round4(Clamp01(raw))

	var hints []string
	if wordCount < 8 {
		hints = append(hints, "Very short segment text")
	}
	if devanagariRatio < 0.45 {
		hints = append(hints, "Low Hindi-script ratio")
	}
	if repeatRatio > 0.20 {
		hints = append(hints, "High repeated-word ratio")
	}
	if unique < 0.35 && wordCount >= 8 {
		hints = append(hints, "Low vocabulary variety")
	}

	return SegmentScore{
		Score:           score,
		WordCount:       wordCount,
		CharCount:       charCount,
		DevanagariRatio: round4(devanagariRatio),
		UniqueRatio:     round4(unique),
		RepeatRatio:     round4(repeatRatio),
		Hints:           hints,
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// SummarizeSegments averages segment scores (4 decimals) and collects the
// 1-based indices and hints of segments below lowThreshold, capped at 10
// hints. An empty input returns (0, nil, nil).
func SummarizeSegments(scores []SegmentScore, lowThreshold float64) (float64, []int, []string) {
	if len(scores) == 0 {
		return 0, nil, nil
	}
	sum := 0.0
	for _, s := range scores {
		sum += s.Score
	}
	avg := round4(sum / float64(len(scores)))

	var lowSegments []int
	var hints []string
	for i, s := range scores {
		if s.Score < lowThreshold {
			lowSegments = append(lowSegments, i+1)
			for _, h := range s.Hints {
				if len(hints) >= 10 {
					break
				}
				hints = append(hints, h)
			}
		}
	}
	if len(hints) > 10 {
		hints = hints[:10]
	}
	return avg, lowSegments, hints
}
