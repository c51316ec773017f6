// Package quality implements the deterministic quality scorer (C6): OCR
// page scoring and transcription segment scoring, including the ordered
// guard rules, recalibration, and document/segment summaries.
package quality

import (
	"image"
	"math"
	"regexp"
	"strings"
)

// Clamp01 bounds x to [0, 1].
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

// OCRWeights are the per-metric weights for the OCR page score. They must
// sum to 1 (callers should renormalize after any override).
type OCRWeights struct {
	CharConf     float64
	Density      float64
	Contrast     float64
	BlurQuality  float64
	NoiseQuality float64
}

// DefaultOCRWeights are the default weights from spec.md section 4.6.
var DefaultOCRWeights = OCRWeights{
	CharConf:     0.34,
	Density:      0.12,
	Contrast:     0.20,
	BlurQuality:  0.18,
	NoiseQuality: 0.16,
}

// Sum returns the sum of all weight components.
func (w OCRWeights) Sum() float64 {
	return w.CharConf + w.Density + w.Contrast + w.BlurQuality + w.NoiseQuality
}

// Normalized returns w scaled so its components sum to 1. If the sum is
// <= 0, the defaults are returned.
func (w OCRWeights) Normalized() OCRWeights {
	total := w.Sum()
	if total <= 0 {
		return DefaultOCRWeights
	}
	return OCRWeights{
		CharConf:     w.CharConf / total,
		Density:      w.Density / total,
		Contrast:     w.Contrast / total,
		BlurQuality:  w.BlurQuality / total,
		NoiseQuality: w.NoiseQuality / total,
	}
}

// OCRGuards are the named threshold bundle consulted by ApplyGuardRules.
type OCRGuards struct {
	CleanTextMinChars        int
	CleanTextGarbageMax      float64
	CleanTextCharConfMin     float64
	CleanTextFloor           float64
	HintSuppressDensityMin   float64
	CleanProxyDensityMin     float64
	CleanProxyFloor          float64
	SparseCleanDensityMax    float64
	SparseCleanBonus         float64
	DenseCleanBonus          float64
	DenseCleanCharConfMin    float64
	DenseCleanGarbageMax     float64
	DenseCleanDensityMin     float64
	DenseBlurDensityMin      float64
	DenseBlurMin             float64
	DenseBlurPenalty         float64
	DenseBlurPenaltyNoiseMin float64
	LowThreshold             float64
}

// DefaultOCRGuards are the default guard thresholds from spec.md section 4.6.
var DefaultOCRGuards = OCRGuards{
	CleanTextMinChars:        80,
	CleanTextGarbageMax:      0.12,
	CleanTextCharConfMin:     0.78,
	CleanTextFloor:           0.65,
	HintSuppressDensityMin:   0.35,
	CleanProxyDensityMin:     0.04,
	CleanProxyFloor:          0.62,
	SparseCleanDensityMax:    0.25,
	SparseCleanBonus:         0.08,
	DenseCleanBonus:          0.08,
	DenseCleanCharConfMin:    0.90,
	DenseCleanGarbageMax:     0.05,
	DenseCleanDensityMin:     0.15,
	DenseBlurDensityMin:      0.70,
	DenseBlurMin:             0.80,
	DenseBlurPenalty:         0.10,
	DenseBlurPenaltyNoiseMin: 0.08,
	LowThreshold:             0.65,
}

// noiseCharRE matches characters outside {A-Za-z0-9, Devanagari, whitespace,
// common punctuation} for the garbage-ratio metric.
var noiseCharRE = regexp.MustCompile(`[^a-zA-Z0-9\x{0900}-\x{097F}\s.,;:!?()"\-]`)

// GarbageRatio is the fraction of characters not in the allowed set.
// Empty text scores 1.0 (all garbage).
func GarbageRatio(text string) float64 {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return 1.0
	}
	runes := []rune(clean)
	noisy := len(noiseCharRE.FindAllString(clean, -1))
	if len(runes) == 0 {
		return 1.0
	}
	return float64(noisy) / float64(len(runes))
}

// CharConfProxy stands in for OCR-engine confidence when unavailable.
func CharConfProxy(text string) float64 {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return 0
	}
	return Clamp01(1.0 - GarbageRatio(clean)*1.5)
}

// TextDensityScore estimates whether OCR output is proportionate to the
// page's pixel area.
func TextDensityScore(text string, bounds image.Rectangle) float64 {
	chars := len([]rune(strings.TrimSpace(text)))
	w := bounds.Dx()
	h := bounds.Dy()
	area := w * h
	if area <= 0 {
		area = 1
	}
	density := float64(chars) / float64(area)
	return Clamp01(density * 8000.0)
}

// ContrastScore is stddev(grayscale_pixels) / 64, clamped to [0,1].
func ContrastScore(img image.Image) float64 {
	mean, std := grayscaleMeanStd(img)
	_ = mean
	return Clamp01(std / 64.0)
}

// BlurScore applies a 3x3 edge-detection kernel (PIL FIND_EDGES
// equivalent) to the grayscale image, then inverts the mean edge
// magnitude: higher BlurScore means more blurry.
func BlurScore(img image.Image) float64 {
	edgeMean := edgeFilterMean(img)
	sharpness := Clamp01(edgeMean / 32.0)
	return Clamp01(1.0 - sharpness)
}

func grayscaleAt(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	// Rec. 601 luma, matching PIL's "L" conversion closely enough for a
	// deterministic heuristic (not used for display).
	return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
}

func grayscaleMeanStd(img image.Image) (mean, std float64) {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n <= 0 {
		return 0, 0
	}
	sum := 0.0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += grayscaleAt(img, x, y)
		}
	}
	mean = sum / float64(n)
	variance := 0.0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			d := grayscaleAt(img, x, y) - mean
			variance += d * d
		}
	}
	variance /= float64(n)
	return mean, math.Sqrt(variance)
}

// edgeKernel is PIL's ImageFilter.FIND_EDGES 3x3 kernel.
var edgeKernel = [3][3]float64{
	{-1, -1, -1},
	{-1, 8, -1},
	{-1, -1, -1},
}

func edgeFilterMean(img image.Image) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	// Precompute grayscale plane once.
	gray := make([][]float64, h)
	for y := 0; y < h; y++ {
		gray[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			gray[y][x] = grayscaleAt(img, b.Min.X+x, b.Min.Y+y)
		}
	}

	sum := 0.0
	count := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			acc := 0.0
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					acc += gray[y+ky][x+kx] * edgeKernel[ky+1][kx+1]
				}
			}
			if acc < 0 {
				acc = -acc
			}
			if acc > 255 {
				acc = 255
			}
			sum += acc
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Metrics holds the five rounded [0,1] OCR page metrics.
type Metrics struct {
	CharConfProxy     float64
	ContrastScore     float64
	BlurScore         float64
	TextDensityScore  float64
	GarbageRatio      float64
}

// ScoreFromMetrics computes the weighted score (spec.md section 4.6),
// rounded to 2 decimals.
func ScoreFromMetrics(m Metrics, w OCRWeights) float64 {
	raw := w.CharConf*Clamp01(m.CharConfProxy) +
		w.Density*Clamp01(m.TextDensityScore) +
		w.Contrast*Clamp01(m.ContrastScore) +
		w.BlurQuality*Clamp01(1.0-m.BlurScore) +
		w.NoiseQuality*Clamp01(1.0-m.GarbageRatio)
	return round2(Clamp01(raw))
}

// ApplyGuardRules runs the five ordered guard rules against the score,
// carrying the running adjusted score (spec.md section 4.6).
func ApplyGuardRules(score float64, m Metrics, hints []string, text string, g OCRGuards) (float64, []string) {
	clean := strings.TrimSpace(text)
	adjusted := score
	out := append([]string(nil), hints...)

	isCleanText := len([]rune(clean)) >= g.CleanTextMinChars &&
		m.GarbageRatio <= g.CleanTextGarbageMax &&
		m.CharConfProxy >= g.CleanTextCharConfMin
	if isCleanText {
		adjusted = math.Max(adjusted, g.CleanTextFloor)
		if m.TextDensityScore >= g.HintSuppressDensityMin {
			filtered := out[:0:0]
			for _, h := range out {
				if h != "Image appears blurry" && h != "Low contrast detected" {
					filtered = append(filtered, h)
				}
			}
			out = filtered
		}
	}

	cleanProxy := m.CharConfProxy >= g.CleanTextCharConfMin &&
		m.GarbageRatio <= g.CleanTextGarbageMax &&
		m.TextDensityScore >= g.CleanProxyDensityMin
	if cleanProxy {
		adjusted = math.Max(adjusted, g.CleanProxyFloor)
	}

	sparseClean := cleanProxy && m.TextDensityScore <= g.SparseCleanDensityMax
	if sparseClean {
		adjusted += g.SparseCleanBonus
	}

	denseClean := m.CharConfProxy >= g.DenseCleanCharConfMin &&
		m.GarbageRatio <= g.DenseCleanGarbageMax &&
		m.TextDensityScore >= g.DenseCleanDensityMin
	if denseClean {
		adjusted += g.DenseCleanBonus
	}

	if m.TextDensityScore >= g.DenseBlurDensityMin &&
		m.BlurScore >= g.DenseBlurMin &&
		m.GarbageRatio >= g.DenseBlurPenaltyNoiseMin &&
		!denseClean {
		adjusted -= g.DenseBlurPenalty
	}

	return round2(Clamp01(adjusted)), out
}

// ScorePage computes the full OCR page score: the five metrics, the
// weighted score, the pre-guard hints, and the guard-adjusted score and
// hint list. text is the OCR'd page text, img the source page image.
func ScorePage(text string, img image.Image, weights OCRWeights, guards OCRGuards) (float64, Metrics, []string) {
	conf := CharConfProxy(text)
	contrast := ContrastScore(img)
	blur := BlurScore(img)
	density := TextDensityScore(text, img.Bounds())
	noise := GarbageRatio(text)

	var hints []string
	if blur > 0.60 {
		hints = append(hints, "Image appears blurry")
	}
	if contrast < 0.40 {
		hints = append(hints, "Low contrast detected")
	}
	if density < 0.20 {
		hints = append(hints, "Very little readable text found")
	}
	if noise > 0.25 {
		hints = append(hints, "OCR output appears noisy")
	}

	metrics := Metrics{
		CharConfProxy:    round2(conf),
		ContrastScore:    round2(contrast),
		BlurScore:        round2(blur),
		TextDensityScore: round2(density),
		GarbageRatio:     round2(noise),
	}

	score := ScoreFromMetrics(metrics, weights)
	return ApplyGuardRules(score, metrics, hints, text, guards)
}

// SummarizeDocumentQuality averages per-page scores (2 decimals) and
// lists the 1-based indices of pages below lowThreshold. An empty input
// returns (0.0, nil).
func SummarizeDocumentQuality(pageScores []float64, lowThreshold float64) (float64, []int) {
	if len(pageScores) == 0 {
		return 0.0, nil
	}
	sum := 0.0
	for _, s := range pageScores {
		sum += s
	}
	avg := round2(sum / float64(len(pageScores)))

	var low []int
	for i, s := range pageScores {
		if s < lowThreshold {
			low = append(low, i+1)
		}
	}
	return avg, low
}

// RecalibrationSample is one labeled sample for weight recalibration.
type RecalibrationSample struct {
	Metrics Metrics
	Target  float64
}

// RecalibrateWeights grid-searches small additive deltas per weight
// (step 0.05 over [-0.10, 0.10]), renormalizes, and picks the vector
// minimizing mean absolute error over samples. Returns the defaults and
// MAE 0 if no sample is valid.
func RecalibrateWeights(samples []RecalibrationSample) (OCRWeights, float64) {
	if len(samples) == 0 {
		return DefaultOCRWeights, 0.0
	}

	const step = 0.05
	const spread = 0.10
	var deltas []float64
	for d := -spread; d <= spread+1e-9; d += step {
		deltas = append(deltas, math.Round(d*10000)/10000)
	}

	best := DefaultOCRWeights
	bestMAE := math.Inf(1)

	for _, dCC := range deltas {
		for _, dTD := range deltas {
			for _, dCT := range deltas {
				for _, dBQ := range deltas {
					for _, dNQ := range deltas {
						cand := OCRWeights{
							CharConf:     math.Max(0, DefaultOCRWeights.CharConf+dCC),
							Density:      math.Max(0, DefaultOCRWeights.Density+dTD),
							Contrast:     math.Max(0, DefaultOCRWeights.Contrast+dCT),
							BlurQuality:  math.Max(0, DefaultOCRWeights.BlurQuality+dBQ),
							NoiseQuality: math.Max(0, DefaultOCRWeights.NoiseQuality+dNQ),
						}
						total := cand.Sum()
						if total <= 0 {
							continue
						}
						cand = cand.Normalized()

						errSum := 0.0
						count := 0
						for _, s := range samples {
							pred := ScoreFromMetrics(s.Metrics, cand)
							errSum += math.Abs(pred - s.Target)
							count++
						}
						if count == 0 {
							continue
						}
						mae := errSum / float64(count)
						if mae < bestMAE {
							bestMAE = mae
							best = cand
						}
					}
				}
			}
		}
	}
	if math.IsInf(bestMAE, 1) {
		return DefaultOCRWeights, 0.0
	}
	return best, round4(bestMAE)
}
