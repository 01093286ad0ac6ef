package types

import "strings"

type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
	Neutral  Label = "neutral"
)

// Labels is the closed set of sentiment labels, in canonical order.
var Labels = []Label{Negative, Neutral, Positive}

type Prediction struct {
	Label      Label
	Confidence float64

	// Scores holds the full distribution over canonical labels. Models with
	// a binary head leave the missing label at zero.
	Scores map[Label]float64

	// RawLabel is the label string as reported by the underlying model,
	// before normalization (e.g. "LABEL_1", "POSITIVE").
	RawLabel string
}

// NormalizeLabel maps model-specific label strings onto the canonical label
// set. Unrecognized labels map to neutral.
func NormalizeLabel(raw string) Label {
	l := strings.ToLower(raw)
	switch {
	case strings.Contains(l, "pos") || l == "1" || l == "label_1":
		return Positive
	case strings.Contains(l, "neg") || l == "0" || l == "label_0":
		return Negative
	default:
		return Neutral
	}
}

func ValidLabel(l Label) bool {
	return l == Positive || l == Negative || l == Neutral
}

// ParseLabel is the strict counterpart of NormalizeLabel: it accepts only
// canonical label names, case-insensitively.
func ParseLabel(raw string) (Label, bool) {
	l := Label(strings.ToLower(raw))
	return l, ValidLabel(l)
}

const (
	highConfidenceThreshold   = 0.8
	mediumConfidenceThreshold = 0.6
)

// ConfidenceLevel buckets a confidence score for display.
func ConfidenceLevel(confidence float64) string {
	switch {
	case confidence >= highConfidenceThreshold:
		return "high"
	case confidence >= mediumConfidenceThreshold:
		return "medium"
	default:
		return "low"
	}
}
