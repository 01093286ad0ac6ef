package core

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"sentiment-backend/internal/core/types"
	"sentiment-backend/pkg/api"

	"gopkg.in/yaml.v2"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

const lexiconFile = "lexicon.yaml"

const (
	// Negation flips the sign of a valence word but rarely inverts its
	// full strength ("not great" is milder than "terrible").
	negationDampen = 0.74
	negationWindow = 3

	// Weight given to each non-valence token when building the score
	// distribution. Keeps short neutral texts from being classified by
	// a single weak valence hit.
	neutralTokenWeight = 0.3

	maxValence     = 4.0
	finetuneRate   = 0.25
	compoundNorm   = 15.0
	neutralBandLow = 0.05
)

type lexiconData struct {
	Entries      map[string]float64 `yaml:"entries"`
	Negators     []string           `yaml:"negators"`
	Intensifiers map[string]float64 `yaml:"intensifiers"`
}

// LexiconModel scores texts against a valence dictionary with negation and
// intensifier handling. Unlike the transformer models it is cheap, fully
// local, and finetunable by re-weighting entries.
type LexiconModel struct {
	entries      map[string]float64
	negators     map[string]struct{}
	intensifiers map[string]float64
}

func LoadLexiconModel(modelDir string) (Model, error) {
	raw := defaultLexiconYAML
	if modelDir != "" {
		if data, err := os.ReadFile(filepath.Join(modelDir, lexiconFile)); err == nil {
			raw = data
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read lexicon: %w", err)
		}
	}

	var data lexiconData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if len(data.Entries) == 0 {
		return nil, fmt.Errorf("lexicon has no entries")
	}

	negators := make(map[string]struct{}, len(data.Negators))
	for _, n := range data.Negators {
		negators[n] = struct{}{}
	}

	return &LexiconModel{
		entries:      data.Entries,
		negators:     negators,
		intensifiers: data.Intensifiers,
	}, nil
}

func tokenizeWords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !(r == '\'' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9'))
		})
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func (m *LexiconModel) Predict(_ context.Context, text string) (types.Prediction, error) {
	tokens := tokenizeWords(text)
	if len(tokens) == 0 {
		return types.Prediction{}, fmt.Errorf("no scorable tokens in text")
	}

	var posSum, negSum float64
	plain := 0
	for i, tok := range tokens {
		valence, ok := m.entries[tok]
		if !ok {
			if _, isNeg := m.negators[tok]; !isNeg {
				if _, isInt := m.intensifiers[tok]; !isInt {
					plain++
				}
			}
			continue
		}

		for j := i - 1; j >= 0 && j >= i-negationWindow; j-- {
			if boost, ok := m.intensifiers[tokens[j]]; ok {
				valence *= boost
			}
			if _, ok := m.negators[tokens[j]]; ok {
				valence = -valence * negationDampen
			}
		}

		if valence > 0 {
			posSum += valence
		} else {
			negSum += -valence
		}
	}

	neu := float64(plain) * neutralTokenWeight
	total := posSum + negSum + neu
	if total == 0 {
		total = 1
		neu = 1
	}

	scores := map[types.Label]float64{
		types.Positive: posSum / total,
		types.Negative: negSum / total,
		types.Neutral:  neu / total,
	}

	// Compound score decides the label; the distribution above is only
	// reported for comparison views.
	compound := (posSum - negSum) / math.Sqrt((posSum-negSum)*(posSum-negSum)+compoundNorm)

	label := types.Neutral
	switch {
	case compound >= neutralBandLow:
		label = types.Positive
	case compound <= -neutralBandLow:
		label = types.Negative
	}

	confidence := scores[label]
	if confidence < math.Abs(compound) {
		confidence = math.Abs(compound)
	}
	if label == types.Neutral && posSum+negSum == 0 {
		confidence = scores[types.Neutral]
	}

	return types.Prediction{
		Label:      label,
		Confidence: confidence,
		Scores:     scores,
		RawLabel:   string(label),
	}, nil
}

// Finetune nudges entry valences toward the labels observed in samples.
// Tokens that consistently co-occur with a polarity gain weight in that
// direction; neutral samples are ignored.
func (m *LexiconModel) Finetune(samples []api.Sample) error {
	if len(samples) == 0 {
		return fmt.Errorf("no samples provided")
	}

	net := make(map[string]float64)
	for _, s := range samples {
		var target float64
		switch types.NormalizeLabel(s.Label) {
		case types.Positive:
			target = 1
		case types.Negative:
			target = -1
		default:
			continue
		}
		for _, tok := range tokenizeWords(s.Text) {
			if _, isNeg := m.negators[tok]; isNeg {
				continue
			}
			if _, isInt := m.intensifiers[tok]; isInt {
				continue
			}
			net[tok] += target
		}
	}

	for tok, drift := range net {
		w := m.entries[tok] + finetuneRate*drift
		if w > maxValence {
			w = maxValence
		} else if w < -maxValence {
			w = -maxValence
		}
		m.entries[tok] = w
	}
	return nil
}

func (m *LexiconModel) Save(dir string) error {
	negators := make([]string, 0, len(m.negators))
	for n := range m.negators {
		negators = append(negators, n)
	}
	data, err := yaml.Marshal(lexiconData{
		Entries:      m.entries,
		Negators:     negators,
		Intensifiers: m.intensifiers,
	})
	if err != nil {
		return fmt.Errorf("marshal lexicon: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, lexiconFile), data, 0644)
}

func (m *LexiconModel) Release() {}
