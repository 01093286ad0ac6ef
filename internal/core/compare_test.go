package core_test

import (
	"context"
	"fmt"
	"math"
	"testing"

	"sentiment-backend/internal/core"
	"sentiment-backend/internal/core/types"
	"sentiment-backend/pkg/api"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	label      types.Label
	confidence float64
	err        error
}

func (m *stubModel) Predict(ctx context.Context, text string) (types.Prediction, error) {
	if m.err != nil {
		return types.Prediction{}, m.err
	}
	return types.Prediction{
		Label:      m.label,
		Confidence: m.confidence,
		Scores:     map[types.Label]float64{m.label: m.confidence},
		RawLabel:   string(m.label),
	}, nil
}

func (m *stubModel) Finetune(samples []api.Sample) error { return nil }
func (m *stubModel) Save(dir string) error               { return nil }
func (m *stubModel) Release()                            {}

func TestCompareModels(t *testing.T) {
	entries := []core.CompareEntry{
		{Id: uuid.New(), Name: "a", Model: &stubModel{label: types.Positive, confidence: 0.9}},
		{Id: uuid.New(), Name: "b", Model: &stubModel{label: types.Positive, confidence: 0.7}},
		{Id: uuid.New(), Name: "c", Model: &stubModel{label: types.Negative, confidence: 0.8}},
	}

	res := core.CompareModels(context.Background(), entries, "some text")

	require.Len(t, res.Results, 3)

	// Results come back in request order regardless of completion order.
	for i, entry := range entries {
		assert.Equal(t, entry.Id, res.Results[i].ModelId)
		assert.Equal(t, entry.Name, res.Results[i].ModelName)
	}

	assert.Equal(t, "positive", res.Agreement.MajorityLabel)
	assert.False(t, res.Agreement.Unanimous)
	assert.InDelta(t, 2.0/3.0, res.Agreement.AgreementRatio, 1e-9)
	assert.InDelta(t, 0.8, res.Agreement.MeanConfidence, 1e-9)
	assert.InDelta(t, math.Sqrt(0.02/3.0), res.Agreement.StddevConfidence, 1e-9)
}

func TestCompareModelsUnanimous(t *testing.T) {
	entries := []core.CompareEntry{
		{Id: uuid.New(), Name: "a", Model: &stubModel{label: types.Negative, confidence: 0.6}},
		{Id: uuid.New(), Name: "b", Model: &stubModel{label: types.Negative, confidence: 0.8}},
	}

	res := core.CompareModels(context.Background(), entries, "some text")

	assert.Equal(t, "negative", res.Agreement.MajorityLabel)
	assert.True(t, res.Agreement.Unanimous)
	assert.Equal(t, 1.0, res.Agreement.AgreementRatio)
}

func TestCompareModelsWithFailure(t *testing.T) {
	failing := &stubModel{err: fmt.Errorf("session run error")}
	entries := []core.CompareEntry{
		{Id: uuid.New(), Name: "a", Model: &stubModel{label: types.Positive, confidence: 0.9}},
		{Id: uuid.New(), Name: "broken", Model: failing},
	}

	res := core.CompareModels(context.Background(), entries, "some text")

	require.Len(t, res.Results, 2)
	assert.Empty(t, res.Results[0].Error)
	assert.NotEmpty(t, res.Results[1].Error)

	// Agreement only covers the model that answered.
	assert.Equal(t, "positive", res.Agreement.MajorityLabel)
	assert.True(t, res.Agreement.Unanimous)
	assert.InDelta(t, 0.9, res.Agreement.MeanConfidence, 1e-9)
	assert.Zero(t, res.Agreement.StddevConfidence)
}
