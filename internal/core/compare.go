package core

import (
	"context"
	"math"
	"time"

	"sentiment-backend/internal/core/types"
	"sentiment-backend/internal/core/utils"
	"sentiment-backend/pkg/api"

	"github.com/google/uuid"
)

const compareParallelism = 4

type CompareEntry struct {
	Id    uuid.UUID
	Name  string
	Model Model
}

// CompareModels runs the same text through every entry concurrently and
// summarizes how much the models agree. Entries that fail are reported in
// their result row; agreement is computed over the successful ones only.
func CompareModels(ctx context.Context, entries []CompareEntry, text string) api.CompareResponse {
	queue := make(chan CompareEntry, len(entries))
	for _, entry := range entries {
		queue <- entry
	}
	close(queue)

	completed := make(chan utils.CompletedTask[api.ModelResult], len(entries))
	utils.RunInPool(func(entry CompareEntry) (api.ModelResult, error) {
		result := api.ModelResult{ModelId: entry.Id, ModelName: entry.Name}

		start := time.Now()
		pred, err := entry.Model.Predict(ctx, text)
		result.LatencyMs = float64(time.Since(start).Microseconds()) / 1000

		if err != nil {
			result.Error = err.Error()
			return result, nil
		}

		result.SentimentLabel = string(pred.Label)
		result.Confidence = pred.Confidence
		result.Scores = make(map[string]float64, len(pred.Scores))
		for label, score := range pred.Scores {
			result.Scores[string(label)] = score
		}
		return result, nil
	}, queue, completed, compareParallelism)

	results := make([]api.ModelResult, 0, len(entries))
	for done := range completed {
		results = append(results, done.Result)
	}

	// Restore request order; pool completion order is arbitrary.
	byId := make(map[uuid.UUID]api.ModelResult, len(results))
	for _, r := range results {
		byId[r.ModelId] = r
	}
	ordered := make([]api.ModelResult, 0, len(entries))
	for _, entry := range entries {
		ordered = append(ordered, byId[entry.Id])
	}

	return api.CompareResponse{
		Results:   ordered,
		Agreement: computeAgreement(ordered),
	}
}

func computeAgreement(results []api.ModelResult) api.Agreement {
	counts := make(map[string]int)
	var confidenceSum float64
	valid := 0

	for _, r := range results {
		if r.Error != "" {
			continue
		}
		counts[r.SentimentLabel]++
		confidenceSum += r.Confidence
		valid++
	}

	if valid == 0 {
		return api.Agreement{MajorityLabel: string(types.Neutral)}
	}

	majority, majorityCount := "", 0
	for label, n := range counts {
		if n > majorityCount || (n == majorityCount && label < majority) {
			majority, majorityCount = label, n
		}
	}

	mean := confidenceSum / float64(valid)
	var variance float64
	for _, r := range results {
		if r.Error != "" {
			continue
		}
		variance += (r.Confidence - mean) * (r.Confidence - mean)
	}

	return api.Agreement{
		MajorityLabel:    majority,
		Unanimous:        majorityCount == valid,
		AgreementRatio:   float64(majorityCount) / float64(valid),
		MeanConfidence:   mean,
		StddevConfidence: math.Sqrt(variance / float64(valid)),
	}
}
