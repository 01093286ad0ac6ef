package api

import (
	"encoding/json"

	"sentiment-backend/internal/database"
	"sentiment-backend/pkg/api"
)

func convertModel(m database.Model) api.Model {
	converted := api.Model{
		Id:         m.Id,
		Name:       m.Name,
		Type:       m.Type,
		ExternalId: m.ExternalId,
		Version:    m.Version,
		Status:     m.Status,
		Accuracy:   m.Accuracy,
		Active:     m.Active,
	}
	if m.BaseModelId.Valid {
		baseId := m.BaseModelId.UUID
		converted.BaseModelId = &baseId
	}
	return converted
}

func convertModels(ms []database.Model) []api.Model {
	models := make([]api.Model, 0, len(ms))
	for _, m := range ms {
		models = append(models, convertModel(m))
	}
	return models
}

func convertBatchJob(j database.BatchJob) api.BatchJob {
	job := api.BatchJob{
		Id:             j.Id,
		ModelId:        j.ModelId,
		Status:         j.Status,
		CreationTime:   j.CreationTime,
		TotalTexts:     j.TotalTexts,
		SucceededTexts: j.SucceededTexts,
		FailedTexts:    j.FailedTexts,
	}

	if j.CompletionTime.Valid {
		t := j.CompletionTime.Time
		job.CompletionTime = &t
	}

	if len(j.LabelCounts) > 0 {
		// The column is written by the worker, so a parse failure here
		// means corrupt data; surface the job without the tallies.
		_ = json.Unmarshal(j.LabelCounts, &job.LabelCounts)
	}

	return job
}

func convertBatchJobs(js []database.BatchJob) []api.BatchJob {
	jobs := make([]api.BatchJob, 0, len(js))
	for _, j := range js {
		jobs = append(jobs, convertBatchJob(j))
	}
	return jobs
}

func convertAnalysis(a database.Analysis) api.Analysis {
	return api.Analysis{
		Id:             a.Id,
		ModelId:        a.ModelId,
		Text:           a.Text,
		SentimentLabel: a.SentimentLabel,
		Confidence:     a.Confidence,
		LatencyMs:      a.LatencyMs,
		UserId:         a.UserId,
		CreatedAt:      a.CreatedAt,
	}
}

func convertAnalyses(as []database.Analysis) []api.Analysis {
	analyses := make([]api.Analysis, 0, len(as))
	for _, a := range as {
		analyses = append(analyses, convertAnalysis(a))
	}
	return analyses
}
