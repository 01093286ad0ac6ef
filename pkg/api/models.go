package api

import (
	"time"

	"github.com/google/uuid"
)

type Model struct {
	Id          uuid.UUID
	BaseModelId *uuid.UUID
	Name        string
	Type        string
	ExternalId  string
	Version     string
	Status      string
	Accuracy    float64
	Active      bool
}

type AnalyzeRequest struct {
	Text    string     `json:"text"`
	ModelId *uuid.UUID `json:"model_id,omitempty"`
}

type AnalyzeResponse struct {
	AnalysisId     uuid.UUID `json:"analysis_id"`
	ModelId        uuid.UUID `json:"model_id"`
	SentimentLabel string    `json:"sentiment_label"`
	Confidence     float64   `json:"confidence"`
	// ConfidenceLevel buckets Confidence into "high", "medium", or "low".
	ConfidenceLevel string `json:"confidence_level"`
	Scores          map[string]float64
	LatencyMs       float64 `json:"latency_ms"`
	Cached          bool    `json:"cached"`
}

type CompareRequest struct {
	Text     string      `json:"text"`
	ModelIds []uuid.UUID `json:"model_ids,omitempty"`
}

type ModelResult struct {
	ModelId        uuid.UUID `json:"model_id"`
	ModelName      string    `json:"model_name"`
	SentimentLabel string    `json:"sentiment_label"`
	Confidence     float64   `json:"confidence"`
	Scores         map[string]float64
	LatencyMs      float64 `json:"latency_ms"`
	Error          string  `json:"error,omitempty"`
}

type Agreement struct {
	MajorityLabel    string  `json:"majority_label"`
	Unanimous        bool    `json:"unanimous"`
	AgreementRatio   float64 `json:"agreement_ratio"`
	MeanConfidence   float64 `json:"mean_confidence"`
	StddevConfidence float64 `json:"stddev_confidence"`
}

type CompareResponse struct {
	Results   []ModelResult `json:"results"`
	Agreement Agreement     `json:"agreement"`
}

type BatchSubmitRequest struct {
	ModelId uuid.UUID

	UploadId     uuid.UUID
	SourceBucket string
	SourceKey    string
	DestBucket   string
}

type BatchSubmitResponse struct {
	JobId uuid.UUID
}

type BatchJob struct {
	Id      uuid.UUID
	ModelId uuid.UUID
	Status  string

	CreationTime   time.Time
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`

	TotalTexts     int
	SucceededTexts int
	FailedTexts    int

	LabelCounts map[string]int64 `json:"LabelCounts,omitempty"`
}

type Analysis struct {
	Id             uuid.UUID
	ModelId        uuid.UUID
	Text           string
	SentimentLabel string
	Confidence     float64
	LatencyMs      float64
	UserId         string `json:"UserId,omitempty"`
	CreatedAt      time.Time
}

type BatchResultsQuery struct {
	Offset int    `schema:"offset"`
	Limit  int    `schema:"limit"`
	Label  string `schema:"label"`
}

type BatchResultsResponse struct {
	Total   int64
	Results []Analysis
}

type Sample struct {
	Text  string
	Label string
}

type FinetuneRequest struct {
	Name    string
	Samples []Sample
}

type FinetuneResponse struct {
	ModelId uuid.UUID
}

type UploadResponse struct {
	Id uuid.UUID
}

type HealthResponse struct {
	Status      string
	ReadyModels int
	ActiveModel string `json:"ActiveModel,omitempty"`
}
