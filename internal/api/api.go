package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sentiment-backend/internal/cache"
	"sentiment-backend/internal/core"
	"sentiment-backend/internal/core/types"
	"sentiment-backend/internal/database"
	"sentiment-backend/internal/messaging"
	"sentiment-backend/internal/storage"
	"sentiment-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxUploadBytes = 100 * 1024 * 1024

type BackendService struct {
	db        *gorm.DB
	storage   storage.Provider
	publisher messaging.Publisher
	engine    *core.ModelEngine
	cache     cache.ResultCache

	uploadBucket  string
	resultsBucket string
}

func NewBackendService(db *gorm.DB, store storage.Provider, publisher messaging.Publisher, engine *core.ModelEngine, resultCache cache.ResultCache, uploadBucket, resultsBucket string) *BackendService {
	return &BackendService{
		db:            db,
		storage:       store,
		publisher:     publisher,
		engine:        engine,
		cache:         resultCache,
		uploadBucket:  uploadBucket,
		resultsBucket: resultsBucket,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(s.GetHealth))
	r.Route("/analyze", func(r chi.Router) {
		r.Post("/", RestHandler(s.Analyze))
		r.Route("/batch", func(r chi.Router) {
			r.Post("/", RestHandler(s.SubmitBatchJob))
			r.Get("/", RestHandler(s.ListBatchJobs))
			r.Get("/{job_id}", RestHandler(s.GetBatchJob))
			r.Get("/{job_id}/results", RestHandler(s.GetBatchResults))
		})
	})
	r.Route("/models", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListModels))
		r.Post("/compare", RestHandler(s.CompareModels))
		r.Route("/{model_id}", func(r chi.Router) {
			r.Get("/", RestHandler(s.GetModel))
			r.Post("/activate", RestHandler(s.ActivateModel))
			r.Post("/finetune", RestHandler(s.FinetuneModel))
		})
	})
	r.Post("/uploads", s.UploadFile)
}

func (s *BackendService) GetHealth(r *http.Request) (any, error) {
	ctx := r.Context()

	var ready int64
	if err := s.db.WithContext(ctx).Model(&database.Model{}).Where("status = ?", database.ModelReady).Count(&ready).Error; err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error counting models")
	}

	res := api.HealthResponse{Status: "ok", ReadyModels: int(ready)}

	var active database.Model
	if err := s.db.WithContext(ctx).First(&active, "active = ?", true).Error; err == nil {
		res.ActiveModel = active.Name
	}

	return res, nil
}

func (s *BackendService) getModelRecord(r *http.Request, modelId uuid.UUID) (database.Model, error) {
	var model database.Model
	if err := s.db.WithContext(r.Context()).First(&model, "id = ?", modelId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Model{}, CodedErrorf(http.StatusNotFound, "model not found")
		}
		slog.Error("error getting model", "model_id", modelId, "error", err)
		return database.Model{}, CodedErrorf(http.StatusInternalServerError, "error retrieving model record")
	}
	return model, nil
}

func (s *BackendService) resolveModel(r *http.Request, modelId *uuid.UUID) (database.Model, error) {
	if modelId != nil {
		return s.getModelRecord(r, *modelId)
	}

	var model database.Model
	if err := s.db.WithContext(r.Context()).First(&model, "active = ?", true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Model{}, CodedErrorf(http.StatusUnprocessableEntity, "no model_id provided and no active model configured")
		}
		slog.Error("error getting active model", "error", err)
		return database.Model{}, CodedErrorf(http.StatusInternalServerError, "error retrieving active model")
	}
	return model, nil
}

func (s *BackendService) Analyze(r *http.Request) (any, error) {
	req, err := ParseRequest[api.AnalyzeRequest](r)
	if err != nil {
		return nil, err
	}

	text, err := core.SanitizeText(req.Text)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid text: %v", err)
	}

	model, err := s.resolveModel(r, req.ModelId)
	if err != nil {
		return nil, err
	}
	if model.Status != database.ModelReady {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "model is not ready: model has status %s", model.Status)
	}

	ctx := r.Context()

	cacheKey := cache.Key(model.Id, text)
	cached := false
	pred, err := s.cache.Get(ctx, cacheKey)
	if err == nil {
		cached = true
	} else if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("result cache lookup failed", "error", err)
	}

	start := time.Now()
	if !cached {
		loaded, err := s.engine.LoadModel(ctx, model.Id, core.ParseModelType(model.Type), model.ArtifactPrefix)
		if err != nil {
			slog.Error("error loading model", "model_id", model.Id, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "error loading model")
		}

		pred, err = loaded.Predict(ctx, text)
		if err != nil {
			// A model that fails to predict may hold a broken session;
			// drop it so the next request reloads from the artifact store.
			s.engine.Evict(model.Id)
			slog.Error("inference failed", "model_id", model.Id, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "inference failed: %v", err)
		}

		if err := s.cache.Put(ctx, cacheKey, pred); err != nil {
			slog.Warn("result cache store failed", "error", err)
		}
	}
	latencyMs := float64(time.Since(start).Microseconds()) / 1000

	scores, _ := json.Marshal(pred.Scores)
	analysis := database.Analysis{
		Id:             uuid.New(),
		ModelId:        model.Id,
		Text:           text,
		SentimentLabel: string(pred.Label),
		Confidence:     pred.Confidence,
		Scores:         datatypes.JSON(scores),
		LatencyMs:      latencyMs,
		UserId:         UserId(r),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&analysis).Error; err != nil {
		slog.Error("error saving analysis", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to save analysis")
	}

	respScores := make(map[string]float64, len(pred.Scores))
	for label, score := range pred.Scores {
		respScores[string(label)] = score
	}

	return api.AnalyzeResponse{
		AnalysisId:      analysis.Id,
		ModelId:         model.Id,
		SentimentLabel:  string(pred.Label),
		Confidence:      pred.Confidence,
		ConfidenceLevel: types.ConfidenceLevel(pred.Confidence),
		Scores:          respScores,
		LatencyMs:       latencyMs,
		Cached:          cached,
	}, nil
}

func (s *BackendService) CompareModels(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CompareRequest](r)
	if err != nil {
		return nil, err
	}

	text, err := core.SanitizeText(req.Text)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid text: %v", err)
	}

	ctx := r.Context()

	var models []database.Model
	if len(req.ModelIds) > 0 {
		// Repeated ids add nothing to a comparison; keep first occurrences.
		seen := make(map[uuid.UUID]struct{}, len(req.ModelIds))
		modelIds := make([]uuid.UUID, 0, len(req.ModelIds))
		for _, id := range req.ModelIds {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			modelIds = append(modelIds, id)
		}

		var found []database.Model
		if err := s.db.WithContext(ctx).Find(&found, "id IN ?", modelIds).Error; err != nil {
			return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving models")
		}
		if len(found) != len(modelIds) {
			return nil, CodedErrorf(http.StatusNotFound, "one or more requested models not found")
		}
		for _, m := range found {
			if m.Status != database.ModelReady {
				return nil, CodedErrorf(http.StatusUnprocessableEntity, "model %s is not ready: model has status %s", m.Name, m.Status)
			}
		}

		// Results come back in request order.
		byId := make(map[uuid.UUID]database.Model, len(found))
		for _, m := range found {
			byId[m.Id] = m
		}
		for _, id := range modelIds {
			models = append(models, byId[id])
		}
	} else {
		if err := s.db.WithContext(ctx).Order("creation_time").Find(&models, "status = ?", database.ModelReady).Error; err != nil {
			return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving models")
		}
	}

	if len(models) < 2 {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "comparison requires at least 2 ready models, have %d", len(models))
	}

	entries := make([]core.CompareEntry, 0, len(models))
	for _, m := range models {
		loaded, err := s.engine.LoadModel(ctx, m.Id, core.ParseModelType(m.Type), m.ArtifactPrefix)
		if err != nil {
			slog.Error("error loading model for comparison", "model_id", m.Id, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "error loading model %s", m.Name)
		}
		entries = append(entries, core.CompareEntry{Id: m.Id, Name: m.Name, Model: loaded})
	}

	return core.CompareModels(ctx, entries, text), nil
}

func (s *BackendService) ListModels(r *http.Request) (any, error) {
	var models []database.Model
	if err := s.db.WithContext(r.Context()).Order("creation_time").Find(&models).Error; err != nil {
		slog.Error("error listing models", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing models")
	}
	return convertModels(models), nil
}

func (s *BackendService) GetModel(r *http.Request) (any, error) {
	modelId, err := URLParamUUID(r, "model_id")
	if err != nil {
		return nil, err
	}

	model, err := s.getModelRecord(r, modelId)
	if err != nil {
		return nil, err
	}

	return convertModel(model), nil
}

func (s *BackendService) ActivateModel(r *http.Request) (any, error) {
	modelId, err := URLParamUUID(r, "model_id")
	if err != nil {
		return nil, err
	}

	model, err := s.getModelRecord(r, modelId)
	if err != nil {
		return nil, err
	}
	if model.Status != database.ModelReady {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "cannot activate model with status %s", model.Status)
	}

	// Single active model invariant: demote everything, then promote.
	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if err := txn.Model(&database.Model{}).Where("active = ?", true).Update("active", false).Error; err != nil {
			return err
		}
		return txn.Model(&database.Model{Id: modelId}).Update("active", true).Error
	})
	if err != nil {
		slog.Error("error activating model", "model_id", modelId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to activate model")
	}

	slog.Info("activated model", "model_id", modelId, "name", model.Name)

	return nil, nil
}

func (s *BackendService) SubmitBatchJob(r *http.Request) (any, error) {
	req, err := ParseRequest[api.BatchSubmitRequest](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	model, err := s.getModelRecord(r, req.ModelId)
	if err != nil {
		return nil, err
	}
	if model.Status != database.ModelReady {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "model is not ready: model has status %s", model.Status)
	}

	sourceBucket, sourceKey := req.SourceBucket, req.SourceKey
	isUpload := req.UploadId != uuid.Nil
	if isUpload {
		objects, err := s.storage.ListObjects(ctx, s.uploadBucket, req.UploadId.String()+"/")
		if err != nil || len(objects) == 0 {
			return nil, CodedErrorf(http.StatusNotFound, "upload %s not found", req.UploadId)
		}
		sourceBucket, sourceKey = s.uploadBucket, objects[0].Name
	} else if sourceBucket == "" || sourceKey == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "either upload_id or source_bucket and source_key are required")
	}

	if _, err := core.DetectBatchFormat(sourceKey); err != nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "%v", err)
	}

	destBucket := req.DestBucket
	if destBucket == "" {
		destBucket = s.resultsBucket
	}

	job := database.BatchJob{
		Id:           uuid.New(),
		ModelId:      model.Id,
		Status:       database.JobQueued,
		SourceBucket: sourceBucket,
		SourceKey:    sourceKey,
		DestBucket:   destBucket,
		IsUpload:     isUpload,
		CreationTime: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		slog.Error("error creating batch job", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create batch job entry")
	}

	if err := s.publisher.PublishBatchSplitTask(ctx, messaging.BatchSplitPayload{JobId: job.Id}); err != nil {
		slog.Error("error publishing batch split task", "job_id", job.Id, "error", err)
		database.UpdateBatchJobStatus(ctx, s.db, job.Id, database.JobFailed) //nolint:errcheck
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue batch job")
	}

	slog.Info("submitted batch job", "job_id", job.Id, "model_id", model.Id, "source", sourceBucket+"/"+sourceKey)

	return api.BatchSubmitResponse{JobId: job.Id}, nil
}

func (s *BackendService) ListBatchJobs(r *http.Request) (any, error) {
	var jobs []database.BatchJob
	if err := s.db.WithContext(r.Context()).Order("creation_time desc").Find(&jobs).Error; err != nil {
		slog.Error("error listing batch jobs", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing batch jobs")
	}
	return convertBatchJobs(jobs), nil
}

func (s *BackendService) GetBatchJob(r *http.Request) (any, error) {
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		return nil, err
	}

	var job database.BatchJob
	if err := s.db.WithContext(r.Context()).First(&job, "id = ?", jobId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "batch job not found")
		}
		slog.Error("error getting batch job", "job_id", jobId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving batch job record")
	}

	return convertBatchJob(job), nil
}

func (s *BackendService) GetBatchResults(r *http.Request) (any, error) {
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[api.BatchResultsQuery](r)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 || params.Limit > 1000 {
		params.Limit = 100
	}
	if params.Label != "" && !types.ValidLabel(types.Label(params.Label)) {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid label filter %q", params.Label)
	}

	ctx := r.Context()

	var job database.BatchJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", jobId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "batch job not found")
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving batch job record")
	}

	query := s.db.WithContext(ctx).Model(&database.Analysis{}).Where("job_id = ?", jobId)
	if params.Label != "" {
		query = query.Where("sentiment_label = ?", params.Label)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error counting batch results")
	}

	var analyses []database.Analysis
	if err := query.Order("created_at").Offset(params.Offset).Limit(params.Limit).Find(&analyses).Error; err != nil {
		slog.Error("error fetching batch results", "job_id", jobId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving batch results")
	}

	return api.BatchResultsResponse{Total: total, Results: convertAnalyses(analyses)}, nil
}

func (s *BackendService) FinetuneModel(r *http.Request) (any, error) {
	baseModelId, err := URLParamUUID(r, "model_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.FinetuneRequest](r)
	if err != nil {
		return nil, err
	}

	if err := validateName(req.Name); err != nil {
		return nil, err
	}
	if len(req.Samples) == 0 {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "at least one sample is required")
	}
	for i, sample := range req.Samples {
		if _, err := core.SanitizeText(sample.Text); err != nil {
			return nil, CodedErrorf(http.StatusUnprocessableEntity, "invalid sample %d: %v", i, err)
		}
		if _, ok := types.ParseLabel(sample.Label); !ok {
			return nil, CodedErrorf(http.StatusUnprocessableEntity, "invalid label %q in sample %d", sample.Label, i)
		}
	}

	baseModel, err := s.getModelRecord(r, baseModelId)
	if err != nil {
		return nil, err
	}
	if baseModel.Status != database.ModelReady {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "base model is not ready: model has status %s", baseModel.Status)
	}
	if core.ParseModelType(baseModel.Type) == core.OnnxTransformer {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "model type %s does not support finetuning", baseModel.Type)
	}

	ctx := r.Context()

	model := database.Model{
		Id:           uuid.New(),
		BaseModelId:  uuid.NullUUID{UUID: baseModel.Id, Valid: true},
		Name:         req.Name,
		Type:         baseModel.Type,
		Status:       database.ModelQueued,
		CreationTime: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		slog.Error("error creating model", "error", err)
		return nil, CodedErrorf(http.StatusConflict, "failed to create model entry, name may already be in use")
	}

	payload := messaging.FinetuneTaskPayload{
		ModelId:     model.Id,
		BaseModelId: baseModel.Id,
		Samples:     req.Samples,
	}
	if err := s.publisher.PublishFinetuneTask(ctx, payload); err != nil {
		slog.Error("error publishing finetune task", "model_id", model.Id, "error", err)
		database.UpdateModelStatus(ctx, s.db, model.Id, database.ModelFailed) //nolint:errcheck
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue finetune task")
	}

	slog.Info("submitted finetune job", "model_id", model.Id, "base_model_id", baseModel.Id, "n_samples", len(req.Samples))

	return api.FinetuneResponse{ModelId: model.Id}, nil
}

func (s *BackendService) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing or invalid file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if _, err := core.DetectBatchFormat(header.Filename); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	uploadId := uuid.New()
	key := fmt.Sprintf("%s/%s", uploadId, header.Filename)

	if err := s.storage.PutObject(r.Context(), s.uploadBucket, key, file); err != nil {
		slog.Error("error storing upload", "upload_id", uploadId, "error", err)
		http.Error(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	slog.Info("stored upload", "upload_id", uploadId, "filename", header.Filename, "size", header.Size)

	WriteJsonResponse(w, api.UploadResponse{Id: uploadId})
}
