package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	backend "sentiment-backend/internal/api"
	"sentiment-backend/internal/cache"
	"sentiment-backend/internal/core"
	"sentiment-backend/internal/database"
	"sentiment-backend/internal/messaging"
	"sentiment-backend/internal/storage"
	"sentiment-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	modelBucket   = "models"
	uploadBucket  = "uploads"
	resultsBucket = "results"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

type testBackend struct {
	db     *gorm.DB
	store  storage.Provider
	queue  *messaging.InMemoryQueue
	engine *core.ModelEngine
	router chi.Router
}

func newTestBackend(t *testing.T, create ...any) *testBackend {
	db := createDB(t, create...)

	store, err := storage.NewLocalProvider(t.TempDir())
	require.NoError(t, err)
	for _, bucket := range []string{modelBucket, uploadBucket, resultsBucket} {
		require.NoError(t, store.CreateBucket(context.Background(), bucket))
	}

	queue := messaging.NewInMemoryQueue()
	engine := core.NewModelEngine(store, core.NewModelLoaders("gpt-4o-mini"), t.TempDir(), modelBucket)
	t.Cleanup(engine.Release)

	service := backend.NewBackendService(db, store, queue, engine, cache.NewMemoryCache(time.Minute, 1000), uploadBucket, resultsBucket)
	router := chi.NewRouter()
	service.AddRoutes(router)

	return &testBackend{db: db, store: store, queue: queue, engine: engine, router: router}
}

func (b *testBackend) request(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()

	b.router.ServeHTTP(rec, req)

	return rec
}

// drainTasks runs queued worker tasks inline until the queue is empty,
// including tasks published while processing (batch split fans out into
// inference tasks).
func (b *testBackend) drainTasks(chunkSize int) {
	proc := core.NewTaskProcessor(b.db, b.store, b.queue, b.queue, b.engine, modelBucket, chunkSize)
	for {
		select {
		case task := <-b.queue.Tasks():
			proc.ProcessTask(task)
		default:
			return
		}
	}
}

func readyLexiconModel(name string, active bool) *database.Model {
	return &database.Model{
		Id:           uuid.New(),
		Name:         name,
		Type:         string(core.Lexicon),
		Status:       database.ModelReady,
		Active:       active,
		CreationTime: time.Now().UTC(),
	}
}

func TestGetHealth(t *testing.T) {
	b := newTestBackend(t,
		readyLexiconModel("lexicon-base", true),
		&database.Model{Id: uuid.New(), Name: "pending", Type: string(core.Lexicon), Status: database.ModelQueued},
	)

	rec := b.request(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response api.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, 1, response.ReadyModels)
	assert.Equal(t, "lexicon-base", response.ActiveModel)
}

func TestListModels(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	b := newTestBackend(t,
		&database.Model{Id: id1, Name: "lexicon-base", Type: string(core.Lexicon), Status: database.ModelReady, Active: true, CreationTime: time.Now()},
		&database.Model{Id: id2, Name: "transformer-base", Type: string(core.OnnxTransformer), Status: database.ModelQueued, CreationTime: time.Now().Add(time.Second)},
	)

	rec := b.request(t, http.MethodGet, "/models", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response []api.Model
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, []api.Model{
		{Id: id1, Name: "lexicon-base", Type: string(core.Lexicon), Status: database.ModelReady, Active: true},
		{Id: id2, Name: "transformer-base", Type: string(core.OnnxTransformer), Status: database.ModelQueued},
	}, response)
}

func TestGetModel(t *testing.T) {
	model := readyLexiconModel("lexicon-base", true)
	b := newTestBackend(t, model)

	t.Run("Found", func(t *testing.T) {
		rec := b.request(t, http.MethodGet, "/models/"+model.Id.String(), nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response api.Model
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, api.Model{Id: model.Id, Name: "lexicon-base", Type: string(core.Lexicon), Status: database.ModelReady, Active: true}, response)
	})

	t.Run("NotFound", func(t *testing.T) {
		rec := b.request(t, http.MethodGet, "/models/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("BadId", func(t *testing.T) {
		rec := b.request(t, http.MethodGet, "/models/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestActivateModel(t *testing.T) {
	first := readyLexiconModel("first", true)
	second := readyLexiconModel("second", false)
	queued := &database.Model{Id: uuid.New(), Name: "queued", Type: string(core.Lexicon), Status: database.ModelQueued}
	b := newTestBackend(t, first, second, queued)

	t.Run("RejectsUnreadyModel", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/models/"+queued.Id.String()+"/activate", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("SwitchesActiveModel", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/models/"+second.Id.String()+"/activate", nil)
		assert.Equal(t, http.StatusOK, rec.Code, "received response: "+rec.Body.String())

		var active []database.Model
		require.NoError(t, b.db.Find(&active, "active = ?", true).Error)
		require.Len(t, active, 1)
		assert.Equal(t, second.Id, active[0].Id)
	})
}

func TestAnalyze(t *testing.T) {
	model := readyLexiconModel("lexicon-base", true)
	b := newTestBackend(t, model)

	t.Run("ActiveModelPositive", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/analyze", api.AnalyzeRequest{Text: "I love this product, it is wonderful"})

		assert.Equal(t, http.StatusOK, rec.Code, "received response: "+rec.Body.String())
		var response api.AnalyzeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, model.Id, response.ModelId)
		assert.Equal(t, "positive", response.SentimentLabel)
		assert.NotEmpty(t, response.ConfidenceLevel)
		assert.False(t, response.Cached)
		assert.InDelta(t, 1.0, response.Scores["positive"]+response.Scores["negative"]+response.Scores["neutral"], 1e-9)
	})

	t.Run("RepeatHitsCache", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/analyze", api.AnalyzeRequest{Text: "I love this product, it is wonderful"})

		assert.Equal(t, http.StatusOK, rec.Code)
		var response api.AnalyzeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.True(t, response.Cached)
		assert.Equal(t, "positive", response.SentimentLabel)
	})

	t.Run("ExplicitModelNegative", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/analyze", api.AnalyzeRequest{Text: "This is terrible and awful", ModelId: &model.Id})

		assert.Equal(t, http.StatusOK, rec.Code)
		var response api.AnalyzeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, "negative", response.SentimentLabel)
	})

	t.Run("SavesAnalyses", func(t *testing.T) {
		var count int64
		require.NoError(t, b.db.Model(&database.Analysis{}).Count(&count).Error)
		assert.Equal(t, int64(3), count)
	})

	t.Run("RejectsEmptyText", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/analyze", api.AnalyzeRequest{Text: "   "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("RejectsOversizedText", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/analyze", api.AnalyzeRequest{Text: strings.Repeat("a", 10001)})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("UnknownModel", func(t *testing.T) {
		missing := uuid.New()
		rec := b.request(t, http.MethodPost, "/analyze", api.AnalyzeRequest{Text: "fine", ModelId: &missing})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAnalyzeModelNotReady(t *testing.T) {
	model := &database.Model{Id: uuid.New(), Name: "pending", Type: string(core.Lexicon), Status: database.ModelQueued}
	b := newTestBackend(t, model)

	rec := b.request(t, http.MethodPost, "/analyze", api.AnalyzeRequest{Text: "fine", ModelId: &model.Id})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnalyzeNoActiveModel(t *testing.T) {
	b := newTestBackend(t, readyLexiconModel("inactive", false))

	rec := b.request(t, http.MethodPost, "/analyze", api.AnalyzeRequest{Text: "fine"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCompareModels(t *testing.T) {
	first := readyLexiconModel("first", true)
	second := readyLexiconModel("second", false)
	b := newTestBackend(t, first, second)

	t.Run("AllReadyModels", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/models/compare", api.CompareRequest{Text: "great and amazing"})

		assert.Equal(t, http.StatusOK, rec.Code, "received response: "+rec.Body.String())
		var response api.CompareResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		require.Len(t, response.Results, 2)
		for _, result := range response.Results {
			assert.Equal(t, "positive", result.SentimentLabel)
			assert.Empty(t, result.Error)
		}
		assert.True(t, response.Agreement.Unanimous)
		assert.Equal(t, "positive", response.Agreement.MajorityLabel)
		assert.Equal(t, 1.0, response.Agreement.AgreementRatio)
	})

	t.Run("ExplicitModelOrder", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/models/compare", api.CompareRequest{
			Text:     "this is horrible",
			ModelIds: []uuid.UUID{second.Id, first.Id},
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		var response api.CompareResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		require.Len(t, response.Results, 2)
		assert.Equal(t, second.Id, response.Results[0].ModelId)
		assert.Equal(t, first.Id, response.Results[1].ModelId)
	})

	t.Run("DuplicateIdsCollapsed", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/models/compare", api.CompareRequest{
			Text:     "fine",
			ModelIds: []uuid.UUID{second.Id, second.Id, first.Id},
		})

		assert.Equal(t, http.StatusOK, rec.Code, "received response: "+rec.Body.String())
		var response api.CompareResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		require.Len(t, response.Results, 2)
		assert.Equal(t, second.Id, response.Results[0].ModelId)
		assert.Equal(t, first.Id, response.Results[1].ModelId)
	})

	t.Run("UnknownModel", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/models/compare", api.CompareRequest{
			Text:     "fine",
			ModelIds: []uuid.UUID{first.Id, uuid.New()},
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCompareRequiresTwoModels(t *testing.T) {
	b := newTestBackend(t, readyLexiconModel("only", true))

	rec := b.request(t, http.MethodPost, "/models/compare", api.CompareRequest{Text: "fine"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func uploadBatchFile(t *testing.T, b *testBackend, filename, content string) uuid.UUID {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	b.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "received response: "+rec.Body.String())
	var response api.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.NotEqual(t, uuid.Nil, response.Id)

	return response.Id
}

func TestUploadRejectsUnknownFormat(t *testing.T) {
	b := newTestBackend(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	b.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBatchJobFlow(t *testing.T) {
	model := readyLexiconModel("lexicon-base", true)
	b := newTestBackend(t, model)

	csv := "text\n" +
		"\"I love this product, it is wonderful\"\n" +
		"This is terrible and awful\n" +
		"great and amazing\n"
	uploadId := uploadBatchFile(t, b, "reviews.csv", csv)

	var jobId uuid.UUID
	t.Run("Submit", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/analyze/batch", api.BatchSubmitRequest{ModelId: model.Id, UploadId: uploadId})

		assert.Equal(t, http.StatusOK, rec.Code, "received response: "+rec.Body.String())
		var response api.BatchSubmitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		require.NotEqual(t, uuid.Nil, response.JobId)
		jobId = response.JobId
	})

	t.Run("QueuedStatus", func(t *testing.T) {
		rec := b.request(t, http.MethodGet, "/analyze/batch/"+jobId.String(), nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var job api.BatchJob
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, database.JobQueued, job.Status)
	})

	// Chunk size 2 splits the 3 records into two inference tasks.
	b.drainTasks(2)

	t.Run("CompletedStatus", func(t *testing.T) {
		rec := b.request(t, http.MethodGet, "/analyze/batch/"+jobId.String(), nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var job api.BatchJob
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, database.JobCompleted, job.Status)
		assert.Equal(t, 3, job.TotalTexts)
		assert.Equal(t, 3, job.SucceededTexts)
		assert.Equal(t, 0, job.FailedTexts)
		assert.Equal(t, map[string]int64{"positive": 2, "negative": 1}, job.LabelCounts)
		assert.NotNil(t, job.CompletionTime)
	})

	t.Run("ListJobs", func(t *testing.T) {
		rec := b.request(t, http.MethodGet, "/analyze/batch", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var jobs []api.BatchJob
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
		require.Len(t, jobs, 1)
		assert.Equal(t, jobId, jobs[0].Id)
		assert.Equal(t, database.JobCompleted, jobs[0].Status)
	})

	t.Run("Results", func(t *testing.T) {
		rec := b.request(t, http.MethodGet, "/analyze/batch/"+jobId.String()+"/results", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response api.BatchResultsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, int64(3), response.Total)
		require.Len(t, response.Results, 3)
		for _, result := range response.Results {
			assert.Equal(t, model.Id, result.ModelId)
			assert.NotEmpty(t, result.SentimentLabel)
		}
	})

	t.Run("ResultsLabelFilter", func(t *testing.T) {
		rec := b.request(t, http.MethodGet, "/analyze/batch/"+jobId.String()+"/results?label=negative", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response api.BatchResultsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, int64(1), response.Total)
		require.Len(t, response.Results, 1)
		assert.Equal(t, "This is terrible and awful", response.Results[0].Text)
	})

	t.Run("ResultsPaged", func(t *testing.T) {
		var results []api.Analysis
		for {
			url := fmt.Sprintf("/analyze/batch/%s/results?limit=2&offset=%d", jobId, len(results))
			rec := b.request(t, http.MethodGet, url, nil)
			assert.Equal(t, http.StatusOK, rec.Code)

			var response api.BatchResultsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			if len(response.Results) == 0 {
				break
			}
			results = append(results, response.Results...)
		}
		assert.Len(t, results, 3)
	})

	t.Run("ResultsObjectStored", func(t *testing.T) {
		objects, err := b.store.ListObjects(context.Background(), resultsBucket, jobId.String()+"/results/")
		require.NoError(t, err)
		assert.NotEmpty(t, objects)
	})

	t.Run("ResultsBadLabelFilter", func(t *testing.T) {
		rec := b.request(t, http.MethodGet, "/analyze/batch/"+jobId.String()+"/results?label=happy", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestBatchJobValidation(t *testing.T) {
	model := readyLexiconModel("lexicon-base", true)
	b := newTestBackend(t, model)

	t.Run("MissingSource", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/analyze/batch", api.BatchSubmitRequest{ModelId: model.Id})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("UnknownUpload", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/analyze/batch", api.BatchSubmitRequest{ModelId: model.Id, UploadId: uuid.New()})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/analyze/batch", api.BatchSubmitRequest{ModelId: model.Id, SourceBucket: "ext", SourceKey: "data.parquet"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("UnknownJob", func(t *testing.T) {
		rec := b.request(t, http.MethodGet, "/analyze/batch/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestFinetuneFlow(t *testing.T) {
	base := readyLexiconModel("lexicon-base", true)
	b := newTestBackend(t, base)

	samples := []api.Sample{
		{Text: "borpo is the best", Label: "positive"},
		{Text: "borpo really delivers", Label: "positive"},
		{Text: "borpo exceeded expectations", Label: "positive"},
	}

	var response api.FinetuneResponse
	t.Run("Submit", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/models/"+base.Id.String()+"/finetune", api.FinetuneRequest{Name: "tuned-lexicon", Samples: samples})

		assert.Equal(t, http.StatusOK, rec.Code, "received response: "+rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		require.NotEqual(t, uuid.Nil, response.ModelId)
	})

	t.Run("QueuedModel", func(t *testing.T) {
		rec := b.request(t, http.MethodGet, "/models/"+response.ModelId.String(), nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var model api.Model
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &model))
		assert.Equal(t, "tuned-lexicon", model.Name)
		assert.Equal(t, string(core.Lexicon), model.Type)
		assert.Equal(t, database.ModelQueued, model.Status)
		require.NotNil(t, model.BaseModelId)
		assert.Equal(t, base.Id, *model.BaseModelId)
	})

	b.drainTasks(core.DefaultChunkSize)

	t.Run("ReadyAfterProcessing", func(t *testing.T) {
		var model database.Model
		require.NoError(t, b.db.First(&model, "id = ?", response.ModelId).Error)
		assert.Equal(t, database.ModelReady, model.Status)
		assert.NotEmpty(t, model.ArtifactPrefix)

		objects, err := b.store.ListObjects(context.Background(), modelBucket, model.ArtifactPrefix)
		require.NoError(t, err)
		assert.NotEmpty(t, objects)
	})

	t.Run("SamplesRecorded", func(t *testing.T) {
		var count int64
		require.NoError(t, b.db.Model(&database.FinetuneSample{}).Where("model_id = ?", response.ModelId).Count(&count).Error)
		assert.Equal(t, int64(len(samples)), count)
	})

	t.Run("TunedModelServes", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/analyze", api.AnalyzeRequest{Text: "borpo", ModelId: &response.ModelId})

		assert.Equal(t, http.StatusOK, rec.Code, "received response: "+rec.Body.String())
		var analysis api.AnalyzeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
		assert.Equal(t, "positive", analysis.SentimentLabel)
	})

	t.Run("BaseModelUnchanged", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/analyze", api.AnalyzeRequest{Text: "borpo", ModelId: &base.Id})

		assert.Equal(t, http.StatusOK, rec.Code)
		var analysis api.AnalyzeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
		assert.Equal(t, "neutral", analysis.SentimentLabel)
	})
}

func TestFinetuneValidation(t *testing.T) {
	lexicon := readyLexiconModel("lexicon-base", true)
	onnx := &database.Model{Id: uuid.New(), Name: "transformer-base", Type: string(core.OnnxTransformer), Status: database.ModelReady}
	b := newTestBackend(t, lexicon, onnx)

	sample := []api.Sample{{Text: "fine", Label: "positive"}}

	t.Run("BadName", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/models/"+lexicon.Id.String()+"/finetune", api.FinetuneRequest{Name: "bad name!", Samples: sample})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("NoSamples", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/models/"+lexicon.Id.String()+"/finetune", api.FinetuneRequest{Name: "tuned"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("BadSampleLabel", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/models/"+lexicon.Id.String()+"/finetune", api.FinetuneRequest{
			Name:    "tuned",
			Samples: []api.Sample{{Text: "fine", Label: "happy"}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("OnnxNotFinetunable", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/models/"+onnx.Id.String()+"/finetune", api.FinetuneRequest{Name: "tuned", Samples: sample})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("DuplicateName", func(t *testing.T) {
		rec := b.request(t, http.MethodPost, "/models/"+lexicon.Id.String()+"/finetune", api.FinetuneRequest{Name: "lexicon-base", Samples: sample})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}
