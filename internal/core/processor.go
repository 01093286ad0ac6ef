package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"sentiment-backend/internal/database"
	"sentiment-backend/internal/messaging"
	"sentiment-backend/internal/storage"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TaskProcessor struct {
	db        *gorm.DB
	storage   storage.Provider
	publisher messaging.Publisher
	receiver  messaging.Receiver
	engine    *ModelEngine

	modelBucket string
	chunkSize   int
}

const DefaultChunkSize = 500

func NewTaskProcessor(db *gorm.DB, store storage.Provider, publisher messaging.Publisher, receiver messaging.Receiver, engine *ModelEngine, modelBucket string, chunkSize int) *TaskProcessor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &TaskProcessor{
		db:          db,
		storage:     store,
		publisher:   publisher,
		receiver:    receiver,
		engine:      engine,
		modelBucket: modelBucket,
		chunkSize:   chunkSize,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.receiver.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.publisher.Close()
	proc.receiver.Close()
	proc.engine.Release()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {

	case messaging.BatchSplitQueue:
		var payload messaging.BatchSplitPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling batch split task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processBatchSplitTask(ctx, payload)

	case messaging.InferenceQueue:
		var payload messaging.InferenceTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling inference task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processInferenceTask(ctx, payload)

	case messaging.FinetuneQueue:
		var payload messaging.FinetuneTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling finetune task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processFinetuneTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) getJob(ctx context.Context, jobId uuid.UUID) (database.BatchJob, error) {
	var job database.BatchJob
	if err := proc.db.WithContext(ctx).Preload("Model").First(&job, "id = ?", jobId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.BatchJob{}, fmt.Errorf("batch job %s not found: %w", jobId, err)
		}
		return database.BatchJob{}, fmt.Errorf("error getting batch job: %w", err)
	}
	return job, nil
}

func (proc *TaskProcessor) readSourceRecords(ctx context.Context, job database.BatchJob) ([]string, error) {
	format, err := DetectBatchFormat(job.SourceKey)
	if err != nil {
		return nil, err
	}

	stream, err := proc.storage.GetObjectStream(job.SourceBucket, job.SourceKey)
	if err != nil {
		return nil, fmt.Errorf("error opening batch source %s/%s: %w", job.SourceBucket, job.SourceKey, err)
	}

	return ReadBatchRecords(stream, format)
}

func (proc *TaskProcessor) processBatchSplitTask(ctx context.Context, payload messaging.BatchSplitPayload) error {
	jobId := payload.JobId

	slog.Info("processing batch split task", "job_id", jobId)

	job, err := proc.getJob(ctx, jobId)
	if err != nil {
		return err
	}

	database.UpdateBatchJobStatus(ctx, proc.db, jobId, database.JobRunning) //nolint:errcheck

	records, err := proc.readSourceRecords(ctx, job)
	if err != nil {
		database.UpdateBatchJobStatus(ctx, proc.db, jobId, database.JobFailed) //nolint:errcheck
		database.SaveJobError(ctx, proc.db, jobId, err.Error())
		return err
	}

	if err := proc.db.WithContext(ctx).
		Model(&database.BatchJob{}).
		Where("id = ?", jobId).
		UpdateColumn("total_texts", len(records)).
		Error; err != nil {
		slog.Error("could not update total text count", "job_id", jobId, "error", err)
	}

	if len(records) == 0 {
		slog.Info("batch source has no records, completing job", "job_id", jobId)
		return database.UpdateBatchJobStatus(ctx, proc.db, jobId, database.JobCompleted)
	}

	taskId := 0
	for start := 0; start < len(records); start += proc.chunkSize {
		end := min(start+proc.chunkSize, len(records))

		task := database.BatchTask{
			JobId:        jobId,
			TaskId:       taskId,
			Status:       database.JobQueued,
			StartLine:    start,
			EndLine:      end,
			TextCount:    end - start,
			CreationTime: time.Now().UTC(),
		}

		if err := proc.db.WithContext(ctx).Create(&task).Error; err != nil {
			slog.Error("error saving batch task", "job_id", jobId, "task_id", taskId, "error", err)
			database.UpdateBatchJobStatus(ctx, proc.db, jobId, database.JobFailed) //nolint:errcheck
			return fmt.Errorf("error saving batch task: %w", err)
		}

		if err := proc.publisher.PublishInferenceTask(ctx, messaging.InferenceTaskPayload{JobId: jobId, TaskId: taskId}); err != nil {
			slog.Error("failed to publish inference task", "job_id", jobId, "task_id", taskId, "error", err)
			database.UpdateBatchJobStatus(ctx, proc.db, jobId, database.JobFailed) //nolint:errcheck
			return fmt.Errorf("failed to publish inference task %d: %w", taskId, err)
		}

		taskId++
	}

	slog.Info("finished splitting batch job", "job_id", jobId, "n_tasks", taskId, "n_texts", len(records))

	return nil
}

type batchResultLine struct {
	Line           int     `json:"line"`
	Text           string  `json:"text"`
	SentimentLabel string  `json:"sentiment_label,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	Error          string  `json:"error,omitempty"`
}

func (proc *TaskProcessor) processInferenceTask(ctx context.Context, payload messaging.InferenceTaskPayload) error {
	jobId, taskId := payload.JobId, payload.TaskId

	slog.Info("processing inference task", "job_id", jobId, "task_id", taskId)

	var task database.BatchTask
	if err := proc.db.WithContext(ctx).Preload("Job").Preload("Job.Model").First(&task, "job_id = ? AND task_id = ?", jobId, taskId).Error; err != nil {
		slog.Error("error fetching batch task", "job_id", jobId, "task_id", taskId, "error", err)
		return fmt.Errorf("error getting batch task: %w", err)
	}

	if task.Job.Status == database.JobFailed {
		slog.Info("job already failed, skipping inference task", "job_id", jobId, "task_id", taskId)
		return nil
	}

	database.UpdateBatchTaskStatus(ctx, proc.db, jobId, taskId, database.JobRunning) //nolint:errcheck

	model, err := proc.engine.LoadModel(ctx, task.Job.Model.Id, ParseModelType(task.Job.Model.Type), task.Job.Model.ArtifactPrefix)
	if err != nil {
		database.UpdateBatchTaskStatus(ctx, proc.db, jobId, taskId, database.JobFailed) //nolint:errcheck
		database.SaveJobError(ctx, proc.db, jobId, fmt.Sprintf("loading model failed: %s", err.Error()))
		return fmt.Errorf("error loading model for inference task: %w", err)
	}

	records, err := proc.readSourceRecords(ctx, *task.Job)
	if err != nil {
		database.UpdateBatchTaskStatus(ctx, proc.db, jobId, taskId, database.JobFailed) //nolint:errcheck
		database.SaveJobError(ctx, proc.db, jobId, err.Error())
		return err
	}

	if task.EndLine > len(records) {
		database.UpdateBatchTaskStatus(ctx, proc.db, jobId, taskId, database.JobFailed) //nolint:errcheck
		err := fmt.Errorf("batch source shrank: task covers lines [%d, %d) but source has %d records", task.StartLine, task.EndLine, len(records))
		database.SaveJobError(ctx, proc.db, jobId, err.Error())
		return err
	}

	var (
		analyses    []database.Analysis
		resultLines []batchResultLine
		labelCounts = make(map[string]int64)
		succeeded   = 0
		failed      = 0
	)

	for line := task.StartLine; line < task.EndLine; line++ {
		text, err := SanitizeText(records[line])
		if err != nil {
			failed++
			resultLines = append(resultLines, batchResultLine{Line: line, Text: records[line], Error: err.Error()})
			continue
		}

		start := time.Now()
		pred, err := model.Predict(ctx, text)
		latencyMs := float64(time.Since(start).Microseconds()) / 1000
		if err != nil {
			failed++
			resultLines = append(resultLines, batchResultLine{Line: line, Text: text, Error: err.Error()})
			continue
		}

		scores, _ := json.Marshal(pred.Scores)
		analyses = append(analyses, database.Analysis{
			Id:             uuid.New(),
			ModelId:        task.Job.Model.Id,
			JobId:          uuid.NullUUID{UUID: jobId, Valid: true},
			Text:           text,
			SentimentLabel: string(pred.Label),
			Confidence:     pred.Confidence,
			Scores:         datatypes.JSON(scores),
			LatencyMs:      latencyMs,
			CreatedAt:      time.Now().UTC(),
		})
		resultLines = append(resultLines, batchResultLine{
			Line:           line,
			Text:           text,
			SentimentLabel: string(pred.Label),
			Confidence:     pred.Confidence,
		})
		labelCounts[string(pred.Label)]++
		succeeded++
	}

	if len(analyses) > 0 {
		if err := proc.db.WithContext(ctx).CreateInBatches(&analyses, 100).Error; err != nil {
			database.UpdateBatchTaskStatus(ctx, proc.db, jobId, taskId, database.JobFailed) //nolint:errcheck
			database.SaveJobError(ctx, proc.db, jobId, fmt.Sprintf("saving analyses failed: %s", err.Error()))
			return fmt.Errorf("error saving analyses: %w", err)
		}
	}

	if err := proc.uploadTaskResults(ctx, *task.Job, taskId, resultLines); err != nil {
		database.UpdateBatchTaskStatus(ctx, proc.db, jobId, taskId, database.JobFailed) //nolint:errcheck
		database.SaveJobError(ctx, proc.db, jobId, fmt.Sprintf("uploading results failed: %s", err.Error()))
		return err
	}

	if err := database.IncrementJobCounts(ctx, proc.db, jobId, succeeded, failed); err != nil {
		return err
	}
	if err := database.AddLabelCounts(ctx, proc.db, jobId, labelCounts); err != nil {
		return err
	}

	if failed > 0 {
		database.SaveJobError(ctx, proc.db, jobId, fmt.Sprintf("task %d: %d/%d texts failed", taskId, failed, task.TextCount))
	}

	if err := database.UpdateBatchTaskStatus(ctx, proc.db, jobId, taskId, database.JobCompleted); err != nil {
		return fmt.Errorf("error updating inference task status to complete: %w", err)
	}

	if err := proc.finishJobIfDone(ctx, jobId); err != nil {
		return err
	}

	slog.Info("inference task completed", "job_id", jobId, "task_id", taskId, "succeeded", succeeded, "failed", failed)

	return nil
}

func (proc *TaskProcessor) uploadTaskResults(ctx context.Context, job database.BatchJob, taskId int, lines []batchResultLine) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encoding result line: %w", err)
		}
	}

	key := fmt.Sprintf("%s/results/task-%d.jsonl", job.Id, taskId)
	if err := proc.storage.PutObject(ctx, job.DestBucket, key, &buf); err != nil {
		return fmt.Errorf("error uploading task results to %s/%s: %w", job.DestBucket, key, err)
	}
	return nil
}

// finishJobIfDone marks the job completed once no tasks remain unfinished.
// The last completing task wins the race; the update is idempotent.
func (proc *TaskProcessor) finishJobIfDone(ctx context.Context, jobId uuid.UUID) error {
	var remaining int64
	if err := proc.db.WithContext(ctx).
		Model(&database.BatchTask{}).
		Where("job_id = ? AND status NOT IN ?", jobId, []string{database.JobCompleted, database.JobFailed}).
		Count(&remaining).Error; err != nil {
		return fmt.Errorf("error counting remaining tasks: %w", err)
	}
	if remaining > 0 {
		return nil
	}

	var failedTasks int64
	if err := proc.db.WithContext(ctx).
		Model(&database.BatchTask{}).
		Where("job_id = ? AND status = ?", jobId, database.JobFailed).
		Count(&failedTasks).Error; err != nil {
		return fmt.Errorf("error counting failed tasks: %w", err)
	}

	status := database.JobCompleted
	if failedTasks > 0 {
		status = database.JobFailed
	}

	slog.Info("all batch tasks finished", "job_id", jobId, "status", status)

	return database.UpdateBatchJobStatus(ctx, proc.db, jobId, status)
}

func (proc *TaskProcessor) getModel(ctx context.Context, modelId uuid.UUID) (database.Model, error) {
	var model database.Model
	if err := proc.db.WithContext(ctx).First(&model, "id = ?", modelId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Model{}, fmt.Errorf("model %s not found: %w", modelId, err)
		}
		return database.Model{}, fmt.Errorf("error getting model: %w", err)
	}
	return model, nil
}

func (proc *TaskProcessor) processFinetuneTask(ctx context.Context, payload messaging.FinetuneTaskPayload) error {
	database.UpdateModelStatus(ctx, proc.db, payload.ModelId, database.ModelLoading) //nolint:errcheck

	slog.Info("processing finetune task", "model_id", payload.ModelId, "base_model_id", payload.BaseModelId)

	baseModel, err := proc.getModel(ctx, payload.BaseModelId)
	if err != nil {
		database.UpdateModelStatus(ctx, proc.db, payload.ModelId, database.ModelFailed) //nolint:errcheck
		return err
	}

	model, err := proc.engine.LoadFresh(ctx, payload.BaseModelId, ParseModelType(baseModel.Type), baseModel.ArtifactPrefix)
	if err != nil {
		database.UpdateModelStatus(ctx, proc.db, payload.ModelId, database.ModelFailed) //nolint:errcheck
		slog.Error("error loading base model", "base_model_id", payload.BaseModelId, "model_id", payload.ModelId, "error", err)
		return fmt.Errorf("error loading base model: %w", err)
	}
	defer model.Release()

	if err := model.Finetune(payload.Samples); err != nil {
		database.UpdateModelStatus(ctx, proc.db, payload.ModelId, database.ModelFailed) //nolint:errcheck
		slog.Error("error finetuning model", "base_model_id", payload.BaseModelId, "model_id", payload.ModelId, "error", err)
		return fmt.Errorf("error finetuning model: %w", err)
	}

	localDir := proc.engine.getModelDir(payload.ModelId)
	if err := os.MkdirAll(localDir, os.ModePerm); err != nil {
		database.UpdateModelStatus(ctx, proc.db, payload.ModelId, database.ModelFailed) //nolint:errcheck
		return fmt.Errorf("error creating local model directory: %w", err)
	}

	if err := model.Save(localDir); err != nil {
		database.UpdateModelStatus(ctx, proc.db, payload.ModelId, database.ModelFailed) //nolint:errcheck
		slog.Error("error saving finetuned model", "model_id", payload.ModelId, "error", err)
		return fmt.Errorf("error saving finetuned model: %w", err)
	}

	if err := proc.storage.UploadDir(ctx, proc.modelBucket, payload.ModelId.String(), localDir); err != nil {
		database.UpdateModelStatus(ctx, proc.db, payload.ModelId, database.ModelFailed) //nolint:errcheck
		slog.Error("error uploading finetuned model", "model_id", payload.ModelId, "error", err)
		return fmt.Errorf("error uploading model artifact: %w", err)
	}

	texts := make([]string, len(payload.Samples))
	labels := make([]string, len(payload.Samples))
	for i, s := range payload.Samples {
		texts[i] = s.Text
		labels[i] = s.Label
	}
	if err := database.SaveFinetuneSamples(ctx, proc.db, payload.ModelId, texts, labels); err != nil {
		slog.Error("error saving finetune samples", "model_id", payload.ModelId, "error", err)
	}

	if err := proc.db.WithContext(ctx).
		Model(&database.Model{Id: payload.ModelId}).
		Update("artifact_prefix", payload.ModelId.String()).Error; err != nil {
		slog.Error("error updating artifact prefix", "model_id", payload.ModelId, "error", err)
	}

	if err := database.UpdateModelStatus(ctx, proc.db, payload.ModelId, database.ModelReady); err != nil {
		return fmt.Errorf("error updating model status after finetuning: %w", err)
	}

	slog.Info("finetuning completed", "model_id", payload.ModelId, "base_model_id", payload.BaseModelId)

	return nil
}
