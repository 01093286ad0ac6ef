package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func UpdateModelStatus(ctx context.Context, txn *gorm.DB, modelId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == ModelReady || status == ModelFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&Model{Id: modelId}).Updates(updates).Error; err != nil {
		slog.Error("error updating model status", "model_id", modelId, "status", status, "error", err)
		return err
	}
	return nil
}

func UpdateBatchJobStatus(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == JobCompleted || status == JobFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&BatchJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error updating batch job status", "job_id", jobId, "status", status, "error", err)
		return err
	}
	return nil
}

func UpdateBatchTaskStatus(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, taskId int, status string) error {
	updates := map[string]any{"status": status}
	if status == JobRunning {
		updates["start_time"] = time.Now().UTC()
	}
	if status == JobCompleted || status == JobFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&BatchTask{JobId: jobId, TaskId: taskId}).Updates(updates).Error; err != nil {
		slog.Error("error updating batch task status", "job_id", jobId, "task_id", taskId, "status", status, "error", err)
		return err
	}
	return nil
}

func SaveJobError(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, errorMessage string) {
	jobError := JobError{
		JobId:     jobId,
		ErrorId:   uuid.New(),
		Error:     errorMessage,
		Timestamp: time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Create(&jobError).Error; err != nil {
		slog.Error("error saving job error", "job_id", jobId, "error", err)
	}
}

// AddLabelCounts merges per-label tallies from a finished task into the job
// row. Runs in a transaction since jsonb column merging is read-modify-write.
func AddLabelCounts(ctx context.Context, db *gorm.DB, jobId uuid.UUID, counts map[string]int64) error {
	return db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var job BatchJob
		if err := txn.First(&job, "id = ?", jobId).Error; err != nil {
			return fmt.Errorf("error fetching job for label counts: %w", err)
		}

		merged := map[string]int64{}
		if len(job.LabelCounts) > 0 {
			if err := json.Unmarshal(job.LabelCounts, &merged); err != nil {
				return fmt.Errorf("invalid label counts JSON: %w", err)
			}
		}
		for label, n := range counts {
			merged[label] += n
		}

		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("could not marshal label counts: %w", err)
		}

		return txn.Model(&BatchJob{Id: jobId}).Update("label_counts", data).Error
	})
}

func IncrementJobCounts(ctx context.Context, db *gorm.DB, jobId uuid.UUID, succeeded, failed int) error {
	if err := db.WithContext(ctx).
		Model(&BatchJob{}).
		Where("id = ?", jobId).
		Updates(map[string]any{
			"succeeded_texts": gorm.Expr("succeeded_texts + ?", succeeded),
			"failed_texts":    gorm.Expr("failed_texts + ?", failed),
		}).Error; err != nil {
		slog.Error("could not increment job counts", "job_id", jobId, "error", err)
		return fmt.Errorf("could not increment job counts: %w", err)
	}
	return nil
}

func SaveFinetuneSamples(ctx context.Context, db *gorm.DB, modelId uuid.UUID, texts, labels []string) error {
	if len(texts) != len(labels) {
		return fmt.Errorf("texts and labels length mismatch: %d vs %d", len(texts), len(labels))
	}

	rows := make([]FinetuneSample, len(texts))
	for i := range texts {
		rows[i] = FinetuneSample{Id: uuid.New(), ModelId: modelId, Text: texts[i], Label: labels[i]}
	}

	if len(rows) == 0 {
		return nil
	}
	if err := db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to save finetune samples: %w", err)
	}
	return nil
}
