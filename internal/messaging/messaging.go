package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"sentiment-backend/pkg/api"
)

const (
	BatchSplitQueue = "batch_split_queue"
	InferenceQueue  = "inference_queue"
	FinetuneQueue   = "finetune_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type BatchSplitPayload struct {
	JobId uuid.UUID
}

type InferenceTaskPayload struct {
	JobId  uuid.UUID
	TaskId int
}

type FinetuneTaskPayload struct {
	ModelId     uuid.UUID
	BaseModelId uuid.UUID

	Samples []api.Sample
}

type Publisher interface {
	PublishBatchSplitTask(ctx context.Context, payload BatchSplitPayload) error

	PublishInferenceTask(ctx context.Context, payload InferenceTaskPayload) error

	PublishFinetuneTask(ctx context.Context, payload FinetuneTaskPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
