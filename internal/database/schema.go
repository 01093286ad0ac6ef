package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ModelQueued  string = "QUEUED"
	ModelLoading string = "LOADING"
	ModelReady   string = "READY"
	ModelFailed  string = "FAILED"
)

type Model struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	BaseModelId uuid.NullUUID `gorm:"type:uuid"`
	BaseModel   *Model        `gorm:"foreignKey:BaseModelId"`

	Name       string `gorm:"uniqueIndex;not null"`
	Type       string `gorm:"size:32;not null"`
	ExternalId string
	Version    string `gorm:"size:64"`
	Status     string `gorm:"size:20;not null"`
	Accuracy   float64
	Active     bool `gorm:"default:false"`

	// ArtifactPrefix is the object store prefix holding the model files,
	// empty for stateless model types.
	ArtifactPrefix string

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

const (
	JobQueued    string = "QUEUED"
	JobRunning   string = "RUNNING"
	JobCompleted string = "COMPLETED"
	JobFailed    string = "FAILED"
)

type BatchJob struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ModelId uuid.UUID `gorm:"type:uuid"`
	Model   *Model    `gorm:"foreignKey:ModelId"`

	Status string `gorm:"size:20;not null"`

	SourceBucket string
	SourceKey    string
	DestBucket   string
	IsUpload     bool

	CreationTime   time.Time
	CompletionTime sql.NullTime

	TotalTexts     int `gorm:"default:0"`
	SucceededTexts int `gorm:"default:0"`
	FailedTexts    int `gorm:"default:0"`

	// LabelCounts accumulates per-label tallies as tasks complete,
	// e.g. {"positive": 10, "negative": 3, "neutral": 1}.
	LabelCounts datatypes.JSON `gorm:"type:jsonb"`

	Tasks  []BatchTask `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
	Errors []JobError  `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
}

type BatchTask struct {
	JobId  uuid.UUID `gorm:"type:uuid;primaryKey"`
	TaskId int       `gorm:"primaryKey"`
	Job    *BatchJob `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`

	Status string `gorm:"size:20;not null"`

	// Line range [StartLine, EndLine) of the source object covered by this
	// task. Line 0 is the first record, headers excluded.
	StartLine int
	EndLine   int
	TextCount int

	CreationTime   time.Time
	StartTime      sql.NullTime
	CompletionTime sql.NullTime
}

type Analysis struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ModelId uuid.UUID     `gorm:"type:uuid;index"`
	JobId   uuid.NullUUID `gorm:"type:uuid;index"`

	Text           string
	SentimentLabel string `gorm:"size:16;index"`
	Confidence     float64
	Scores         datatypes.JSON `gorm:"type:jsonb"`
	LatencyMs      float64

	UserId    string `gorm:"size:64"`
	CreatedAt time.Time
}

type JobError struct {
	JobId     uuid.UUID `gorm:"type:uuid;primaryKey"`
	ErrorId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Error     string
	Timestamp time.Time
}

type FinetuneSample struct {
	Id      uuid.UUID `gorm:"type:uuid;primaryKey"`
	ModelId uuid.UUID `gorm:"type:uuid;index"`
	Text    string
	Label   string `gorm:"size:16"`
}
