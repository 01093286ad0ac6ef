package versions

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Snapshot of the schema at migration 0. These types are frozen copies so
// later schema changes do not silently rewrite old migrations.

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

	ArtifactPrefix string

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

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

	LabelCounts datatypes.JSON `gorm:"type:jsonb"`

	Tasks  []BatchTask `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
	Errors []JobError  `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
}

type BatchTask struct {
	JobId  uuid.UUID `gorm:"type:uuid;primaryKey"`
	TaskId int       `gorm:"primaryKey"`
	Job    *BatchJob `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`

	Status string `gorm:"size:20;not null"`

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

func Migration0(txn *gorm.DB) error {
	return txn.AutoMigrate(
		&Model{}, &BatchJob{}, &BatchTask{}, &Analysis{}, &JobError{}, &FinetuneSample{},
	)
}
