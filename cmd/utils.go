package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"sentiment-backend/internal/core"
	"sentiment-backend/internal/database"
	"sentiment-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// InitializeLexiconModel seeds the built-in lexicon model. It carries its
// dictionary in the binary, so the registry entry is immediately ready and made
// active if nothing else is.
func InitializeLexiconModel(db *gorm.DB) {
	var model database.Model

	if err := db.Where(database.Model{Name: "lexicon-base"}).Attrs(database.Model{
		Id:           uuid.New(),
		Type:         string(core.Lexicon),
		Version:      "1",
		Status:       database.ModelReady,
		CreationTime: time.Now().UTC(),
	}).FirstOrCreate(&model).Error; err != nil {
		log.Fatalf("Failed to create lexicon model record: %v", err)
	}

	var active int64
	if err := db.Model(&database.Model{}).Where("active = ?", true).Count(&active).Error; err == nil && active == 0 {
		if err := db.Model(&database.Model{Id: model.Id}).Update("active", true).Error; err != nil {
			slog.Warn("failed to mark lexicon model active", "error", err)
		}
	}
}

// InitializeLLMModel seeds the LLM-backed model pointing at the given chat
// model. Skipped when no OpenAI credentials are configured.
func InitializeLLMModel(db *gorm.DB, chatModel string) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		slog.Warn("OPENAI_API_KEY not set, skipping llm model registration")
		return
	}

	if err := db.Where(database.Model{Name: "llm-base"}).Attrs(database.Model{
		Id:           uuid.New(),
		Type:         string(core.LLM),
		ExternalId:   chatModel,
		Version:      "1",
		Status:       database.ModelReady,
		CreationTime: time.Now().UTC(),
	}).FirstOrCreate(&database.Model{}).Error; err != nil {
		log.Fatalf("Failed to create llm model record: %v", err)
	}
}

// InitializeOnnxModel registers a transformer model and uploads its artifacts
// (model.onnx, tokenizer.json, labels.json) from localDir to the model bucket
// if not already present.
func InitializeOnnxModel(ctx context.Context, db *gorm.DB, store storage.Provider, bucket, name, localDir string) error {
	var model database.Model
	err := db.Where("name = ?", name).First(&model).Error

	isNew := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !isNew {
		return fmt.Errorf("error querying model: %w", err)
	}

	if isNew {
		model = database.Model{
			Id:           uuid.New(),
			Name:         name,
			Type:         string(core.OnnxTransformer),
			Version:      "1",
			Status:       database.ModelReady,
			CreationTime: time.Now().UTC(),
		}
		model.ArtifactPrefix = model.Id.String()

		if err := db.Create(&model).Error; err != nil {
			return fmt.Errorf("failed to create model record: %w", err)
		}
	}

	info, err := os.Stat(localDir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("local model dir does not exist, skipping upload", "dir", localDir)
			return nil
		}
		return fmt.Errorf("failed to stat local model dir %s: %w", localDir, err)
	}
	if !info.IsDir() {
		slog.Warn("local model path exists but is not a directory, skipping upload", "path", localDir)
		return nil
	}

	objs, err := store.ListObjects(ctx, bucket, model.Id.String()+"/")
	if err != nil {
		slog.Error("failed to list objects for model", "model_id", model.Id, "error", err)
	} else if len(objs) > 0 {
		slog.Info("model already uploaded, skipping upload", "model_id", model.Id)
		return nil
	}

	if err := store.UploadDir(ctx, bucket, model.Id.String(), localDir); err != nil {
		database.UpdateModelStatus(ctx, db, model.Id, database.ModelFailed) //nolint:errcheck
		return fmt.Errorf("error uploading model artifact: %w", err)
	}
	slog.Info("successfully uploaded model artifact", "model_id", model.Id)
	return nil
}
