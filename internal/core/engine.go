package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"sentiment-backend/internal/core/utils"
	"sentiment-backend/internal/storage"

	"github.com/google/uuid"
)

// ModelEngine loads models from the artifact store and keeps them resident
// for the lifetime of the process. Both the API (synchronous analysis) and
// the worker (batch tasks) go through it so a model is only initialized once.
type ModelEngine struct {
	storage       storage.Provider
	loaders       map[ModelType]ModelLoader
	localModelDir string
	modelBucket   string

	loadLock utils.MutexMap

	mu     sync.RWMutex
	loaded map[uuid.UUID]Model
}

func NewModelEngine(store storage.Provider, loaders map[ModelType]ModelLoader, localModelDir, modelBucket string) *ModelEngine {
	return &ModelEngine{
		storage:       store,
		loaders:       loaders,
		localModelDir: localModelDir,
		modelBucket:   modelBucket,
		loadLock:      utils.NewMutexMap(100),
		loaded:        make(map[uuid.UUID]Model),
	}
}

func (e *ModelEngine) getModelDir(modelId uuid.UUID) string {
	return filepath.Join(e.localModelDir, modelId.String())
}

// LoadModel returns the cached instance or loads it from the artifact store.
// Models with an empty artifactPrefix carry no stored files (the built-in
// lexicon, the base LLM) and load from their embedded defaults.
func (e *ModelEngine) LoadModel(ctx context.Context, modelId uuid.UUID, modelType ModelType, artifactPrefix string) (Model, error) {
	e.mu.RLock()
	model, ok := e.loaded[modelId]
	e.mu.RUnlock()
	if ok {
		return model, nil
	}

	if err := e.loadLock.Lock(modelId.String()); err != nil {
		return nil, fmt.Errorf("too many concurrent model loads: %w", err)
	}
	defer e.loadLock.Unlock(modelId.String()) //nolint:errcheck

	e.mu.RLock()
	model, ok = e.loaded[modelId]
	e.mu.RUnlock()
	if ok {
		return model, nil
	}

	loader, ok := e.loaders[modelType]
	if !ok {
		return nil, fmt.Errorf("no loader registered for model type %s", modelType)
	}

	localDir, err := e.fetchArtifact(ctx, modelId, artifactPrefix)
	if err != nil {
		return nil, err
	}

	model, err = loader(localDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	e.mu.Lock()
	e.loaded[modelId] = model
	e.mu.Unlock()

	return model, nil
}

// LoadFresh loads a private instance, bypassing the shared cache. Used for
// finetuning, which mutates the model in place; the caller owns the returned
// instance and must Release it.
func (e *ModelEngine) LoadFresh(ctx context.Context, modelId uuid.UUID, modelType ModelType, artifactPrefix string) (Model, error) {
	loader, ok := e.loaders[modelType]
	if !ok {
		return nil, fmt.Errorf("no loader registered for model type %s", modelType)
	}

	localDir, err := e.fetchArtifact(ctx, modelId, artifactPrefix)
	if err != nil {
		return nil, err
	}

	return loader(localDir)
}

func (e *ModelEngine) fetchArtifact(ctx context.Context, modelId uuid.UUID, artifactPrefix string) (string, error) {
	if artifactPrefix == "" {
		return "", nil
	}

	localDir := e.getModelDir(modelId)

	if _, err := os.Stat(localDir); os.IsNotExist(err) {
		slog.Info("model not found locally, downloading from object store", "model_id", modelId)

		if err := e.storage.DownloadDir(ctx, e.modelBucket, artifactPrefix, localDir, false); err != nil {
			return "", fmt.Errorf("failed to download model artifact: %w", err)
		}
	}

	return localDir, nil
}

// Evict drops a cached model, releasing its resources. The next LoadModel
// call reloads it from the artifact store.
func (e *ModelEngine) Evict(modelId uuid.UUID) {
	e.mu.Lock()
	model, ok := e.loaded[modelId]
	delete(e.loaded, modelId)
	e.mu.Unlock()

	if ok {
		model.Release()
	}
}

func (e *ModelEngine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, model := range e.loaded {
		model.Release()
		delete(e.loaded, id)
	}
}
