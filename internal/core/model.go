package core

import (
	"context"

	"sentiment-backend/internal/core/types"
	"sentiment-backend/pkg/api"
)

// ModelType identifies the inference backend for a registry entry.
type ModelType string

const (
	OnnxTransformer ModelType = "onnx_transformer"
	Lexicon         ModelType = "lexicon"
	LLM             ModelType = "llm"
)

type Model interface {
	Predict(ctx context.Context, text string) (types.Prediction, error)

	Finetune(samples []api.Sample) error

	Save(dir string) error

	Release()
}

type ModelLoader func(modelDir string) (Model, error)

func ParseModelType(s string) ModelType {
	return ModelType(s)
}

// NewModelLoaders builds the type->loader registry. openAIModel names the
// chat model backing the llm type (e.g. "gpt-4o-mini").
func NewModelLoaders(openAIModel string) map[ModelType]ModelLoader {
	return map[ModelType]ModelLoader{
		OnnxTransformer: func(modelDir string) (Model, error) {
			return LoadOnnxSentimentModel(modelDir)
		},
		Lexicon: func(modelDir string) (Model, error) {
			return LoadLexiconModel(modelDir)
		},
		LLM: func(modelDir string) (Model, error) {
			return LoadLLMModel(openAIModel, modelDir)
		},
	}
}
