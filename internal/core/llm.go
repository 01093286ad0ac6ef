package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sentiment-backend/internal/core/types"
	"sentiment-backend/pkg/api"

	"github.com/openai/openai-go"
)

const llmExamplesFile = "examples.json"

// Few-shot prompt size is capped so finetuning with a large sample set
// does not blow up the per-request token count.
const maxFewShotExamples = 16

const llmSystemPrompt = `You are a sentiment classifier. Classify the user's text as exactly one of: positive, negative, neutral.
Respond with a single JSON object of the form {"label": "<label>", "confidence": <0.0-1.0>} and nothing else.`

// LLMModel classifies via a chat completion with few-shot examples.
// Finetuning replaces the example set rather than touching weights.
type LLMModel struct {
	client    openai.Client
	modelName string
	examples  []api.Sample
}

func LoadLLMModel(modelName, modelDir string) (Model, error) {
	if modelName == "" {
		return nil, fmt.Errorf("llm model name not configured")
	}

	m := &LLMModel{
		client:    openai.NewClient(),
		modelName: modelName,
	}

	if modelDir != "" {
		data, err := os.ReadFile(filepath.Join(modelDir, llmExamplesFile))
		if err == nil {
			if err := json.Unmarshal(data, &m.examples); err != nil {
				return nil, fmt.Errorf("parse examples: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read examples: %w", err)
		}
	}

	return m, nil
}

type llmVerdict struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func parseLLMVerdict(content string) (llmVerdict, error) {
	// Models occasionally wrap the JSON in a code fence despite the
	// instructions, so locate the object instead of trusting the framing.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return llmVerdict{}, fmt.Errorf("no JSON object in completion: %q", content)
	}

	var v llmVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return llmVerdict{}, fmt.Errorf("parse completion: %w", err)
	}
	if v.Confidence <= 0 || v.Confidence > 1 {
		v.Confidence = 0.5
	}
	return v, nil
}

func (m *LLMModel) Predict(ctx context.Context, text string) (types.Prediction, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(llmSystemPrompt),
	}
	for _, ex := range m.examples {
		messages = append(messages,
			openai.UserMessage(ex.Text),
			openai.AssistantMessage(fmt.Sprintf(`{"label": %q, "confidence": 0.95}`, types.NormalizeLabel(ex.Label))),
		)
	}
	messages = append(messages, openai.UserMessage(text))

	res, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       m.modelName,
		Temperature: openai.Float(0),
	})
	if err != nil {
		return types.Prediction{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return types.Prediction{}, fmt.Errorf("chat completion returned no choices")
	}

	verdict, err := parseLLMVerdict(res.Choices[0].Message.Content)
	if err != nil {
		return types.Prediction{}, err
	}

	label := types.NormalizeLabel(verdict.Label)
	scores := make(map[types.Label]float64, len(types.Labels))
	remainder := (1 - verdict.Confidence) / float64(len(types.Labels)-1)
	for _, l := range types.Labels {
		if l == label {
			scores[l] = verdict.Confidence
		} else {
			scores[l] = remainder
		}
	}

	return types.Prediction{
		Label:      label,
		Confidence: verdict.Confidence,
		Scores:     scores,
		RawLabel:   verdict.Label,
	}, nil
}

func (m *LLMModel) Finetune(samples []api.Sample) error {
	if len(samples) == 0 {
		return fmt.Errorf("no samples provided")
	}
	if len(samples) > maxFewShotExamples {
		samples = samples[:maxFewShotExamples]
	}
	m.examples = samples
	return nil
}

func (m *LLMModel) Save(dir string) error {
	data, err := json.MarshalIndent(m.examples, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal examples: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, llmExamplesFile), data, 0644)
}

func (m *LLMModel) Release() {}
