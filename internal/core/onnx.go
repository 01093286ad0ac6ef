package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"sentiment-backend/internal/core/types"
	"sentiment-backend/pkg/api"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

// InitOnnxRuntime loads the onnxruntime shared library. Safe to call from
// multiple binaries; the environment is initialized at most once.
func InitOnnxRuntime(libraryPath string) error {
	initOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	return initErr
}

const onnxMaxTokens = 512

// onnxLabelFile maps output indices to raw label strings, e.g.
// ["negative", "positive"] for a two-class head.
const onnxLabelFile = "labels.json"

func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("label file %s is empty", path)
	}
	return labels, nil
}

func softmax(logits []float32) []float64 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(float64(v - max))
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// OnnxSentimentModel wraps a transformer sequence-classification head
// exported to ONNX, along with its matching tokenizer.
type OnnxSentimentModel struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	labels    []string
}

func LoadOnnxSentimentModel(modelDir string) (Model, error) {
	onnxBytes, err := os.ReadFile(filepath.Join(modelDir, "model.onnx"))
	if err != nil {
		return nil, fmt.Errorf("read onnx model: %w", err)
	}

	labels, err := loadLabels(filepath.Join(modelDir, onnxLabelFile))
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}

	tk, err := tokenizers.FromFile(filepath.Join(modelDir, "tokenizer.json"))
	if err != nil {
		return nil, fmt.Errorf("tokenizer load: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(
		onnxBytes,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		nil,
	)
	if err != nil {
		tk.Close()
		return nil, fmt.Errorf("failed to create in-memory session: %w", err)
	}

	return &OnnxSentimentModel{
		session:   session,
		tokenizer: tk,
		labels:    labels,
	}, nil
}

func (m *OnnxSentimentModel) Predict(_ context.Context, text string) (types.Prediction, error) {
	enc := m.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAllAttributes())

	n := len(enc.IDs)
	if n == 0 {
		return types.Prediction{}, fmt.Errorf("tokenizer produced no tokens")
	}
	if n > onnxMaxTokens {
		n = onnxMaxTokens
	}

	ids := make([]int64, n)
	mask := make([]int64, n)
	for i := 0; i < n; i++ {
		ids[i] = int64(enc.IDs[i])
		mask[i] = 1
	}

	B, L, N := int64(1), int64(n), int64(len(m.labels))
	idsT, err := ort.NewTensor(ort.NewShape(B, L), ids)
	if err != nil {
		return types.Prediction{}, err
	}
	defer idsT.Destroy()
	maskT, err := ort.NewTensor(ort.NewShape(B, L), mask)
	if err != nil {
		return types.Prediction{}, err
	}
	defer maskT.Destroy()
	outT, err := ort.NewEmptyTensor[float32](ort.NewShape(B, N))
	if err != nil {
		return types.Prediction{}, err
	}
	defer outT.Destroy()

	if err := m.session.Run([]ort.Value{idsT, maskT}, []ort.Value{outT}); err != nil {
		return types.Prediction{}, fmt.Errorf("session run error: %w", err)
	}

	probs := softmax(outT.GetData())

	scores := make(map[types.Label]float64, len(m.labels))
	best, bestProb := 0, probs[0]
	for i, p := range probs {
		scores[types.NormalizeLabel(m.labels[i])] += p
		if p > bestProb {
			best, bestProb = i, p
		}
	}

	return types.Prediction{
		Label:      types.NormalizeLabel(m.labels[best]),
		Confidence: bestProb,
		Scores:     scores,
		RawLabel:   m.labels[best],
	}, nil
}

func (m *OnnxSentimentModel) Finetune(_ []api.Sample) error {
	return fmt.Errorf("finetune not supported for ONNX models")
}

func (m *OnnxSentimentModel) Save(_ string) error {
	return fmt.Errorf("save not supported for ONNX models")
}

func (m *OnnxSentimentModel) Release() {
	m.session.Destroy()
	m.tokenizer.Close()
}
