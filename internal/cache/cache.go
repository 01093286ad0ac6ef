package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
	"sentiment-backend/internal/core/types"
)

// ErrMiss is returned by Get when no entry exists for the key.
var ErrMiss = errors.New("cache miss")

// ResultCache memoizes predictions keyed by (model, sanitized text) so
// repeated analyses of identical input skip inference entirely.
type ResultCache interface {
	Get(ctx context.Context, key string) (types.Prediction, error)

	Put(ctx context.Context, key string, pred types.Prediction) error
}

func Key(modelId uuid.UUID, text string) string {
	h := sha256.New()
	h.Write(modelId[:])
	h.Write([]byte(text))
	return "sentiment:" + hex.EncodeToString(h.Sum(nil))
}
