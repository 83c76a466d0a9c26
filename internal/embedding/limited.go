package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limited splits batches to at most batchSize texts and waits on a token
// bucket before every provider call.
type Limited struct {
	next      Embedder
	limiter   *rate.Limiter
	batchSize int
}

// NewLimited wraps next. perSecond <= 0 disables limiting.
func NewLimited(next Embedder, perSecond float64, burst, batchSize int) *Limited {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, burst), batchSize: batchSize}
}

// Model implements Embedder.
func (l *Limited) Model() string { return l.next.Model() }

// Embed implements Embedder.
func (l *Limited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}
	return l.next.Embed(ctx, text)
}

// EmbedBatch implements Embedder.
func (l *Limited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += l.batchSize {
		end := min(start+l.batchSize, len(texts))
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding rate limit: %w", err)
		}
		vecs, err := l.next.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if err := checkCount(l.next.Model(), end-start, len(vecs)); err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}
