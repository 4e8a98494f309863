package embedding

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/news2vector/newsrag/common/logger"
)

// Lazy wraps a Provider with single-flight warmup: the first caller probes the
// backend with a tiny embed, concurrent first callers share that one probe, and
// later calls skip it entirely. A failed warmup is not sticky; the next call
// retries it.
type Lazy struct {
	inner  Provider
	warm   int32
	flight singleflight.Group
}

// NewLazy wraps inner with warmup coordination.
func NewLazy(inner Provider) *Lazy {
	return &Lazy{inner: inner}
}

func (l *Lazy) Dimensions() int { return l.inner.Dimensions() }

func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.warmup(ctx); err != nil {
		return nil, err
	}
	return l.inner.Embed(ctx, text)
}

func (l *Lazy) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.warmup(ctx); err != nil {
		return nil, err
	}
	return l.inner.EmbedBatch(ctx, texts)
}

func (l *Lazy) warmup(ctx context.Context) error {
	if atomic.LoadInt32(&l.warm) == 1 {
		return nil
	}
	_, err, _ := l.flight.Do("warmup", func() (interface{}, error) {
		if atomic.LoadInt32(&l.warm) == 1 {
			return nil, nil
		}
		if _, err := l.inner.Embed(ctx, "warmup"); err != nil {
			return nil, err
		}
		atomic.StoreInt32(&l.warm, 1)
		logger.Debugf("embedding: backend warmed up")
		return nil, nil
	})
	return err
}
