// Package ingest runs the collection-to-index pipeline: collect, skip what is
// already stored, normalize, dedupe, chunk, embed, and insert.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/news2vector/newsrag/collector"
	"github.com/news2vector/newsrag/common/logger"
	"github.com/news2vector/newsrag/dedup"
	"github.com/news2vector/newsrag/embedding"
	"github.com/news2vector/newsrag/metrics"
	"github.com/news2vector/newsrag/preprocess"
	"github.com/news2vector/newsrag/schema"
	"github.com/news2vector/newsrag/textsplitter"
	"github.com/news2vector/newsrag/vectordb"
)

// Source produces raw news items, normally the Naver collector.
type Source interface {
	CollectByKeywords(ctx context.Context, keywords []string) ([]collector.NewsItem, error)
}

// RunStats summarizes one ingestion run.
type RunStats struct {
	Collected     int
	AlreadyStored int
	Duplicates    int
	Chunks        int
	Inserted      int
}

// Pipeline wires the ingestion stages. One Run call is one dedup scope.
type Pipeline struct {
	source    Source
	store     vectordb.Store
	embedder  embedding.Provider
	preproc   *preprocess.Preprocessor
	splitter  *textsplitter.Splitter
	batchSize int
	workers   int
}

func New(source Source, store vectordb.Store, embedder embedding.Provider, splitter *textsplitter.Splitter, batchSize, workers int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 32
	}
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		source:    source,
		store:     store,
		embedder:  embedder,
		preproc:   preprocess.New(),
		splitter:  splitter,
		batchSize: batchSize,
		workers:   workers,
	}
}

// Run collects articles for the keywords and indexes everything new.
func (p *Pipeline) Run(ctx context.Context, keywords []string) (*RunStats, error) {
	stats := &RunStats{}

	items, err := p.source.CollectByKeywords(ctx, keywords)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	stats.Collected = len(items)

	dd := dedup.New()
	var chunks []schema.NewsChunk
	for _, item := range items {
		stored, err := p.store.ExistsByURL(ctx, item.URL)
		if err != nil {
			return nil, fmt.Errorf("check stored url: %w", err)
		}
		if stored {
			stats.AlreadyStored++
			metrics.IncDuplicateSkipped("stored")
			continue
		}

		text := p.preproc.Normalize(item.FullText())
		if dd.IsDuplicate(item.URL, item.Title, text) {
			stats.Duplicates++
			metrics.IncDuplicateSkipped("run")
			continue
		}
		chunks = append(chunks, p.splitter.Split(text, item.Title, item.URL, item.PublishedAt)...)
	}
	stats.Chunks = len(chunks)
	if len(chunks) == 0 {
		logger.Infof("ingest: nothing new to index (collected=%d stored=%d dups=%d)",
			stats.Collected, stats.AlreadyStored, stats.Duplicates)
		return stats, nil
	}

	records, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}
	inserted, err := p.store.Insert(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("insert records: %w", err)
	}
	stats.Inserted = inserted
	metrics.AddIngestedChunks(inserted)

	logger.Infof("ingest: run complete collected=%d stored=%d dups=%d chunks=%d inserted=%d",
		stats.Collected, stats.AlreadyStored, stats.Duplicates, stats.Chunks, stats.Inserted)
	return stats, nil
}

// embedChunks embeds batches concurrently while keeping record order aligned
// with the chunk order.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []schema.NewsChunk) ([]vectordb.Record, error) {
	records := make([]vectordb.Record, len(chunks))

	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return nil, fmt.Errorf("create embed pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, end := start, end

		wg.Add(1)
		task := func() {
			defer wg.Done()
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = chunks[i].Content
			}
			vecs, err := p.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			for i := start; i < end; i++ {
				records[i] = vectordb.Record{
					Vector:      vecs[i-start],
					Text:        chunks[i].Content,
					Title:       chunks[i].SourceTitle,
					PublishedAt: chunks[i].PublishedAt,
					URL:         chunks[i].SourceURL,
				}
			}
		}
		if err := pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("embed chunks: %w", firstErr)
	}
	return records, nil
}
