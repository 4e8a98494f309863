// Package vectordb stores and searches news chunk vectors in Milvus.
package vectordb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/news2vector/newsrag/common/logger"
	"github.com/news2vector/newsrag/config"
	"github.com/news2vector/newsrag/schema"
)

// Field and length limits of the news collection. Text longer than the VarChar
// limits is truncated at insert time.
const (
	fieldID        = "news_id"
	fieldEmbedding = "embedding"
	fieldText      = "original_text"
	fieldTitle     = "title"
	fieldPublished = "published_at"
	fieldURL       = "url"

	maxTextLen      = 2000
	maxTitleLen     = 512
	maxPublishedLen = 20
	maxURLLen       = 1024
)

// Record is one chunk row to be inserted.
type Record struct {
	Vector      []float32
	Text        string
	Title       string
	PublishedAt string
	URL         string
}

// Store is the persistence surface the retriever and ingest pipeline depend
// on. The Milvus implementation is the only production one; tests use fakes.
type Store interface {
	EnsureCollection(ctx context.Context) error
	Insert(ctx context.Context, records []Record) (int, error)
	Search(ctx context.Context, vector []float32, topK int) ([]schema.SearchHit, error)
	ExistsByURL(ctx context.Context, url string) (bool, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// MilvusStore implements Store against a Milvus 2.x deployment.
type MilvusStore struct {
	c          client.Client
	collection string
	dimensions int
	nlist      int
	nprobe     int
}

// NewMilvus connects and returns a store bound to the configured collection.
// EnsureCollection must still be called before the first insert or search.
func NewMilvus(ctx context.Context, cfg *config.VectorDBConfig, dimensions int) (*MilvusStore, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus at %s: %w", cfg.Address, err)
	}
	return &MilvusStore{
		c:          c,
		collection: cfg.Collection,
		dimensions: dimensions,
		nlist:      cfg.NList,
		nprobe:     cfg.NProbe,
	}, nil
}

// EnsureCollection creates the collection, index, and load state if absent.
// Safe to call repeatedly.
func (s *MilvusStore) EnsureCollection(ctx context.Context) error {
	has, err := s.c.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if !has {
		sch := entity.NewSchema().
			WithName(s.collection).
			WithDescription("stock news chunks with provenance").
			WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeInt64).WithIsPrimaryKey(true).WithIsAutoID(true)).
			WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dimensions))).
			WithField(entity.NewField().WithName(fieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxTextLen)).
			WithField(entity.NewField().WithName(fieldTitle).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxTitleLen)).
			WithField(entity.NewField().WithName(fieldPublished).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxPublishedLen)).
			WithField(entity.NewField().WithName(fieldURL).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxURLLen))
		if err := s.c.CreateCollection(ctx, sch, 1); err != nil {
			return fmt.Errorf("create collection %s: %w", s.collection, err)
		}
		logger.Infof("vectordb: created collection %s (dim=%d)", s.collection, s.dimensions)

		idx, err := entity.NewIndexIvfFlat(entity.L2, s.nlist)
		if err != nil {
			return fmt.Errorf("build ivf_flat index params: %w", err)
		}
		if err := s.c.CreateIndex(ctx, s.collection, fieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("create index on %s: %w", s.collection, err)
		}
	}
	if err := s.c.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("load collection %s: %w", s.collection, err)
	}
	return nil
}

// Insert writes records and flushes so they become searchable. Returns the
// number of rows written.
func (s *MilvusStore) Insert(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	vectors := make([][]float32, len(records))
	texts := make([]string, len(records))
	titles := make([]string, len(records))
	published := make([]string, len(records))
	urls := make([]string, len(records))
	for i, r := range records {
		if len(r.Vector) != s.dimensions {
			return 0, fmt.Errorf("record %d vector has %d dimensions, want %d", i, len(r.Vector), s.dimensions)
		}
		vectors[i] = r.Vector
		texts[i] = truncateRunes(r.Text, maxTextLen)
		titles[i] = truncateRunes(r.Title, maxTitleLen)
		published[i] = truncateRunes(r.PublishedAt, maxPublishedLen)
		urls[i] = truncateRunes(r.URL, maxURLLen)
	}

	_, err := s.c.Insert(ctx, s.collection, "",
		entity.NewColumnFloatVector(fieldEmbedding, s.dimensions, vectors),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldTitle, titles),
		entity.NewColumnVarChar(fieldPublished, published),
		entity.NewColumnVarChar(fieldURL, urls),
	)
	if err != nil {
		return 0, fmt.Errorf("insert %d records into %s: %w", len(records), s.collection, err)
	}
	if err := s.c.Flush(ctx, s.collection, false); err != nil {
		return 0, fmt.Errorf("flush %s: %w", s.collection, err)
	}
	return len(records), nil
}

// Search runs an L2 nearest-neighbor query and maps distances to similarity
// scores with 1/(1+distance).
func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int) ([]schema.SearchHit, error) {
	sp, err := entity.NewIndexIvfFlatSearchParam(s.nprobe)
	if err != nil {
		return nil, fmt.Errorf("build search params: %w", err)
	}
	results, err := s.c.Search(ctx, s.collection, nil, "",
		[]string{fieldText, fieldTitle, fieldPublished, fieldURL},
		[]entity.Vector{entity.FloatVector(vector)},
		fieldEmbedding, entity.L2, topK, sp,
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.collection, err)
	}

	var hits []schema.SearchHit
	for _, res := range results {
		ids, ok := res.IDs.(*entity.ColumnInt64)
		if !ok {
			return nil, fmt.Errorf("unexpected id column type %T", res.IDs)
		}
		texts := varcharData(res.Fields, fieldText)
		titles := varcharData(res.Fields, fieldTitle)
		published := varcharData(res.Fields, fieldPublished)
		urls := varcharData(res.Fields, fieldURL)

		for i := 0; i < res.ResultCount; i++ {
			distance := float64(res.Scores[i])
			hit := schema.SearchHit{
				ID:          ids.Data()[i],
				Distance:    distance,
				VectorScore: 1.0 / (1.0 + distance),
				MatchType:   schema.MatchVector,
			}
			if i < len(texts) {
				hit.Text = texts[i]
			}
			if i < len(titles) {
				hit.Title = titles[i]
			}
			if i < len(published) {
				hit.PublishedAt = published[i]
			}
			if i < len(urls) {
				hit.URL = urls[i]
			}
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

// ExistsByURL reports whether any chunk of the article at url is already
// stored. Used to skip re-ingesting collected articles.
func (s *MilvusStore) ExistsByURL(ctx context.Context, url string) (bool, error) {
	expr := fmt.Sprintf("%s == %s", fieldURL, strconv.Quote(url))
	rs, err := s.c.Query(ctx, s.collection, nil, expr, []string{fieldID}, client.WithLimit(1))
	if err != nil {
		return false, fmt.Errorf("query by url: %w", err)
	}
	for _, col := range rs {
		if col.Name() == fieldID {
			return col.Len() > 0, nil
		}
	}
	return false, nil
}

// Count returns the stored row count from collection statistics.
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	stats, err := s.c.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("collection statistics: %w", err)
	}
	n, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

func (s *MilvusStore) Close() error { return s.c.Close() }

func varcharData(cols []entity.Column, name string) []string {
	for _, col := range cols {
		if col.Name() != name {
			continue
		}
		if vc, ok := col.(*entity.ColumnVarChar); ok {
			return vc.Data()
		}
	}
	return nil
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	// VarChar max_length counts characters; cut conservatively and drop a
	// trailing partial word.
	cut := string(r[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > limit/2 {
		cut = cut[:i]
	}
	return cut
}
