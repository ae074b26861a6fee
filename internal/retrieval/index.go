package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

const defaultTopK = 4

type indexEntry struct {
	doc    *schema.Document
	vector []float64
	norm   float64
}

// MemoryIndex 单次调用内使用的内存向量索引，按余弦相似度做精确检索。
// 不做持久化，也不在调用之间复用。
type MemoryIndex struct {
	mu       sync.RWMutex
	embedder embedding.Embedder
	entries  []indexEntry
	dim      int
	topK     int
}

var (
	_ indexer.Indexer     = (*MemoryIndex)(nil)
	_ retriever.Retriever = (*MemoryIndex)(nil)
)

// NewMemoryIndex 创建内存索引，topK<=0 时使用默认值4
func NewMemoryIndex(embedder embedding.Embedder, topK int) *MemoryIndex {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &MemoryIndex{embedder: embedder, topK: topK}
}

// Len 返回已索引的分块数
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Store 实现 indexer.Indexer。已带向量的文档直接入库，其余文档先批量向量化。
func (m *MemoryIndex) Store(ctx context.Context, docs []*schema.Document, opts ...indexer.Option) ([]string, error) {
	options := indexer.GetCommonOptions(&indexer.Options{Embedding: m.embedder}, opts...)

	var (
		pending []int
		texts   []string
	)
	for i, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("document %d is nil", i)
		}
		if len(doc.DenseVector()) == 0 {
			pending = append(pending, i)
			texts = append(texts, doc.Content)
		}
	}

	if len(pending) > 0 {
		if options.Embedding == nil {
			return nil, fmt.Errorf("%w: no embedder configured", ErrEmbedding)
		}
		vectors, err := options.Embedding.EmbedStrings(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
		}
		if len(vectors) != len(pending) {
			return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbedding, len(pending), len(vectors))
		}
		for j, i := range pending {
			docs[i].WithDenseVector(vectors[j])
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		vec := doc.DenseVector()
		if len(vec) == 0 {
			return nil, fmt.Errorf("document %s has an empty vector", doc.ID)
		}
		if m.dim == 0 {
			m.dim = len(vec)
		} else if len(vec) != m.dim {
			return nil, fmt.Errorf("vector dimension mismatch for %s: want %d, got %d", doc.ID, m.dim, len(vec))
		}
		m.entries = append(m.entries, indexEntry{doc: doc, vector: vec, norm: vectorNorm(vec)})
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// Retrieve 实现 retriever.Retriever：向量化查询后返回余弦相似度最高的 topK 个分块
func (m *MemoryIndex) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := m.topK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK, Embedding: m.embedder}, opts...)
	if options.Embedding == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrEmbedding)
	}

	vectors, err := options.Embedding.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 query vector, got %d", ErrEmbedding, len(vectors))
	}

	k := defaultTopK
	if options.TopK != nil && *options.TopK > 0 {
		k = *options.TopK
	}
	return m.Search(vectors[0], k, options.ScoreThreshold)
}

// Search 按给定向量检索，结果按相似度降序，分数相同时保持入库顺序
func (m *MemoryIndex) Search(query []float64, k int, threshold *float64) ([]*schema.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return nil, nil
	}
	if len(query) != m.dim {
		return nil, fmt.Errorf("query dimension mismatch: want %d, got %d", m.dim, len(query))
	}

	type scored struct {
		entry indexEntry
		score float64
	}
	qNorm := vectorNorm(query)
	results := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		s := cosine(query, qNorm, e.vector, e.norm)
		if threshold != nil && s < *threshold {
			continue
		}
		results = append(results, scored{entry: e, score: s})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	if k > len(results) {
		k = len(results)
	}
	out := make([]*schema.Document, 0, k)
	for _, r := range results[:k] {
		doc := &schema.Document{ID: r.entry.doc.ID, Content: r.entry.doc.Content, MetaData: copyMeta(r.entry.doc.MetaData)}
		out = append(out, doc.WithScore(r.score))
	}
	return out, nil
}

func vectorNorm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func cosine(a []float64, aNorm float64, b []float64, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (aNorm * bNorm)
}

func copyMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
