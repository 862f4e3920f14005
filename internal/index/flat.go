// Package index 实现了一个 FAISS 风格的扁平内积向量索引。
// 向量在加入索引前做 L2 归一化，因此内积得分即余弦相似度。
package index

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"sync"

	"med-search-go/internal/model"
)

var (
	// ErrDimensionMismatch 表示向量维度与索引维度不一致。
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrLengthMismatch 表示向量数量与条目数量不一致，违反位置对齐不变量。
	ErrLengthMismatch = errors.New("vectors and items length mismatch")
)

// Scored 是一次索引查询的单条命中，Item 与向量按位置严格对应。
type Scored struct {
	Item  model.DatasetItem
	Score float32
}

// Flat 是追加式的扁平内积索引。向量与条目成对追加，读写由 RWMutex 保护，
// 重建期间的查询不会与写入交叠。
type Flat struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	items   []model.DatasetItem
}

// NewFlat 创建一个指定维度的空索引。
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

// Add 将一批向量与对应条目成对追加到索引中。向量在此处归一化，
// 两个切片长度不一致或维度不匹配时整批拒绝。
func (f *Flat) Add(vectors [][]float32, items []model.DatasetItem) error {
	if len(vectors) != len(items) {
		return fmt.Errorf("%w: %d vectors, %d items", ErrLengthMismatch, len(vectors), len(items))
	}
	for _, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, f.dim, len(v))
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range vectors {
		f.vectors = append(f.vectors, Normalize(v))
		f.items = append(f.items, items[i])
	}
	return nil
}

// Search 返回与查询向量内积最大的 topK 条结果，按得分降序。
// 查询向量同样先归一化；全零向量归一化后仍为全零，所有得分为 0，不会引发错误。
func (f *Flat) Search(query []float32, topK int) ([]Scored, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, f.dim, len(query))
	}
	if topK <= 0 {
		return []Scored{}, nil
	}

	q := Normalize(query)

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.vectors) == 0 {
		return []Scored{}, nil
	}

	// 最小堆维护 top-k，淘汰当前最小得分
	h := &scoredHeap{}
	heap.Init(h)
	for i, v := range f.vectors {
		score := dot(q, v)
		if h.Len() < topK {
			heap.Push(h, Scored{Item: f.items[i], Score: score})
		} else if score > (*h)[0].Score {
			heap.Pop(h)
			heap.Push(h, Scored{Item: f.items[i], Score: score})
		}
	}

	results := make([]Scored, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(Scored)
	}
	return results, nil
}

// Len 返回索引中的条目数。
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Dim 返回索引的向量维度。
func (f *Flat) Dim() int {
	return f.dim
}

// Snapshot 返回向量与条目的浅拷贝切片，供产物序列化与文档镜像使用。
func (f *Flat) Snapshot() ([][]float32, []model.DatasetItem) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	vectors := make([][]float32, len(f.vectors))
	copy(vectors, f.vectors)
	items := make([]model.DatasetItem, len(f.items))
	copy(items, f.items)
	return vectors, items
}

// Normalize 将向量 L2 归一化，零向量原样返回。
func Normalize(v []float32) []float32 {
	var norm float32
	for _, val := range v {
		norm += val * val
	}
	if norm == 0 {
		return v
	}
	norm = float32(math.Sqrt(float64(norm)))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// scoredHeap 是按得分排序的最小堆。
type scoredHeap []Scored

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(Scored)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
