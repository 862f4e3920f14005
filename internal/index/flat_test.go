package index

import (
	"errors"
	"math"
	"testing"

	"med-search-go/internal/model"
)

func item(id string) model.DatasetItem {
	return model.DatasetItem{ID: id, Dataset: "test", Type: model.TypeText}
}

func TestFlatAddRejectsLengthMismatch(t *testing.T) {
	idx := NewFlat(2)
	err := idx.Add([][]float32{{1, 0}, {0, 1}}, []model.DatasetItem{item("a")})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("index should stay empty after rejected batch, got %d", idx.Len())
	}
}

func TestFlatAddRejectsDimensionMismatch(t *testing.T) {
	idx := NewFlat(3)
	err := idx.Add([][]float32{{1, 0}}, []model.DatasetItem{item("a")})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestFlatSearchOrdersByCosine(t *testing.T) {
	idx := NewFlat(2)
	vectors := [][]float32{
		{1, 0},   // a
		{0, 1},   // b
		{10, 10}, // c, 归一化后与查询夹角 45 度
	}
	items := []model.DatasetItem{item("a"), item("b"), item("c")}
	if err := idx.Add(vectors, items); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := idx.Search([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	wantOrder := []string{"a", "c", "b"}
	for i, want := range wantOrder {
		if results[i].Item.ID != want {
			t.Errorf("result[%d] = %s, want %s", i, results[i].Item.ID, want)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted descending at %d: %f > %f", i, results[i].Score, results[i-1].Score)
		}
	}
	if math.Abs(float64(results[0].Score)-1.0) > 1e-5 {
		t.Errorf("identical vector should score ~1.0, got %f", results[0].Score)
	}
}

func TestFlatSearchZeroVectorIsSafe(t *testing.T) {
	idx := NewFlat(2)
	if err := idx.Add([][]float32{{1, 0}}, []model.DatasetItem{item("a")}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := idx.Search([]float32{0, 0}, 1)
	if err != nil {
		t.Fatalf("zero vector query must not error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Score != 0 {
		t.Errorf("zero vector query should score 0, got %f", results[0].Score)
	}
}

func TestFlatSearchTopKBounds(t *testing.T) {
	idx := NewFlat(2)
	if err := idx.Add([][]float32{{1, 0}, {0, 1}}, []model.DatasetItem{item("a"), item("b")}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := idx.Search([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("topK beyond size should return all entries, got %d", len(results))
	}

	results, err = idx.Search([]float32{1, 0}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("topK=0 should return no results, got %d", len(results))
	}

	empty := NewFlat(2)
	results, err = empty.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search on empty index: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty index should return no results, got %d", len(results))
	}
}

func TestFlatSearchRejectsWrongQueryDimension(t *testing.T) {
	idx := NewFlat(3)
	if _, err := idx.Search([]float32{1, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize([3 4]) = %v, want [0.6 0.8]", v)
	}

	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector should stay zero, got %v", zero)
	}
}
