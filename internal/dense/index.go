package dense

import (
	"container/heap"
	"errors"
	"fmt"
)

// NoRow marks an empty result slot
const NoRow = -1

// ErrDimensionMismatch is returned when a vector does not fit the index
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Neighbor is one search result: a row position and its inner product with the query
type Neighbor struct {
	Row   int
	Score float64
}

// FlatIndex is an exact inner-product index over row-major float32 vectors
type FlatIndex struct {
	dim     int
	vectors []float32
}

// NewFlatIndex creates an empty index for vectors of dimension dim
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

// Dim returns the vector dimension
func (f *FlatIndex) Dim() int { return f.dim }

// Len returns the number of rows
func (f *FlatIndex) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.vectors) / f.dim
}

// Add appends v as the next row
func (f *FlatIndex) Add(v []float32) error {
	if len(v) != f.dim {
		return fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(v), f.dim)
	}
	f.vectors = append(f.vectors, v...)
	return nil
}

// Row returns the vector stored at row i
func (f *FlatIndex) Row(i int) []float32 {
	return f.vectors[i*f.dim : (i+1)*f.dim]
}

// Search returns exactly k neighbors ranked by descending inner product.
// Slots beyond the number of rows hold NoRow. Equal scores keep row order.
func (f *FlatIndex) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(query), f.dim)
	}
	if k <= 0 {
		return []Neighbor{}, nil
	}

	h := make(minHeap, 0, k)
	for row := 0; row < f.Len(); row++ {
		n := Neighbor{Row: row, Score: dot(query, f.Row(row))}
		if len(h) < k {
			heap.Push(&h, n)
			continue
		}
		if better(n, h[0]) {
			h[0] = n
			heap.Fix(&h, 0)
		}
	}

	out := make([]Neighbor, k)
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Neighbor)
	}
	for i := f.Len(); i < k; i++ {
		out[i] = Neighbor{Row: NoRow}
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// better orders by score, then by lower row
func better(a, b Neighbor) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Row < b.Row
}

// minHeap keeps the worst retained neighbor at the root
type minHeap []Neighbor

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) { *h = append(*h, x.(Neighbor)) }

func (h *minHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
