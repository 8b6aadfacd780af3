// Package vocab holds the canonical grocery vocabulary and answers
// nearest-neighbor queries against it for item name normalization.
package vocab

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Embedder turns text into a fixed-dimension vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrEmptyVocabulary indicates an index build was attempted with no entries
var ErrEmptyVocabulary = errors.New("vocabulary is empty")

// Match is one nearest-neighbor result
type Match struct {
	Name     string
	Distance float32
}

// Index is a flat nearest-neighbor index over the vocabulary, using squared
// Euclidean distance. It is built once and read-only afterwards, so it is
// safe to share across callers without locking.
type Index struct {
	embedder  Embedder
	names     []string
	vectors   [][]float32
	dimension int
}

// Load reads a vocabulary file, one canonical item name per line. Blank
// lines are skipped.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary file: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vocabulary file: %w", err)
	}

	return names, nil
}

// Build embeds every name and constructs the index. Any embedding failure
// fails the whole build.
func Build(ctx context.Context, embedder Embedder, names []string) (*Index, error) {
	if len(names) == 0 {
		return nil, ErrEmptyVocabulary
	}

	vectors := make([][]float32, 0, len(names))
	for _, name := range names {
		vector, err := embedder.Embed(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("embedding %q: %w", name, err)
		}
		vectors = append(vectors, vector)
	}

	return BuildFromVectors(embedder, names, vectors)
}

// BuildFromVectors constructs the index from precomputed embeddings, e.g.
// restored from the persisted embedding cache. The dimension is fixed by the
// first vector; a vector of any other dimension is a non-conforming
// embedding and fails the build.
func BuildFromVectors(embedder Embedder, names []string, vectors [][]float32) (*Index, error) {
	if len(names) == 0 {
		return nil, ErrEmptyVocabulary
	}
	if len(names) != len(vectors) {
		return nil, fmt.Errorf("vocabulary has %d names but %d vectors", len(names), len(vectors))
	}

	dimension := len(vectors[0])
	if dimension == 0 {
		return nil, fmt.Errorf("embedding for %q is empty", names[0])
	}
	for i, vector := range vectors {
		if len(vector) != dimension {
			return nil, fmt.Errorf("embedding for %q has dimension %d, expected %d", names[i], len(vector), dimension)
		}
	}

	return &Index{
		embedder:  embedder,
		names:     names,
		vectors:   vectors,
		dimension: dimension,
	}, nil
}

// NearestNeighbor embeds the query and returns the k closest vocabulary
// entries by squared Euclidean distance, ascending. Ties keep insertion
// order. k larger than the vocabulary returns every entry.
func (idx *Index) NearestNeighbor(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 {
		k = 1
	}

	queryVector, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query %q: %w", query, err)
	}
	if len(queryVector) != idx.dimension {
		return nil, fmt.Errorf("query embedding has dimension %d, expected %d", len(queryVector), idx.dimension)
	}

	order := make([]int, len(idx.vectors))
	distances := make([]float32, len(idx.vectors))
	for i, vector := range idx.vectors {
		order[i] = i
		distances[i] = squaredL2(queryVector, vector)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return distances[order[a]] < distances[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}
	matches := make([]Match, 0, k)
	for _, i := range order[:k] {
		matches = append(matches, Match{Name: idx.names[i], Distance: distances[i]})
	}

	return matches, nil
}

// Names returns the vocabulary in insertion order
func (idx *Index) Names() []string {
	return idx.names
}

// Dimension returns the embedding dimension the index was built with
func (idx *Index) Dimension() int {
	return idx.dimension
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
