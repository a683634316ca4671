package store

import (
	"context"
	"sync"
)

// Memory keeps documents in process memory. The zero value is ready to use.
type Memory struct {
	mu         sync.Mutex
	benchmarks map[string][]BenchmarkDocument
	commits    map[string]map[string]CommitDocument
}

// NewMemory returns an empty Memory store
func NewMemory() *Memory {
	return &Memory{
		benchmarks: make(map[string][]BenchmarkDocument),
		commits:    make(map[string]map[string]CommitDocument),
	}
}

// IndexBenchmark implements Store
func (m *Memory) IndexBenchmark(_ context.Context, index string, doc *BenchmarkDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.benchmarks == nil {
		m.benchmarks = make(map[string][]BenchmarkDocument)
	}
	m.benchmarks[index] = append(m.benchmarks[index], *doc)
	return nil
}

// UpsertCommit implements Store
func (m *Memory) UpsertCommit(_ context.Context, index string, doc *CommitDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commits == nil {
		m.commits = make(map[string]map[string]CommitDocument)
	}
	if m.commits[index] == nil {
		m.commits[index] = make(map[string]CommitDocument)
	}
	m.commits[index][doc.SHA] = *doc
	return nil
}

// Close implements Store
func (m *Memory) Close() error { return nil }

// Benchmarks returns a copy of the documents inserted into index
func (m *Memory) Benchmarks(index string) []BenchmarkDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BenchmarkDocument(nil), m.benchmarks[index]...)
}

// Commits returns the commit documents of index keyed by sha
func (m *Memory) Commits(index string) map[string]CommitDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]CommitDocument, len(m.commits[index]))
	for k, v := range m.commits[index] {
		out[k] = v
	}
	return out
}
