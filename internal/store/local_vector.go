package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"labreport/internal/embedding"
	"labreport/internal/logging"
)

// Manual chunk types.
const (
	ChunkSummary = "summary"
	ChunkSection = "section"
)

// ManualChunk is one searchable piece of an experiment manual.
type ManualChunk struct {
	ID         int64
	ManualID   string
	Kind       string
	Content    string
	Similarity float64 // set by SearchManual
}

// StoreManualChunk stores a chunk, embedding it when an engine is attached.
// Embedding failures are logged and the chunk is kept for keyword search.
func (s *LocalStore) StoreManualChunk(ctx context.Context, chunk ManualChunk) (int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "StoreManualChunk")
	defer timer.Stop()

	if chunk.Kind == "" {
		chunk.Kind = ChunkSection
	}

	s.mu.RLock()
	engine := s.embeddingEngine
	s.mu.RUnlock()

	var embJSON interface{}
	if engine != nil {
		vec, err := engine.Embed(ctx, chunk.Content)
		if err != nil {
			logging.StoreWarn("Embedding failed for manual %s chunk, storing without vector: %v", chunk.ManualID, err)
		} else {
			data, _ := json.Marshal(vec)
			embJSON = string(data)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO manual_chunks (manual_id, chunk_type, content, embedding, created_at) VALUES (?, ?, ?, ?, ?)`,
		chunk.ManualID, chunk.Kind, chunk.Content, embJSON, formatTime(s.now()),
	)
	if err != nil {
		logging.StoreError("Failed to store manual chunk: %v", err)
		return 0, fmt.Errorf("store manual chunk: %w", err)
	}
	id, _ := res.LastInsertId()
	logging.StoreDebug("Manual chunk stored: manual=%s type=%s id=%d len=%d", chunk.ManualID, chunk.Kind, id, len(chunk.Content))
	return id, nil
}

// SearchManual returns up to k chunks of one manual and kind most relevant to
// query. With an embedding engine it ranks by cosine similarity; otherwise,
// or when no chunk carries a vector, it falls back to keyword matching.
func (s *LocalStore) SearchManual(ctx context.Context, manualID, kind, query string, k int) ([]ManualChunk, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SearchManual")
	defer timer.Stop()

	if k <= 0 {
		k = 3
	}

	chunks, vectors, err := s.loadManualChunks(ctx, manualID, kind)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	engine := s.embeddingEngine
	s.mu.RUnlock()

	if engine != nil && hasVectors(vectors) {
		qvec, err := engine.Embed(ctx, query)
		if err == nil {
			return rankByVector(qvec, chunks, vectors, k), nil
		}
		logging.StoreWarn("Query embedding failed, falling back to keyword search: %v", err)
	}
	return rankByKeyword(query, chunks, k), nil
}

func (s *LocalStore) loadManualChunks(ctx context.Context, manualID, kind string) ([]ManualChunk, [][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, manual_id, chunk_type, content, COALESCE(embedding, '') FROM manual_chunks
		 WHERE manual_id = ? AND chunk_type = ? ORDER BY id ASC`, manualID, kind)
	if err != nil {
		return nil, nil, fmt.Errorf("query manual chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ManualChunk
	var vectors [][]float32
	for rows.Next() {
		var c ManualChunk
		var embJSON string
		if err := rows.Scan(&c.ID, &c.ManualID, &c.Kind, &c.Content, &embJSON); err != nil {
			return nil, nil, fmt.Errorf("scan manual chunk: %w", err)
		}
		var vec []float32
		if embJSON != "" {
			if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
				logging.StoreDebug("Skipping malformed embedding for chunk %d: %v", c.ID, err)
				vec = nil
			}
		}
		chunks = append(chunks, c)
		vectors = append(vectors, vec)
	}
	return chunks, vectors, rows.Err()
}

func hasVectors(vectors [][]float32) bool {
	for _, v := range vectors {
		if len(v) > 0 {
			return true
		}
	}
	return false
}

func rankByVector(query []float32, chunks []ManualChunk, vectors [][]float32, k int) []ManualChunk {
	top := embedding.FindTopK(query, vectors, k)
	out := make([]ManualChunk, 0, len(top))
	for _, r := range top {
		c := chunks[r.Index]
		c.Similarity = r.Similarity
		out = append(out, c)
	}
	return out
}

// rankByKeyword scores each chunk by the fraction of query words it contains.
// Chunks with no match are dropped unless the query is empty.
func rankByKeyword(query string, chunks []ManualChunk, k int) []ManualChunk {
	words := strings.Fields(strings.ToLower(query))
	scored := make([]ManualChunk, 0, len(chunks))
	for _, c := range chunks {
		if len(words) == 0 {
			scored = append(scored, c)
			continue
		}
		lower := strings.ToLower(c.Content)
		hits := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		c.Similarity = float64(hits) / float64(len(words))
		scored = append(scored, c)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// SearchManualText returns the content of the top summary chunks of a manual.
func (s *LocalStore) SearchManualText(ctx context.Context, manualID, query string, k int) ([]string, error) {
	chunks, err := s.SearchManual(ctx, manualID, ChunkSummary, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out, nil
}
