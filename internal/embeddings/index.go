package embeddings

import (
	"container/heap"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mensah/datashelf/internal/fault"
)

// Embedding is the derived artifact keyed by collection id. At most one live
// embedding exists per collection; regenerating overwrites it.
type Embedding struct {
	CollectionID string
	Model        string
	Vector       []float32
	UpdatedAt    time.Time
}

// Match is a similarity-search hit.
type Match struct {
	CollectionID string
	Score        float32
}

// Index stores collection embeddings in SQLite and answers brute-force
// cosine similarity queries. The embeddings table is created by the shared
// storage migrations.
type Index struct {
	db *sql.DB
}

// NewIndex wraps an existing *sql.DB for embedding operations.
func NewIndex(db *sql.DB) *Index {
	return &Index{db: db}
}

// Upsert writes the embedding for a collection, replacing any previous one.
func (x *Index) Upsert(e Embedding) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	_, err := x.db.Exec(`
		INSERT INTO embeddings (collection_id, model, vector, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection_id) DO UPDATE SET
			model = excluded.model, vector = excluded.vector, updated_at = excluded.updated_at`,
		e.CollectionID, e.Model, encodeFloat32s(e.Vector), e.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// Get returns the live embedding of a collection.
func (x *Index) Get(collectionID string) (Embedding, error) {
	var e Embedding
	var blob []byte
	var updatedAt string
	err := x.db.QueryRow(`
		SELECT collection_id, model, vector, updated_at
		FROM embeddings WHERE collection_id = ?`, collectionID,
	).Scan(&e.CollectionID, &e.Model, &blob, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Embedding{}, fault.NotFound("embedding for collection %s", collectionID)
	}
	if err != nil {
		return Embedding{}, err
	}
	if e.Vector, err = decodeFloat32s(blob); err != nil {
		return Embedding{}, fmt.Errorf("decoding vector for %s: %w", collectionID, err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Embedding{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return e, nil
}

// Delete removes a collection's embedding. Idempotent.
func (x *Index) Delete(collectionID string) error {
	_, err := x.db.Exec(`DELETE FROM embeddings WHERE collection_id = ?`, collectionID)
	return err
}

// Search scans all stored vectors and returns the top-K collections by
// cosine similarity to the query vector.
func (x *Index) Search(vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	rows, err := x.db.Query(`SELECT collection_id, vector FROM embeddings`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &matchHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding vector for %s: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, Match{CollectionID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = Match{CollectionID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	// Pop min-heap into descending order.
	results := make([]Match, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(Match)
	}
	return results, nil
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes cosine similarity as dot(a,b) / (aNorm * bNorm).
// aNorm is the precomputed L2 norm of vector a.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// matchHeap is a min-heap of Match ordered by Score, used to track top-K
// candidates during the scan phase of Search.
type matchHeap []Match

func (h matchHeap) Len() int           { return len(h) }
func (h matchHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h matchHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x any)        { *h = append(*h, x.(Match)) }
func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
