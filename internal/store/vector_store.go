package store

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"calmd/internal/embedding"
	"calmd/internal/logging"
)

// VectorStore is the named-collection vector store component. Each
// collection (ghap_full, ghap_strategy, ghap_surprise, ghap_root_cause,
// memories, values, code, commits, ...) holds points with an embedding and an
// arbitrary JSON payload. Collections are created lazily on first upsert;
// searching or counting one that does not exist yet returns empty results, so
// cold start never fails with a missing-collection error.
type VectorStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	vecExt    bool
	vecTables map[string]bool // collections that have a backing vec0 table
}

// NewVectorStore wraps an existing database connection (shared with the
// Metadata Store) to back named vector collections.
func NewVectorStore(db *sql.DB) *VectorStore {
	vs := &VectorStore{db: db, vecTables: make(map[string]bool)}
	vs.detectVecExtension()
	return vs
}

func (vs *VectorStore) detectVecExtension() {
	if _, err := vs.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err == nil {
		vs.vecExt = true
		_, _ = vs.db.Exec("DROP TABLE IF EXISTS vec_probe")
		logging.Vector("sqlite-vec extension detected; ANN search enabled")
		return
	}
	vs.vecExt = false
	logging.VectorWarn("sqlite-vec extension not available; falling back to brute-force cosine search")
}

// Point is a single entry in a named collection.
type Point struct {
	ID        string
	Embedding []float32
	Payload   map[string]interface{}
	CreatedAt time.Time
}

// SearchResult pairs a point with its similarity score against the query.
type SearchResult struct {
	Point      Point
	Similarity float64
}

// Filter is one clause of the vector-store filter grammar: equality, `$in`,
// or a combined `$gte/$gt/$lte/$lt` range on a single payload field. AND
// composition across fields is expressed by passing multiple Filters.
type Filter struct {
	Key string
	Eq  interface{}   // exact match when set
	In  []interface{} // membership when set
	Gte interface{}
	Gt  interface{}
	Lte interface{}
	Lt  interface{}
}

// EnsureCollection lazily creates the backing storage for a collection. It
// is idempotent and safe to call before every upsert/search (cold-start
// policy): a collection that does not exist yet is simply empty, never an
// error.
func (vs *VectorStore) EnsureCollection(name string, dimensions int) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.ensureCollectionLocked(name, dimensions)
}

func (vs *VectorStore) ensureCollectionLocked(name string, dimensions int) error {
	_, err := vs.db.Exec(`INSERT OR IGNORE INTO vector_collections (name, dimensions, created_at) VALUES (?, ?, ?)`,
		name, dimensions, time.Now().UTC())
	if err != nil {
		return err
	}
	if vs.vecExt && !vs.vecTables[name] && dimensions > 0 {
		tbl := vecTableName(name)
		stmt := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d], point_id TEXT)", tbl, dimensions)
		if _, err := vs.db.Exec(stmt); err != nil {
			logging.VectorWarn("failed to create vec0 table for collection %s: %v", name, err)
		} else {
			vs.vecTables[name] = true
		}
	}
	return nil
}

func vecTableName(collection string) string {
	return "vec_" + strings.ReplaceAll(collection, "-", "_")
}

// DeleteCollection drops a collection and all of its points.
func (vs *VectorStore) DeleteCollection(name string) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, err := vs.db.Exec(`DELETE FROM vector_points WHERE collection = ?`, name); err != nil {
		return err
	}
	if _, err := vs.db.Exec(`DELETE FROM vector_collections WHERE name = ?`, name); err != nil {
		return err
	}
	if vs.vecTables[name] {
		_, _ = vs.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", vecTableName(name)))
		delete(vs.vecTables, name)
	}
	return nil
}

// Upsert stores (or replaces) a point in a collection, creating the
// collection first if needed.
func (vs *VectorStore) Upsert(collection string, p Point) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if err := vs.ensureCollectionLocked(collection, len(p.Embedding)); err != nil {
		return err
	}

	embJSON, err := json.Marshal(p.Embedding)
	if err != nil {
		return err
	}
	payloadJSON, err := json.Marshal(p.Payload)
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err = vs.db.Exec(`INSERT INTO vector_points (collection, id, embedding, payload, created_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(collection, id) DO UPDATE SET embedding=excluded.embedding, payload=excluded.payload`,
		collection, p.ID, string(embJSON), string(payloadJSON), p.CreatedAt)
	if err != nil {
		return err
	}

	if vs.vecTables[collection] {
		blob := encodeFloat32Slice(p.Embedding)
		_, _ = vs.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE point_id = ?", vecTableName(collection)), p.ID)
		_, _ = vs.db.Exec(fmt.Sprintf("INSERT INTO %s (embedding, point_id) VALUES (?, ?)", vecTableName(collection)), blob, p.ID)
	}
	return nil
}

// Get fetches a single point by id. Returns (nil, nil) if absent.
func (vs *VectorStore) Get(collection, id string) (*Point, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	row := vs.db.QueryRow(`SELECT id, embedding, payload, created_at FROM vector_points WHERE collection=? AND id=?`,
		collection, id)
	p, err := scanPoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// Delete removes a point from a collection.
func (vs *VectorStore) Delete(collection, id string) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if _, err := vs.db.Exec(`DELETE FROM vector_points WHERE collection=? AND id=?`, collection, id); err != nil {
		return err
	}
	if vs.vecTables[collection] {
		_, _ = vs.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE point_id = ?", vecTableName(collection)), id)
	}
	return nil
}

// Count returns the number of points in a collection. Returns 0 with no
// error for a collection that does not exist (cold-start policy).
func (vs *VectorStore) Count(collection string) (int64, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	var n int64
	err := vs.db.QueryRow(`SELECT COUNT(*) FROM vector_points WHERE collection=?`, collection).Scan(&n)
	return n, err
}

// scrollBatchSize bounds each page of Scroll so bulk operations iterate to
// exhaustion instead of trying to load an entire collection at once.
const scrollBatchSize = 500

// Scroll pages through every point in a collection via fn, looping until the
// collection is exhausted (required for bulk delete/reindex operations that
// must never silently stop partway through a large collection).
func (vs *VectorStore) Scroll(collection string, fn func(Point) error) error {
	offset := 0
	for {
		vs.mu.RLock()
		rows, err := vs.db.Query(`SELECT id, embedding, payload, created_at FROM vector_points
			WHERE collection=? ORDER BY id LIMIT ? OFFSET ?`, collection, scrollBatchSize, offset)
		if err != nil {
			vs.mu.RUnlock()
			return err
		}

		var batch []Point
		for rows.Next() {
			p, err := scanPoint(rows)
			if err != nil {
				rows.Close()
				vs.mu.RUnlock()
				return err
			}
			batch = append(batch, *p)
		}
		rows.Close()
		vs.mu.RUnlock()

		if len(batch) == 0 {
			return nil
		}
		for _, p := range batch {
			if err := fn(p); err != nil {
				return err
			}
		}
		offset += len(batch)
	}
}

func scanPoint(row scannable) (*Point, error) {
	var p Point
	var embJSON, payloadJSON string
	if err := row.Scan(&p.ID, &embJSON, &payloadJSON, &p.CreatedAt); err != nil {
		return nil, err
	}
	emb, err := fastParseVectorJSON([]byte(embJSON), nil)
	if err != nil {
		return nil, err
	}
	p.Embedding = emb
	if payloadJSON != "" {
		_ = json.Unmarshal([]byte(payloadJSON), &p.Payload)
	}
	return &p, nil
}

// Search returns the top-K points in collection by cosine similarity to
// query, restricted to points matching every filter (AND composition).
func (vs *VectorStore) Search(collection string, query []float32, limit int, filters []Filter) ([]SearchResult, error) {
	timer := logging.StartTimer(logging.CategoryVector, "Search")
	defer timer.Stop()

	if limit <= 0 {
		limit = 10
	}

	vs.mu.RLock()
	useVec := vs.vecTables[collection] && len(filters) == 0
	vs.mu.RUnlock()

	if useVec {
		results, err := vs.searchVec(collection, query, limit)
		if err == nil {
			return results, nil
		}
		logging.VectorWarn("vec0 search failed for %s, falling back to brute force: %v", collection, err)
	}

	return vs.searchBruteForce(collection, query, limit, filters)
}

func (vs *VectorStore) searchVec(collection string, query []float32, limit int) ([]SearchResult, error) {
	blob := encodeFloat32Slice(query)
	tbl := vecTableName(collection)

	vs.mu.RLock()
	rows, err := vs.db.Query(fmt.Sprintf(
		"SELECT point_id, vec_distance_cosine(embedding, ?) AS dist FROM %s ORDER BY dist ASC LIMIT ?", tbl),
		blob, limit)
	vs.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	dists := make(map[string]float64)
	for rows.Next() {
		var id string
		var dist float64
		if err := rows.Scan(&id, &dist); err != nil {
			continue
		}
		ids = append(ids, id)
		dists[id] = dist
	}

	out := make([]SearchResult, 0, len(ids))
	for _, id := range ids {
		p, err := vs.Get(collection, id)
		if err != nil || p == nil {
			continue
		}
		out = append(out, SearchResult{Point: *p, Similarity: 1 - dists[id]})
	}
	return out, nil
}

func (vs *VectorStore) searchBruteForce(collection string, query []float32, limit int, filters []Filter) ([]SearchResult, error) {
	vs.mu.RLock()
	rows, err := vs.db.Query(`SELECT id, embedding, payload, created_at FROM vector_points WHERE collection=?`, collection)
	vs.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []SearchResult
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			continue
		}
		if !matchesFilters(p.Payload, filters) {
			continue
		}
		sim, err := embedding.CosineSimilarity(query, p.Embedding)
		if err != nil {
			continue
		}
		candidates = append(candidates, SearchResult{Point: *p, Similarity: sim})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Similarity > candidates[j].Similarity })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// matchesFilters applies AND composition across every filter clause.
func matchesFilters(payload map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		if !matchesFilter(payload, f) {
			return false
		}
	}
	return true
}

func matchesFilter(payload map[string]interface{}, f Filter) bool {
	v, ok := payload[f.Key]
	if !ok {
		return false
	}

	if f.Eq != nil {
		return fmt.Sprintf("%v", v) == fmt.Sprintf("%v", f.Eq)
	}
	if f.In != nil {
		for _, want := range f.In {
			if fmt.Sprintf("%v", v) == fmt.Sprintf("%v", want) {
				return true
			}
		}
		return false
	}

	// Range filters combine into one condition: every bound present must hold.
	if f.Gte != nil || f.Gt != nil || f.Lte != nil || f.Lt != nil {
		fv, ok := toComparableFloat(v)
		if !ok {
			return false
		}
		if f.Gte != nil {
			b, _ := toComparableFloat(f.Gte)
			if fv < b {
				return false
			}
		}
		if f.Gt != nil {
			b, _ := toComparableFloat(f.Gt)
			if fv <= b {
				return false
			}
		}
		if f.Lte != nil {
			b, _ := toComparableFloat(f.Lte)
			if fv > b {
				return false
			}
		}
		if f.Lt != nil {
			b, _ := toComparableFloat(f.Lt)
			if fv >= b {
				return false
			}
		}
		return true
	}

	return true
}

func toComparableFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func encodeFloat32Slice(vec []float32) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}
