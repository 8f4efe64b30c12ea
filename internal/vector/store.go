package vector

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"meshrouter/internal/logging"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS vectors (
	namespace     TEXT NOT NULL,
	id            TEXT NOT NULL,
	vector        BLOB NOT NULL,
	text          TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}',
	source_weight REAL NOT NULL DEFAULT 1.0,
	language      TEXT NOT NULL DEFAULT 'en',
	PRIMARY KEY (namespace, id)
);
`

// Store holds embeddings per namespace. A full in-memory copy is always
// maintained; sqlite is the backing index used for persistence and
// distance-ordered queries. When the index is unavailable (open failed,
// query error) operations fall back to scanning the in-memory copy with
// identical semantics.
type Store struct {
	mu  sync.RWMutex
	db  *sql.DB
	mem map[Namespace]map[string]Record
}

// NewStore opens (or creates) the index at path. An empty path or an
// open failure yields a memory-only store; that is a degradation, not
// an error.
func NewStore(path string) *Store {
	s := &Store{mem: make(map[Namespace]map[string]Record)}
	if path == "" {
		return s
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logging.Vector("index dir unavailable, using linear scan: %v", err)
			return s
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.Vector("index unavailable, using linear scan: %v", err)
		return s
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(storeSchema); err != nil {
		logging.Vector("index schema failed, using linear scan: %v", err)
		db.Close()
		return s
	}
	s.db = db
	if err := s.loadAll(); err != nil {
		logging.Vector("index load failed, starting empty: %v", err)
	}
	return s
}

// IndexAvailable reports whether the sqlite index is in use.
func (s *Store) IndexAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// loadAll hydrates the in-memory copy from the index at open.
func (s *Store) loadAll() error {
	rows, err := s.db.Query(`SELECT namespace, id, vector, text, metadata, source_weight, language FROM vectors`)
	if err != nil {
		return err
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var rec Record
		var ns string
		var blob []byte
		var metaJSON string
		if err := rows.Scan(&ns, &rec.ID, &blob, &rec.Text, &metaJSON, &rec.SourceWeight, &rec.Language); err != nil {
			return err
		}
		rec.Namespace = Namespace(ns)
		vec, err := decodeVector(blob)
		if err != nil {
			return err
		}
		rec.Vector = vec
		if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
			rec.Metadata = nil
		}
		s.memUpsert(rec)
		loaded++
	}
	if loaded > 0 {
		logging.Vector("loaded %d records from index", loaded)
	}
	return rows.Err()
}

func (s *Store) memUpsert(rec Record) {
	ns, ok := s.mem[rec.Namespace]
	if !ok {
		ns = make(map[string]Record)
		s.mem[rec.Namespace] = ns
	}
	ns[rec.ID] = rec
}

// Upsert stores records, replacing any with the same (namespace, id).
// Returns the number of records written.
func (s *Store) Upsert(records []Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for _, rec := range records {
		if rec.ID == "" || rec.Namespace == "" || len(rec.Vector) == 0 {
			continue
		}
		if rec.SourceWeight == 0 {
			rec.SourceWeight = 1.0
		}
		if rec.Language == "" {
			rec.Language = DetectLanguage(rec.Text)
		}
		s.memUpsert(rec)
		written++

		if s.db == nil {
			continue
		}
		metaJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			metaJSON = []byte("{}")
		}
		_, err = s.db.Exec(
			`INSERT OR REPLACE INTO vectors (namespace, id, vector, text, metadata, source_weight, language) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(rec.Namespace), rec.ID, encodeVector(rec.Vector), rec.Text, string(metaJSON), rec.SourceWeight, rec.Language,
		)
		if err != nil {
			return written, fmt.Errorf("index upsert: %w", err)
		}
	}
	logging.VectorDebug("upserted %d records", written)
	return written, nil
}

// Search returns up to topK records in a namespace whose cosine
// similarity to the query is at least threshold, best first. An
// optional metadata filter requires every given key/value to match.
func (s *Store) Search(query []float32, namespace Namespace, topK int, threshold float64, filter map[string]string) []SearchResult {
	if topK <= 0 {
		topK = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db != nil {
		results, err := s.indexSearch(query, namespace, topK, threshold, filter)
		if err == nil {
			return results
		}
		logging.Vector("index search failed, falling back to linear scan: %v", err)
	}

	results := make([]SearchResult, 0, topK)
	for _, rec := range s.namespaceRecords(namespace) {
		if !matchesFilter(rec.Metadata, filter) {
			continue
		}
		score := cosineSimilarity(query, rec.Vector)
		if score < threshold {
			continue
		}
		results = append(results, SearchResult{Record: rec, Score: score})
	}
	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// indexSearch runs a distance-ordered query through the sqlite index.
// Rows arrive best first, so scanning stops once topK hits pass the
// threshold and filter.
func (s *Store) indexSearch(query []float32, namespace Namespace, topK int, threshold float64, filter map[string]string) ([]SearchResult, error) {
	rows, err := s.db.Query(
		`SELECT id, vector, text, metadata, source_weight, language, vector_distance_cos(vector, ?) AS dist
		 FROM vectors WHERE namespace = ? ORDER BY dist ASC, id ASC`,
		encodeVector(query), string(namespace),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]SearchResult, 0, topK)
	for rows.Next() {
		rec, dist, err := scanRecordRow(rows, namespace)
		if err != nil {
			return nil, err
		}
		score := 1 - dist
		if score < threshold {
			break
		}
		if !matchesFilter(rec.Metadata, filter) {
			continue
		}
		results = append(results, SearchResult{Record: rec, Score: score})
		if len(results) == topK {
			break
		}
	}
	return results, rows.Err()
}

// SearchWeightedWorkflows scores every workflow text variant and keeps,
// per workflow, only the variant with the highest final score. Results
// below minScore are dropped; the rest are sorted by final score
// descending and truncated to topK.
func (s *Store) SearchWeightedWorkflows(query []float32, language string, topK int, minScore float64) []WeightedSearchResult {
	if topK <= 0 {
		topK = 3
	}
	if language == "" {
		language = BaseLanguage
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	variants := s.namespaceRecords(NamespaceWorkflows)
	rawScores := make([]float64, len(variants))
	if !s.indexScores(query, variants, rawScores) {
		for i, rec := range variants {
			rawScores[i] = cosineSimilarity(query, rec.Vector)
		}
	}

	best := make(map[string]WeightedSearchResult)
	for i, rec := range variants {
		workflowID := rec.Metadata[MetadataWorkflow]
		if workflowID == "" {
			workflowID = rec.ID
		}
		raw := rawScores[i]
		boost := crossLanguageBoost
		if rec.Language == language {
			boost = sameLanguageBoost
		}
		final := raw * rec.SourceWeight * boost
		if final < minScore {
			continue
		}
		current, seen := best[workflowID]
		if !seen || final > current.FinalScore {
			best[workflowID] = WeightedSearchResult{
				WorkflowID:    workflowID,
				Record:        rec,
				RawScore:      raw,
				SourceWeight:  rec.SourceWeight,
				LanguageBoost: boost,
				FinalScore:    final,
			}
		}
	}

	results := make([]WeightedSearchResult, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].WorkflowID < results[j].WorkflowID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Delete removes records by id within a namespace. Returns how many
// were actually removed.
func (s *Store) Delete(ids []string, namespace Namespace) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.mem[namespace]
	removed := 0
	for _, id := range ids {
		if _, ok := ns[id]; ok {
			delete(ns, id)
			removed++
		}
		if s.db != nil {
			if _, err := s.db.Exec(`DELETE FROM vectors WHERE namespace = ? AND id = ?`, string(namespace), id); err != nil {
				logging.Vector("index delete failed for %s/%s: %v", namespace, id, err)
			}
		}
	}
	return removed
}

// Count returns the number of records in a namespace, or across all
// namespaces when namespace is empty.
func (s *Store) Count(namespace Namespace) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if namespace != "" {
		return len(s.mem[namespace])
	}
	total := 0
	for _, ns := range s.mem {
		total += len(ns)
	}
	return total
}

// Clear drops a namespace, or everything when namespace is empty.
func (s *Store) Clear(namespace Namespace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if namespace != "" {
		delete(s.mem, namespace)
	} else {
		s.mem = make(map[Namespace]map[string]Record)
	}
	if s.db == nil {
		return
	}
	var err error
	if namespace != "" {
		_, err = s.db.Exec(`DELETE FROM vectors WHERE namespace = ?`, string(namespace))
	} else {
		_, err = s.db.Exec(`DELETE FROM vectors`)
	}
	if err != nil {
		logging.Vector("index clear failed: %v", err)
	}
}

// RebuildIndex rewrites the sqlite index from the in-memory copy. An
// exclusive maintenance operation; reports success. Memory-only stores
// have nothing to rebuild.
func (s *Store) RebuildIndex() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return false
	}

	tx, err := s.db.Begin()
	if err != nil {
		logging.Vector("rebuild begin failed: %v", err)
		return false
	}
	if _, err := tx.Exec(`DELETE FROM vectors`); err != nil {
		tx.Rollback()
		logging.Vector("rebuild clear failed: %v", err)
		return false
	}
	for _, ns := range s.mem {
		for _, rec := range ns {
			metaJSON, err := json.Marshal(rec.Metadata)
			if err != nil {
				metaJSON = []byte("{}")
			}
			if _, err := tx.Exec(
				`INSERT INTO vectors (namespace, id, vector, text, metadata, source_weight, language) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				string(rec.Namespace), rec.ID, encodeVector(rec.Vector), rec.Text, string(metaJSON), rec.SourceWeight, rec.Language,
			); err != nil {
				tx.Rollback()
				logging.Vector("rebuild insert failed: %v", err)
				return false
			}
		}
	}
	if err := tx.Commit(); err != nil {
		logging.Vector("rebuild commit failed: %v", err)
		return false
	}
	logging.Vector("index rebuilt with %d records", s.countLocked())
	return true
}

func (s *Store) countLocked() int {
	total := 0
	for _, ns := range s.mem {
		total += len(ns)
	}
	return total
}

// Close releases the backing index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// namespaceRecords returns records in deterministic id order so equal
// scores rank stably. Callers hold at least a read lock.
func (s *Store) namespaceRecords(namespace Namespace) []Record {
	ns := s.mem[namespace]
	ids := make([]string, 0, len(ns))
	for id := range ns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, ns[id])
	}
	return out
}

// indexScores fills raw similarity scores for the given records from
// the sqlite index. Reports false when the index is absent or the
// query fails, in which case the caller scans in memory.
func (s *Store) indexScores(query []float32, records []Record, out []float64) bool {
	if s.db == nil {
		return false
	}
	rows, err := s.db.Query(
		`SELECT id, vector_distance_cos(vector, ?) FROM vectors WHERE namespace = ?`,
		encodeVector(query), string(NamespaceWorkflows),
	)
	if err != nil {
		logging.Vector("index scoring failed, falling back to linear scan: %v", err)
		return false
	}
	defer rows.Close()

	scores := make(map[string]float64, len(records))
	for rows.Next() {
		var id string
		var dist float64
		if err := rows.Scan(&id, &dist); err != nil {
			logging.Vector("index scoring scan failed: %v", err)
			return false
		}
		scores[id] = 1 - dist
	}
	if rows.Err() != nil {
		return false
	}
	for i, rec := range records {
		score, ok := scores[rec.ID]
		if !ok {
			return false
		}
		out[i] = score
	}
	return true
}

// scanRecordRow decodes one index row produced by indexSearch.
func scanRecordRow(rows *sql.Rows, namespace Namespace) (Record, float64, error) {
	var rec Record
	var blob []byte
	var metaJSON string
	var dist float64
	if err := rows.Scan(&rec.ID, &blob, &rec.Text, &metaJSON, &rec.SourceWeight, &rec.Language, &dist); err != nil {
		return rec, 0, err
	}
	rec.Namespace = namespace
	vec, err := decodeVector(blob)
	if err != nil {
		return rec, 0, err
	}
	rec.Vector = vec
	if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
		rec.Metadata = nil
	}
	return rec, dist, nil
}

func matchesFilter(metadata map[string]string, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
