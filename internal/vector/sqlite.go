package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rgitdev/ai-assistant/internal/storage"
)

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on top of the shared SQLite database.
// The memory_vectors table must already exist (created via migrations).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB for vector operations.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const vectorColumns = "id, source_id, source_type, embedding, embedding_model, metadata, created_at, updated_at"

// StoreVector assigns a new ID and timestamps, persists the record, and
// returns it in full.
func (s *SQLiteStore) StoreVector(ctx context.Context, rec Record) (Record, error) {
	rec.ID = uuid.New().String()
	now := time.Now().UTC().Truncate(time.Second)
	rec.CreatedAt = now
	rec.UpdatedAt = now

	metadata, err := json.Marshal(orEmptyMap(rec.Metadata))
	if err != nil {
		return Record{}, fmt.Errorf("encoding metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_vectors (id, source_id, source_type, embedding, embedding_model, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SourceID, rec.SourceType, encodeFloat32s(rec.Embedding), rec.EmbeddingModel,
		string(metadata), now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return Record{}, fmt.Errorf("inserting vector %s: %w", rec.ID, err)
	}
	return rec, nil
}

// SearchSimilar performs a brute-force cosine similarity scan.
func (s *SQLiteStore) SearchSimilar(ctx context.Context, queryVector []float32, opts SearchOptions) ([]Scored, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	query := "SELECT " + vectorColumns + " FROM memory_vectors"
	var args []interface{}
	if opts.SourceType != "" {
		query += " WHERE source_type = ?"
		args = append(args, opts.SourceType)
	}
	// Scan in storage order so the score sort below stays deterministic
	// for equal scores.
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []Scored
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		score := CosineSimilarity(queryVector, rec.Embedding)
		if score < opts.MinScore {
			continue
		}
		results = append(results, Scored{Record: rec, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GetVectorsBySource returns all records for (sourceID, sourceType) in
// storage order.
func (s *SQLiteStore) GetVectorsBySource(ctx context.Context, sourceID, sourceType string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+vectorColumns+` FROM memory_vectors
		WHERE source_id = ? AND source_type = ?
		ORDER BY seq ASC`, sourceID, sourceType)
	if err != nil {
		return nil, fmt.Errorf("querying vectors by source: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// UpdateVector applies partial fields and stamps updated_at.
func (s *SQLiteStore) UpdateVector(ctx context.Context, id string, upd Update) (Record, error) {
	rec, err := s.getVector(ctx, id)
	if err != nil {
		return Record{}, err
	}

	if upd.SourceID != nil {
		rec.SourceID = *upd.SourceID
	}
	if upd.SourceType != nil {
		rec.SourceType = *upd.SourceType
	}
	if upd.Embedding != nil {
		rec.Embedding = upd.Embedding
	}
	if upd.EmbeddingModel != nil {
		rec.EmbeddingModel = *upd.EmbeddingModel
	}
	if upd.Metadata != nil {
		rec.Metadata = upd.Metadata
	}
	rec.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	metadata, err := json.Marshal(orEmptyMap(rec.Metadata))
	if err != nil {
		return Record{}, fmt.Errorf("encoding metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memory_vectors
		SET source_id = ?, source_type = ?, embedding = ?, embedding_model = ?, metadata = ?, updated_at = ?
		WHERE id = ?`,
		rec.SourceID, rec.SourceType, encodeFloat32s(rec.Embedding), rec.EmbeddingModel,
		string(metadata), rec.UpdatedAt.Format(time.RFC3339), id,
	)
	if err != nil {
		return Record{}, fmt.Errorf("updating vector %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, err
	}
	if n == 0 {
		return Record{}, storage.ErrNotFound
	}
	return rec, nil
}

// DeleteVector removes a record by ID.
func (s *SQLiteStore) DeleteVector(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memory_vectors WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting vector %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memory_vectors").Scan(&count)
	return count, err
}

// ExportAll returns every record in storage order.
func (s *SQLiteStore) ExportAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+vectorColumns+` FROM memory_vectors ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying all vectors: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *SQLiteStore) getVector(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+vectorColumns+` FROM memory_vectors WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, storage.ErrNotFound
	}
	return rec, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var blob []byte
	var metadata, createdAt, updatedAt string
	if err := row.Scan(&rec.ID, &rec.SourceID, &rec.SourceType, &blob, &rec.EmbeddingModel,
		&metadata, &createdAt, &updatedAt); err != nil {
		return Record{}, err
	}

	var err error
	if rec.Embedding, err = decodeFloat32s(blob); err != nil {
		return Record{}, fmt.Errorf("decoding embedding for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
		return Record{}, fmt.Errorf("decoding metadata for %s: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Record{}, fmt.Errorf("parsing created_at for %s: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Record{}, fmt.Errorf("parsing updated_at for %s: %w", rec.ID, err)
	}
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
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
// Returns an error if the byte slice length is not a multiple of 4
// (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
