package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// SaveMemory inserts a memory and its sources in one transaction.
func (s *Store) SaveMemory(ctx context.Context, m MemoryRecord) error {
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	metadata, err := json.Marshal(orEmptyMap(m.Metadata))
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, title, content, category, importance, tags, embedding, embedding_model, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Title, m.Content, string(m.Category), m.Importance, string(tags),
		encodeEmbedding(m.Embedding), m.EmbeddingModel, string(metadata),
		m.CreatedAt.UTC().Format(time.RFC3339), m.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("inserting memory %s: %w", m.ID, err)
	}

	if err := insertSources(ctx, tx, m.ID, m.Sources); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// UpdateMemory replaces a memory's mutable fields and its sources.
// Returns ErrNotFound if the memory does not exist.
func (s *Store) UpdateMemory(ctx context.Context, m MemoryRecord) error {
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	metadata, err := json.Marshal(orEmptyMap(m.Metadata))
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning update transaction: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE memories SET title = ?, content = ?, category = ?, importance = ?, tags = ?,
			embedding = ?, embedding_model = ?, metadata = ?, updated_at = ?
		WHERE id = ?`,
		m.Title, m.Content, string(m.Category), m.Importance, string(tags),
		encodeEmbedding(m.Embedding), m.EmbeddingModel, string(metadata),
		m.UpdatedAt.UTC().Format(time.RFC3339), m.ID,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("updating memory %s: %w", m.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return err
	}
	if n == 0 {
		tx.Rollback()
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM memory_sources WHERE memory_id = ?", m.ID); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing sources for %s: %w", m.ID, err)
	}
	if err := insertSources(ctx, tx, m.ID, m.Sources); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// GetMemory returns a single memory by ID.
func (s *Store) GetMemory(ctx context.Context, id string) (MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, category, importance, tags, embedding, embedding_model, metadata, created_at, updated_at
		FROM memories WHERE id = ?`, id)

	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return MemoryRecord{}, ErrNotFound
	}
	if err != nil {
		return MemoryRecord{}, err
	}

	sources, err := s.loadSources(ctx, id)
	if err != nil {
		return MemoryRecord{}, err
	}
	m.Sources = sources
	return m, nil
}

// ListMemories returns all memories ordered by creation time ascending.
func (s *Store) ListMemories(ctx context.Context) ([]MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, category, importance, tags, embedding, embedding_model, metadata, created_at, updated_at
		FROM memories ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	defer rows.Close()

	memories, err := collectMemories(rows)
	if err != nil {
		return nil, err
	}
	return s.attachSources(ctx, memories)
}

// GetMemoriesBySourceReference returns memories that carry a source with the
// given reference (e.g. a conversation ID). Used by the creation workflow to
// enforce the one-memory-per-(reference, category) contract.
func (s *Store) GetMemoriesBySourceReference(ctx context.Context, reference string) ([]MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.title, m.content, m.category, m.importance, m.tags, m.embedding, m.embedding_model, m.metadata, m.created_at, m.updated_at
		FROM memories m
		JOIN memory_sources ms ON ms.memory_id = m.id
		WHERE ms.reference = ?
		GROUP BY m.id
		ORDER BY m.created_at ASC, m.id ASC`, reference)
	if err != nil {
		return nil, fmt.Errorf("querying memories by source reference: %w", err)
	}
	defer rows.Close()

	memories, err := collectMemories(rows)
	if err != nil {
		return nil, err
	}
	return s.attachSources(ctx, memories)
}

// SearchMemoriesLexical performs a case-insensitive substring search over
// title and content. Fallback path for when vector search yields nothing.
func (s *Store) SearchMemoriesLexical(ctx context.Context, query string, limit int) ([]MemoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, category, importance, tags, embedding, embedding_model, metadata, created_at, updated_at
		FROM memories
		WHERE title LIKE ? COLLATE NOCASE OR content LIKE ? COLLATE NOCASE
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical memory search: %w", err)
	}
	defer rows.Close()

	memories, err := collectMemories(rows)
	if err != nil {
		return nil, err
	}
	return s.attachSources(ctx, memories)
}

// DeleteMemory removes a memory and its sources. Returns ErrNotFound if the
// memory does not exist.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting memory %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, "DELETE FROM memory_sources WHERE memory_id = ?", id)
	return err
}

func insertSources(ctx context.Context, tx *sql.Tx, memoryID string, sources []MemorySource) error {
	for i, src := range sources {
		var ts interface{}
		if src.Timestamp != nil {
			ts = src.Timestamp.UTC().Format(time.RFC3339)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_sources (memory_id, position, type, reference, title, excerpt, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			memoryID, i, src.Type, src.Reference, src.Title, src.Excerpt, ts,
		); err != nil {
			return fmt.Errorf("inserting source %d for %s: %w", i, memoryID, err)
		}
	}
	return nil
}

func (s *Store) loadSources(ctx context.Context, memoryID string) ([]MemorySource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, reference, title, excerpt, timestamp
		FROM memory_sources WHERE memory_id = ? ORDER BY position ASC`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("querying sources for %s: %w", memoryID, err)
	}
	defer rows.Close()

	var sources []MemorySource
	for rows.Next() {
		var src MemorySource
		var ts sql.NullString
		if err := rows.Scan(&src.Type, &src.Reference, &src.Title, &src.Excerpt, &ts); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		if ts.Valid {
			t, err := time.Parse(time.RFC3339, ts.String)
			if err != nil {
				return nil, fmt.Errorf("parsing source timestamp: %w", err)
			}
			src.Timestamp = &t
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *Store) attachSources(ctx context.Context, memories []MemoryRecord) ([]MemoryRecord, error) {
	for i := range memories {
		sources, err := s.loadSources(ctx, memories[i].ID)
		if err != nil {
			return nil, err
		}
		memories[i].Sources = sources
	}
	return memories, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (MemoryRecord, error) {
	var m MemoryRecord
	var category, tags, metadata, createdAt, updatedAt string
	var embedding []byte
	if err := row.Scan(&m.ID, &m.Title, &m.Content, &category, &m.Importance, &tags,
		&embedding, &m.EmbeddingModel, &metadata, &createdAt, &updatedAt); err != nil {
		return MemoryRecord{}, err
	}
	m.Category = Category(category)

	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return MemoryRecord{}, fmt.Errorf("decoding tags for %s: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
		return MemoryRecord{}, fmt.Errorf("decoding metadata for %s: %w", m.ID, err)
	}

	var err error
	if m.Embedding, err = decodeEmbedding(embedding); err != nil {
		return MemoryRecord{}, fmt.Errorf("decoding embedding for %s: %w", m.ID, err)
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return MemoryRecord{}, fmt.Errorf("parsing created_at for %s: %w", m.ID, err)
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return MemoryRecord{}, fmt.Errorf("parsing updated_at for %s: %w", m.ID, err)
	}
	return m, nil
}

func collectMemories(rows *sql.Rows) ([]MemoryRecord, error) {
	var memories []MemoryRecord
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// encodeEmbedding serializes a float32 slice to little-endian bytes.
// Returns nil for an empty vector so the column stays NULL.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding deserializes little-endian bytes into a float32 slice.
func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
