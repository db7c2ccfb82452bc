// Package pgvec implements index.SemanticIndex on PostgreSQL with the
// pgvector extension. One row per chunk embedding, scoped by project so a
// single database serves every project.
package pgvec

import (
	"context"
	"fmt"
	"sync"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/helix-research/litgraph/pkg/index"
	"github.com/helix-research/litgraph/pkg/logger"
)

const availabilityTimeout = 2 * time.Second

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Ping(ctx context.Context) error
}

// Index is a pgvector-backed semantic index. Writes are serialized with a
// mutex; reads go straight to the pool.
//
// An Index should be created using NewIndexWithConnection.
type Index struct {
	conn      pgxIConn
	projectID string
	dbLock    sync.Mutex
}

// NewIndexWithConnection creates an Index over an existing connection or
// pool. The connection must have pgvector types registered.
func NewIndexWithConnection(conn pgxIConn, projectID string) *Index {
	return &Index{conn: conn, projectID: projectID}
}

// Upsert stores (or replaces) a chunk embedding.
func (idx *Index) Upsert(ctx context.Context, chunkID string, vec []float32) error {
	idx.dbLock.Lock()
	defer idx.dbLock.Unlock()

	_, err := idx.conn.Exec(ctx, `
		INSERT INTO chunk_embeddings (project_id, chunk_id, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, chunk_id)
		DO UPDATE SET embedding = EXCLUDED.embedding
	`, idx.projectID, chunkID, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("upsert embedding for chunk %s: %w", chunkID, err)
	}
	return nil
}

// Remove drops the embeddings of the given chunks.
func (idx *Index) Remove(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	idx.dbLock.Lock()
	defer idx.dbLock.Unlock()

	_, err := idx.conn.Exec(ctx, `
		DELETE FROM chunk_embeddings
		WHERE project_id = $1 AND chunk_id = ANY($2)
	`, idx.projectID, chunkIDs)
	if err != nil {
		return fmt.Errorf("remove embeddings: %w", err)
	}
	return nil
}

// Search returns the k nearest chunks by cosine distance, best first. The
// returned score is the cosine similarity (1 - distance).
func (idx *Index) Search(ctx context.Context, vec []float32, k int) ([]index.Hit, error) {
	rows, err := idx.conn.Query(ctx, `
		SELECT chunk_id, 1 - (embedding <=> $2) AS score
		FROM chunk_embeddings
		WHERE project_id = $1
		ORDER BY embedding <=> $2, chunk_id
		LIMIT $3
	`, idx.projectID, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}
	defer rows.Close()

	var hits []index.Hit
	for rows.Next() {
		var hit index.Hit
		if err := rows.Scan(&hit.ChunkID, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read embedding rows: %w", err)
	}
	return hits, nil
}

// Available reports whether the database currently answers pings. Retrieval
// degrades to the entity and graph passes when it does not.
func (idx *Index) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), availabilityTimeout)
	defer cancel()
	if err := idx.conn.Ping(ctx); err != nil {
		logger.Warn("[Index] Vector backend unavailable", "project", idx.projectID, "err", err)
		return false
	}
	return true
}
