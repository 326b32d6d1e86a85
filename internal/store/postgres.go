// internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relock/api/schemas"
)

// DBPool abstracts the pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists memory snapshots in a single element_memory table
// keyed by (session_id, logical_name).
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgresStore verifies the connection and returns the store.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store.postgres"),
	}, nil
}

// SaveSnapshot replaces the session's persisted entries inside one
// transaction so a reader never observes a half-written snapshot.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, sessionID string, entries []schemas.MemoryEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM element_memory WHERE session_id = $1;`, sessionID); err != nil {
		return fmt.Errorf("failed to clear previous snapshot: %w", err)
	}

	sql := `
        INSERT INTO element_memory
            (session_id, logical_name, original_language, original_value,
             last_good_language, last_good_value, fingerprint,
             externally_sourced, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `
	now := time.Now().UTC()
	for _, e := range entries {
		fp, err := jsonAPI.Marshal(e.Fingerprint)
		if err != nil {
			return fmt.Errorf("failed to marshal fingerprint for %q: %w", e.LogicalName, err)
		}
		updatedAt := e.UpdatedAt.UTC()
		if updatedAt.IsZero() {
			updatedAt = now
		}
		if _, err := tx.Exec(ctx, sql,
			sessionID, e.LogicalName,
			string(e.OriginalLocator.Language), e.OriginalLocator.Value,
			string(e.LastKnownGood.Language), e.LastKnownGood.Value,
			fp, e.ExternallySourced, updatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert entry for %q: %w", e.LogicalName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug("Saved memory snapshot",
		zap.String("session_id", sessionID),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// LoadSnapshot retrieves the session's entries in logical name order. An
// unknown session yields an empty slice.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, sessionID string) ([]schemas.MemoryEntry, error) {
	query := `
        SELECT logical_name, original_language, original_value,
               last_good_language, last_good_value, fingerprint,
               externally_sourced, updated_at
        FROM element_memory
        WHERE session_id = $1
        ORDER BY logical_name ASC;
    `
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	entries := []schemas.MemoryEntry{}
	for rows.Next() {
		var (
			e            schemas.MemoryEntry
			origLang     string
			lastGoodLang string
			fpData       []byte
		)
		if err := rows.Scan(
			&e.LogicalName, &origLang, &e.OriginalLocator.Value,
			&lastGoodLang, &e.LastKnownGood.Value, &fpData,
			&e.ExternallySourced, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan memory row: %w", err)
		}
		e.OriginalLocator.Language = schemas.QueryLanguage(origLang)
		e.LastKnownGood.Language = schemas.QueryLanguage(lastGoodLang)

		if len(fpData) > 0 && string(fpData) != "null" {
			var fp schemas.Fingerprint
			if err := jsonAPI.Unmarshal(fpData, &fp); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fingerprint for %q: %w", e.LogicalName, err)
			}
			e.Fingerprint = &fp
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return entries, nil
}
