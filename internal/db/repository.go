// Package db provides CRUD repository operations for Flow sync core state.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/flowapp/flowsync/internal/models"
)

// Repository persists the action queue and cache snapshots.
// A prepared statement cache avoids repeated SQL parsing for the hot
// queue operations.
type Repository struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// PendingAction Operations
// =====================================================

// InsertPendingAction stores a newly enqueued action.
func (r *Repository) InsertPendingAction(a *models.PendingAction) error {
	query := `
	INSERT INTO pending_actions (id, seq, kind, target_id, payload, enqueued_at, attempts)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(a.ID, a.Seq, string(a.Kind), a.TargetID, []byte(a.Payload), a.EnqueuedAt, a.Attempts)
	return err
}

// RequeuePendingAction moves a failed action to a new tail position and
// records the attempt count.
func (r *Repository) RequeuePendingAction(a *models.PendingAction) error {
	query := `UPDATE pending_actions SET seq = ?, attempts = ? WHERE id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(a.Seq, a.Attempts, a.ID)
	return err
}

// DeletePendingAction removes a confirmed action.
func (r *Repository) DeletePendingAction(id models.ActionID) error {
	query := `DELETE FROM pending_actions WHERE id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(id)
	return err
}

// ListPendingActions returns all stored actions in queue order.
func (r *Repository) ListPendingActions() ([]*models.PendingAction, error) {
	query := `
	SELECT id, seq, kind, target_id, payload, enqueued_at, attempts
	FROM pending_actions ORDER BY seq ASC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*models.PendingAction
	for rows.Next() {
		var a models.PendingAction
		var kind string
		var payload []byte
		if err := rows.Scan(&a.ID, &a.Seq, &kind, &a.TargetID, &payload, &a.EnqueuedAt, &a.Attempts); err != nil {
			return actions, err
		}
		a.Kind = models.ActionKind(kind)
		a.Payload = payload
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}

// MaxPendingSeq returns the highest stored queue position, or 0 when the
// queue is empty.
func (r *Repository) MaxPendingSeq() (int64, error) {
	var seq sql.NullInt64
	err := r.db.QueryRow("SELECT MAX(seq) FROM pending_actions").Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// CountPendingActions returns the number of stored actions.
func (r *Repository) CountPendingActions() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM pending_actions").Scan(&count)
	return count, err
}

// =====================================================
// CacheSnapshot Operations
// =====================================================

// SaveSnapshot overwrites a cache collection blob.
func (r *Repository) SaveSnapshot(collection models.SnapshotCollection, data []byte) error {
	query := `
	INSERT INTO cache_snapshots (collection, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(collection) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(string(collection), data, time.Now().Unix())
	return err
}

// GetSnapshot loads a cache collection blob. Returns sql.ErrNoRows when
// the collection has never been persisted.
func (r *Repository) GetSnapshot(collection models.SnapshotCollection) (*models.CacheSnapshot, error) {
	query := `SELECT collection, data, updated_at FROM cache_snapshots WHERE collection = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var s models.CacheSnapshot
	var coll string
	if err := stmt.QueryRow(string(collection)).Scan(&coll, &s.Data, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Collection = models.SnapshotCollection(coll)
	return &s, nil
}
