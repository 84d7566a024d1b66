package db

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/flowapp/flowsync/internal/models"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	migrator := NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Up() error: %v", err)
	}

	repo := NewRepository(database.DB)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMigrationsApply(t *testing.T) {
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer database.Close()

	migrator := NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Up() error: %v", err)
	}

	version, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion() error: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("expected version %d, got %d", len(migrations), version)
	}

	// Running Up again must be a no-op.
	if err := migrator.Up(); err != nil {
		t.Fatalf("second Up() error: %v", err)
	}
}

func TestInsertAndListPendingActions(t *testing.T) {
	repo := setupTestRepo(t)

	actions := []*models.PendingAction{
		{ID: "a-1", Seq: 1, Kind: models.ActionCreateTask, Payload: []byte(`{"title":"x"}`), EnqueuedAt: 100},
		{ID: "a-2", Seq: 2, Kind: models.ActionUpdateTask, TargetID: 5, Payload: []byte(`{"completed":true}`), EnqueuedAt: 101},
		{ID: "a-3", Seq: 3, Kind: models.ActionDeleteTask, TargetID: 5, Payload: []byte(`null`), EnqueuedAt: 102},
	}
	for _, a := range actions {
		if err := repo.InsertPendingAction(a); err != nil {
			t.Fatalf("InsertPendingAction(%s) error: %v", a.ID, err)
		}
	}

	got, err := repo.ListPendingActions()
	if err != nil {
		t.Fatalf("ListPendingActions() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(got))
	}
	for i, a := range got {
		if a.ID != actions[i].ID {
			t.Errorf("position %d: expected %s, got %s", i, actions[i].ID, a.ID)
		}
	}
	if got[1].Kind != models.ActionUpdateTask || got[1].TargetID != 5 {
		t.Errorf("row fields not restored: %+v", got[1])
	}
	if string(got[0].Payload) != `{"title":"x"}` {
		t.Errorf("payload not restored: %s", got[0].Payload)
	}
}

func TestRequeueMovesActionToTail(t *testing.T) {
	repo := setupTestRepo(t)

	a := &models.PendingAction{ID: "a-1", Seq: 1, Kind: models.ActionCreateTask, Payload: []byte(`{}`), EnqueuedAt: 100}
	b := &models.PendingAction{ID: "a-2", Seq: 2, Kind: models.ActionDeleteTask, Payload: []byte(`null`), EnqueuedAt: 101}
	repo.InsertPendingAction(a)
	repo.InsertPendingAction(b)

	a.Seq = 3
	a.Attempts = 1
	if err := repo.RequeuePendingAction(a); err != nil {
		t.Fatalf("RequeuePendingAction() error: %v", err)
	}

	got, err := repo.ListPendingActions()
	if err != nil {
		t.Fatalf("ListPendingActions() error: %v", err)
	}
	if got[0].ID != "a-2" || got[1].ID != "a-1" {
		t.Fatalf("expected requeued action behind newer one, got %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].Attempts != 1 {
		t.Errorf("expected attempt count persisted, got %d", got[1].Attempts)
	}
}

func TestDeletePendingAction(t *testing.T) {
	repo := setupTestRepo(t)

	repo.InsertPendingAction(&models.PendingAction{ID: "a-1", Seq: 1, Kind: models.ActionCreateTask, Payload: []byte(`{}`), EnqueuedAt: 100})
	if err := repo.DeletePendingAction("a-1"); err != nil {
		t.Fatalf("DeletePendingAction() error: %v", err)
	}

	count, err := repo.CountPendingActions()
	if err != nil {
		t.Fatalf("CountPendingActions() error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty table, got %d rows", count)
	}
}

func TestMaxPendingSeq(t *testing.T) {
	repo := setupTestRepo(t)

	seq, err := repo.MaxPendingSeq()
	if err != nil {
		t.Fatalf("MaxPendingSeq() error: %v", err)
	}
	if seq != 0 {
		t.Errorf("expected 0 on empty table, got %d", seq)
	}

	repo.InsertPendingAction(&models.PendingAction{ID: "a-1", Seq: 7, Kind: models.ActionCreateTask, Payload: []byte(`{}`), EnqueuedAt: 100})
	seq, err = repo.MaxPendingSeq()
	if err != nil {
		t.Fatalf("MaxPendingSeq() error: %v", err)
	}
	if seq != 7 {
		t.Errorf("expected 7, got %d", seq)
	}
}

func TestSnapshotUpsert(t *testing.T) {
	repo := setupTestRepo(t)

	if err := repo.SaveSnapshot(models.SnapshotTasks, []byte(`[1]`)); err != nil {
		t.Fatalf("SaveSnapshot() error: %v", err)
	}
	if err := repo.SaveSnapshot(models.SnapshotTasks, []byte(`[1,2]`)); err != nil {
		t.Fatalf("second SaveSnapshot() error: %v", err)
	}

	snap, err := repo.GetSnapshot(models.SnapshotTasks)
	if err != nil {
		t.Fatalf("GetSnapshot() error: %v", err)
	}
	if string(snap.Data) != `[1,2]` {
		t.Errorf("expected latest blob, got %s", snap.Data)
	}
	if snap.UpdatedAt == 0 {
		t.Error("expected UpdatedAt set")
	}
}

func TestGetSnapshotMissing(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.GetSnapshot(models.SnapshotHabits)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for missing snapshot, got %v", err)
	}
}

func TestPreparedStatementReuse(t *testing.T) {
	repo := setupTestRepo(t)

	first, err := repo.PrepareStmt("SELECT COUNT(*) FROM pending_actions")
	if err != nil {
		t.Fatalf("PrepareStmt() error: %v", err)
	}
	second, err := repo.PrepareStmt("SELECT COUNT(*) FROM pending_actions")
	if err != nil {
		t.Fatalf("PrepareStmt() error: %v", err)
	}
	if first != second {
		t.Error("expected the cached statement to be reused")
	}
}
