// Package queue provides unit tests for the action queue.
package queue

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/flowapp/flowsync/internal/models"
)

// fakeStore is an in-memory Store recording persistence calls.
type fakeStore struct {
	mu       sync.Mutex
	rows     map[models.ActionID]*models.PendingAction
	inserts  int
	requeues int
	deletes  int
	failAll  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[models.ActionID]*models.PendingAction)}
}

func (s *fakeStore) InsertPendingAction(a *models.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("store unavailable")
	}
	cp := *a
	s.rows[a.ID] = &cp
	s.inserts++
	return nil
}

func (s *fakeStore) RequeuePendingAction(a *models.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("store unavailable")
	}
	cp := *a
	s.rows[a.ID] = &cp
	s.requeues++
	return nil
}

func (s *fakeStore) DeletePendingAction(id models.ActionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	s.deletes++
	return nil
}

func (s *fakeStore) ListPendingActions() ([]*models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PendingAction
	for _, a := range s.rows {
		cp := *a
		out = append(out, &cp)
	}
	// Match the repository contract: queue order.
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func payload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

// TestEnqueue tests enqueuing actions.
func TestEnqueue(t *testing.T) {
	store := newFakeStore()
	q := NewActionQueue(store, 10)

	a := q.Enqueue(models.ActionCreateTask, 0, payload(t, map[string]string{"title": "X"}))

	if a == nil {
		t.Fatal("Expected non-nil action")
	}
	if a.ID == "" {
		t.Error("Expected action ID to be set")
	}
	if a.Kind != models.ActionCreateTask {
		t.Errorf("Expected create_task kind, got %s", a.Kind)
	}
	if a.Attempts != 0 {
		t.Errorf("Expected Attempts 0, got %d", a.Attempts)
	}
	if a.EnqueuedAt == 0 {
		t.Error("Expected EnqueuedAt to be set")
	}
	if q.Depth() != 1 {
		t.Errorf("Expected depth 1, got %d", q.Depth())
	}
	if store.inserts != 1 {
		t.Errorf("Expected 1 persisted insert, got %d", store.inserts)
	}
}

// TestEnqueueNeverRejects tests that enqueue succeeds even when the
// store fails.
func TestEnqueueNeverRejects(t *testing.T) {
	store := newFakeStore()
	store.failAll = true
	q := NewActionQueue(store, 10)

	a := q.Enqueue(models.ActionDeleteTask, 42, nil)
	if a == nil {
		t.Fatal("Expected enqueue to succeed despite store failure")
	}
	if q.Depth() != 1 {
		t.Errorf("Expected depth 1, got %d", q.Depth())
	}
}

// TestEnqueueNormalizesNilPayload tests that payload-free actions are
// persisted as JSON null so they survive a restart.
func TestEnqueueNormalizesNilPayload(t *testing.T) {
	store := newFakeStore()
	q := NewActionQueue(store, 10)

	a := q.Enqueue(models.ActionDeleteTask, 5, nil)
	if string(a.Payload) != "null" {
		t.Errorf("Expected payload null, got %q", a.Payload)
	}

	row, ok := store.rows[a.ID]
	if !ok {
		t.Fatal("Expected action to be persisted")
	}
	if !json.Valid(row.Payload) {
		t.Errorf("Expected persisted payload to be valid JSON, got %q", row.Payload)
	}

	restored := NewActionQueue(store, 10)
	restored.Load()
	if restored.Depth() != 1 {
		t.Fatalf("Expected delete to survive restart, got depth %d", restored.Depth())
	}
	if restored.Pending()[0].ID != a.ID {
		t.Errorf("Expected restored action %s, got %s", a.ID, restored.Pending()[0].ID)
	}
}

// TestDrainInOrder tests FIFO submission order on the happy path.
func TestDrainInOrder(t *testing.T) {
	q := NewActionQueue(newFakeStore(), 10)

	first := q.Enqueue(models.ActionCreateTask, 0, payload(t, map[string]string{"title": "a"}))
	second := q.Enqueue(models.ActionUpdateTask, 1, payload(t, map[string]bool{"completed": true}))
	third := q.Enqueue(models.ActionDeleteTask, 2, nil)

	var applied []models.ActionID
	stats := q.DrainInOrder(func(a *models.PendingAction) error {
		applied = append(applied, a.ID)
		return nil
	})

	if stats.Total != 3 || stats.Applied != 3 || stats.Requeued != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	want := []models.ActionID{first.ID, second.ID, third.ID}
	for i, id := range want {
		if applied[i] != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, applied[i])
		}
	}
	if q.Depth() != 0 {
		t.Errorf("Expected empty queue after drain, got depth %d", q.Depth())
	}
}

// TestDrainRequeuesFailures tests that a failed action returns to the
// tail with its ID intact and attempt count bumped.
func TestDrainRequeuesFailures(t *testing.T) {
	store := newFakeStore()
	q := NewActionQueue(store, 10)

	bad := q.Enqueue(models.ActionDeleteTask, 1, nil)
	q.Enqueue(models.ActionDeleteTask, 2, nil)

	stats := q.DrainInOrder(func(a *models.PendingAction) error {
		if a.ID == bad.ID {
			return errors.New("remote unavailable")
		}
		return nil
	})

	if stats.Applied != 1 || stats.Requeued != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	pending := q.Pending()
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending action, got %d", len(pending))
	}
	if pending[0].ID != bad.ID {
		t.Errorf("Expected requeued action %s, got %s", bad.ID, pending[0].ID)
	}
	if pending[0].Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", pending[0].Attempts)
	}
	if store.requeues != 1 {
		t.Errorf("Expected 1 persisted requeue, got %d", store.requeues)
	}
}

// TestRequeueReordersBehindNewer tests the documented weak ordering: an
// action enqueued during the drain is submitted before the retried
// failure on the next pass.
func TestRequeueReordersBehindNewer(t *testing.T) {
	q := NewActionQueue(newFakeStore(), 10)

	failing := q.Enqueue(models.ActionUpdateTask, 1, payload(t, map[string]string{"title": "A"}))

	var newer *models.PendingAction
	q.DrainInOrder(func(a *models.PendingAction) error {
		// B arrives while A is being submitted.
		newer = q.Enqueue(models.ActionUpdateTask, 1, payload(t, map[string]string{"title": "B"}))
		return errors.New("remote unavailable")
	})

	var order []models.ActionID
	q.DrainInOrder(func(a *models.PendingAction) error {
		order = append(order, a.ID)
		return nil
	})

	if len(order) != 2 {
		t.Fatalf("Expected 2 actions in second pass, got %d", len(order))
	}
	if order[0] != newer.ID {
		t.Errorf("Expected newer action first, got %s", order[0])
	}
	if order[1] != failing.ID {
		t.Errorf("Expected retried action last, got %s", order[1])
	}
}

// TestEnqueueDuringDrainWaitsForNextPass tests that the drain snapshot
// excludes actions enqueued after it was taken.
func TestEnqueueDuringDrainWaitsForNextPass(t *testing.T) {
	q := NewActionQueue(newFakeStore(), 10)
	q.Enqueue(models.ActionDeleteTask, 1, nil)

	var seen int
	q.DrainInOrder(func(a *models.PendingAction) error {
		seen++
		q.Enqueue(models.ActionDeleteTask, 2, nil)
		return nil
	})

	if seen != 1 {
		t.Errorf("Expected 1 action in first pass, got %d", seen)
	}
	if q.Depth() != 1 {
		t.Errorf("Expected the mid-drain enqueue to remain, got depth %d", q.Depth())
	}
}

// TestIDStableAcrossRetries tests that retried actions keep the ID that
// makes redelivery idempotent.
func TestIDStableAcrossRetries(t *testing.T) {
	q := NewActionQueue(newFakeStore(), 10)
	a := q.Enqueue(models.ActionCreateTask, 0, payload(t, map[string]string{"title": "X"}))

	for i := 0; i < 3; i++ {
		q.DrainInOrder(func(got *models.PendingAction) error {
			if got.ID != a.ID {
				t.Errorf("Pass %d: ID changed from %s to %s", i, a.ID, got.ID)
			}
			return errors.New("still down")
		})
	}

	pending := q.Pending()
	if len(pending) != 1 || pending[0].Attempts != 3 {
		t.Fatalf("Expected 1 action with 3 attempts, got %+v", pending)
	}
}

// TestLoadRestoresOrder tests startup restore from the store.
func TestLoadRestoresOrder(t *testing.T) {
	store := newFakeStore()

	q := NewActionQueue(store, 10)
	q.Enqueue(models.ActionCreateTask, 0, payload(t, map[string]string{"title": "a"}))
	q.Enqueue(models.ActionDeleteTask, 7, nil)

	// Simulate restart.
	restored := NewActionQueue(store, 10)
	restored.Load()

	if restored.Depth() != 2 {
		t.Fatalf("Expected 2 restored actions, got %d", restored.Depth())
	}
	pending := restored.Pending()
	if pending[0].Kind != models.ActionCreateTask || pending[1].Kind != models.ActionDeleteTask {
		t.Errorf("Restored order wrong: %s, %s", pending[0].Kind, pending[1].Kind)
	}

	// New enqueues must not collide with restored positions.
	a := restored.Enqueue(models.ActionDeleteTask, 9, nil)
	if a.Seq <= pending[1].Seq {
		t.Errorf("Expected fresh seq above %d, got %d", pending[1].Seq, a.Seq)
	}
}

// TestLoadSkipsCorruptRows tests that malformed persisted actions are
// dropped instead of failing startup.
func TestLoadSkipsCorruptRows(t *testing.T) {
	store := newFakeStore()
	store.rows["bad-kind"] = &models.PendingAction{
		ID: "bad-kind", Seq: 1, Kind: "explode", Payload: []byte(`{}`),
	}
	store.rows["bad-payload"] = &models.PendingAction{
		ID: "bad-payload", Seq: 2, Kind: models.ActionCreateTask, Payload: []byte(`{not json`),
	}
	store.rows["ok"] = &models.PendingAction{
		ID: "ok", Seq: 3, Kind: models.ActionDeleteTask, Payload: []byte(`null`),
	}

	q := NewActionQueue(store, 10)
	q.Load()

	if q.Depth() != 1 {
		t.Fatalf("Expected 1 valid action, got %d", q.Depth())
	}
	if q.Pending()[0].ID != "ok" {
		t.Errorf("Expected surviving action 'ok', got %s", q.Pending()[0].ID)
	}
}

// TestLoadAdvancesSeqPastCorruptRows tests that a skipped row still
// claims its position: a fresh enqueue must not reuse a seq that is
// persisted, or the insert would collide and the action would be lost
// on the next restart.
func TestLoadAdvancesSeqPastCorruptRows(t *testing.T) {
	store := newFakeStore()
	store.rows["ok"] = &models.PendingAction{
		ID: "ok", Seq: 1, Kind: models.ActionCreateTask, Payload: []byte(`{}`),
	}
	store.rows["bad"] = &models.PendingAction{
		ID: "bad", Seq: 2, Kind: models.ActionCreateTask, Payload: []byte(`{not json`),
	}

	q := NewActionQueue(store, 10)
	q.Load()

	a := q.Enqueue(models.ActionDeleteTask, 3, nil)
	if a.Seq <= 2 {
		t.Errorf("Expected fresh seq above skipped row, got %d", a.Seq)
	}
}
