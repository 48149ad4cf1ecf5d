package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"

	"rollcall/pkg/types"
)

// Mock store capturing finalize batches.
type mockStore struct {
	mu               sync.Mutex
	inserted         [][]*types.AttendanceRecord
	shouldFailInsert bool
}

func (m *mockStore) CreateUser(ctx context.Context, user *types.User) error { return nil }
func (m *mockStore) GetUser(ctx context.Context, id string) (*types.User, error) {
	return nil, nil
}
func (m *mockStore) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return nil, nil
}
func (m *mockStore) ListStudents(ctx context.Context) ([]*types.User, error)   { return nil, nil }
func (m *mockStore) CreateClass(ctx context.Context, class *types.Class) error { return nil }
func (m *mockStore) GetClass(ctx context.Context, id string) (*types.Class, error) {
	return nil, nil
}
func (m *mockStore) AddStudentToClass(ctx context.Context, classID, studentID string) error {
	return nil
}
func (m *mockStore) InsertAttendanceRecords(ctx context.Context, records []*types.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFailInsert {
		return errors.New("database write failed")
	}
	m.inserted = append(m.inserted, records)
	return nil
}
func (m *mockStore) GetStudentAttendance(ctx context.Context, classID, studentID string) ([]*types.AttendanceRecord, error) {
	return nil, nil
}
func (m *mockStore) HealthCheck(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                          { return nil }

// Mock broadcaster recording every notification.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
	data   []interface{}
}

func (m *mockBroadcaster) Broadcast(event string, data interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	m.data = append(m.data, data)
	return nil
}

func TestFinalizer_SuccessPersistsClearsAndBroadcasts(t *testing.T) {
	session := NewSession()
	store := &mockStore{}
	broadcaster := &mockBroadcaster{}
	finalizer := NewFinalizer(session, store, broadcaster)

	session.Start("class1", []string{"s1", "s2", "s3"})
	session.Mark("s1", types.StatusPresent)

	summary, err := finalizer.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize should succeed: %v", err)
	}

	if summary.Present != 1 || summary.Absent != 2 || summary.Total != 3 {
		t.Errorf("Expected 1/2/3, got %d/%d/%d", summary.Present, summary.Absent, summary.Total)
	}

	// One batch, one record per roster entry, shared roll call ID.
	if len(store.inserted) != 1 {
		t.Fatalf("Expected 1 batch insert, got %d", len(store.inserted))
	}
	records := store.inserted[0]
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	rollCallID := records[0].RollCallID
	if rollCallID == "" {
		t.Error("Records must carry a roll call ID")
	}
	for _, record := range records {
		if record.RollCallID != rollCallID {
			t.Error("All records of one finalize must share a roll call ID")
		}
		if record.ClassID != "class1" {
			t.Errorf("Expected class1, got %s", record.ClassID)
		}
		if record.RecordedAt.IsZero() {
			t.Error("RecordedAt should be set")
		}
	}

	if session.Active() {
		t.Error("Session should be cleared after successful finalize")
	}

	if len(broadcaster.events) != 1 || broadcaster.events[0] != types.EventDone {
		t.Fatalf("Expected one DONE broadcast, got %v", broadcaster.events)
	}
	done, ok := broadcaster.data[0].(types.DoneData)
	if !ok {
		t.Fatalf("Expected DoneData payload, got %T", broadcaster.data[0])
	}
	if !done.Success || done.Present != 1 || done.Absent != 2 || done.Total != 3 {
		t.Errorf("DONE payload mismatch: %+v", done)
	}
}

func TestFinalizer_StoreFailurePreservesSession(t *testing.T) {
	session := NewSession()
	store := &mockStore{shouldFailInsert: true}
	broadcaster := &mockBroadcaster{}
	finalizer := NewFinalizer(session, store, broadcaster)

	session.Start("class1", []string{"s1", "s2"})
	session.Mark("s1", types.StatusPresent)

	if _, err := finalizer.Finalize(context.Background()); err == nil {
		t.Fatal("Finalize should fail when the store fails")
	}

	// Session survives so the teacher can retry.
	if !session.Active() {
		t.Error("Session must be preserved after a failed finalize")
	}
	status, _ := session.Status("s1")
	if status != types.StatusPresent {
		t.Errorf("Marks must be preserved, got %s", status)
	}

	// Failure is still announced.
	if len(broadcaster.events) != 1 || broadcaster.events[0] != types.EventDone {
		t.Fatalf("Expected one DONE broadcast, got %v", broadcaster.events)
	}
	payload, ok := broadcaster.data[0].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected map payload, got %T", broadcaster.data[0])
	}
	if payload["success"] != false {
		t.Errorf("Failure broadcast should carry success=false, got %v", payload["success"])
	}
}

func TestFinalizer_RetryAfterFailureUsesSameRollCall(t *testing.T) {
	session := NewSession()
	store := &mockStore{shouldFailInsert: true}
	broadcaster := &mockBroadcaster{}
	finalizer := NewFinalizer(session, store, broadcaster)

	session.Start("class1", []string{"s1"})
	firstRollCall := session.Snapshot().RollCallID

	if _, err := finalizer.Finalize(context.Background()); err == nil {
		t.Fatal("First finalize should fail")
	}

	store.mu.Lock()
	store.shouldFailInsert = false
	store.mu.Unlock()

	if _, err := finalizer.Finalize(context.Background()); err != nil {
		t.Fatalf("Retried finalize should succeed: %v", err)
	}

	if len(store.inserted) != 1 {
		t.Fatalf("Expected exactly 1 committed batch, got %d", len(store.inserted))
	}
	if store.inserted[0][0].RollCallID != firstRollCall {
		t.Error("Retry must reuse the roll call ID so storage can deduplicate")
	}
	if session.Active() {
		t.Error("Session should be cleared after the retry succeeds")
	}
}

func TestFinalizer_NoActiveSession(t *testing.T) {
	finalizer := NewFinalizer(NewSession(), &mockStore{}, &mockBroadcaster{})

	if _, err := finalizer.Finalize(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Expected ErrNoActiveSession, got %v", err)
	}
}
