package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"rollcall/internal/attendance"
	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// Fake connection capturing unicast replies.
type fakeConnection struct {
	mu       sync.Mutex
	identity types.Identity
	sent     []types.Envelope
	open     bool
}

func newFakeConnection(role, userID string) *fakeConnection {
	return &fakeConnection{
		identity: types.Identity{Email: userID + "@example.com", Role: role, UserID: userID},
		open:     true,
	}
}

func (f *fakeConnection) Send(data []byte) error {
	var envelope types.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, envelope)
	return nil
}

func (f *fakeConnection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.Send(data)
}

func (f *fakeConnection) Identity() types.Identity { return f.identity }
func (f *fakeConnection) IsOpen() bool             { return f.open }
func (f *fakeConnection) Close() error             { f.open = false; return nil }

func (f *fakeConnection) lastEnvelope(t *testing.T) types.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("Expected a reply, got none")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeConnection) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// Fake broadcaster recording fan-out.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
	data   []interface{}
}

func (f *fakeBroadcaster) Broadcast(event string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	f.data = append(f.data, data)
	return nil
}

func (f *fakeBroadcaster) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// Fake finalizer tracking invocations.
type fakeFinalizer struct {
	calls      int
	summary    types.Summary
	shouldFail bool
}

func (f *fakeFinalizer) Finalize(ctx context.Context) (types.Summary, error) {
	f.calls++
	if f.shouldFail {
		return types.Summary{}, errors.New("persist failed")
	}
	return f.summary, nil
}

func command(t *testing.T, event string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(types.Envelope{Event: event, Data: data})
	if err != nil {
		t.Fatalf("Failed to build command: %v", err)
	}
	return raw
}

func newDispatcherWithSession(roster ...string) (*Dispatcher, interfaces.Session, *fakeBroadcaster, *fakeFinalizer) {
	session := attendance.NewSession()
	if len(roster) > 0 {
		session.Start("class1", roster)
	}
	broadcaster := &fakeBroadcaster{}
	finalizer := &fakeFinalizer{}
	return NewDispatcher(session, finalizer, broadcaster), session, broadcaster, finalizer
}

func assertErrorReply(t *testing.T, conn *fakeConnection, message string) {
	t.Helper()
	envelope := conn.lastEnvelope(t)
	if envelope.Event != types.EventError {
		t.Fatalf("Expected ERROR reply, got %s", envelope.Event)
	}
	errData, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected error payload map, got %T", envelope.Data)
	}
	if errData["message"] != message {
		t.Errorf("Expected error %q, got %q", message, errData["message"])
	}
}

func TestDispatcher_MalformedMessage(t *testing.T) {
	dispatcher, _, broadcaster, _ := newDispatcherWithSession("s1")
	teacher := newFakeConnection(types.RoleTeacher, "t1")

	dispatcher.HandleMessage(teacher, []byte("{not json"))

	assertErrorReply(t, teacher, msgInvalidFormat)
	if broadcaster.eventCount() != 0 {
		t.Error("Malformed messages must never broadcast")
	}
}

func TestDispatcher_UnknownEvent(t *testing.T) {
	dispatcher, _, _, _ := newDispatcherWithSession("s1")
	teacher := newFakeConnection(types.RoleTeacher, "t1")

	dispatcher.HandleMessage(teacher, command(t, "PING", nil))

	assertErrorReply(t, teacher, msgUnknownEvent)
}

func TestDispatcher_RoleGates(t *testing.T) {
	dispatcher, _, broadcaster, finalizer := newDispatcherWithSession("s1")
	student := newFakeConnection(types.RoleStudent, "s1")
	teacher := newFakeConnection(types.RoleTeacher, "t1")

	// Teacher commands rejected for students.
	for _, event := range []string{types.EventAttendanceMarked, types.EventTodaySummary, types.EventDone} {
		dispatcher.HandleMessage(student, command(t, event, types.MarkData{StudentID: "s1", Status: types.StatusPresent}))
		assertErrorReply(t, student, msgForbidden)
	}

	// Student command rejected for teachers.
	dispatcher.HandleMessage(teacher, command(t, types.EventMyAttendance, nil))
	assertErrorReply(t, teacher, msgForbidden)

	if broadcaster.eventCount() != 0 {
		t.Error("Forbidden commands must never broadcast")
	}
	if finalizer.calls != 0 {
		t.Error("Forbidden DONE must never reach the finalizer")
	}
}

func TestDispatcher_MarkBroadcastsToEveryone(t *testing.T) {
	dispatcher, session, broadcaster, _ := newDispatcherWithSession("s1", "s2")
	teacher := newFakeConnection(types.RoleTeacher, "t1")

	dispatcher.HandleMessage(teacher, command(t, types.EventAttendanceMarked,
		types.MarkData{StudentID: "s1", Status: types.StatusPresent}))

	if teacher.sentCount() != 0 {
		t.Errorf("Applied mark should not produce a unicast reply, got %+v", teacher.sent)
	}

	status, _ := session.Status("s1")
	if status != types.StatusPresent {
		t.Errorf("Expected s1 present, got %s", status)
	}

	if broadcaster.eventCount() != 1 || broadcaster.events[0] != types.EventAttendanceMarked {
		t.Fatalf("Expected one ATTENDANCE_MARKED broadcast, got %v", broadcaster.events)
	}
	mark, ok := broadcaster.data[0].(types.MarkData)
	if !ok || mark.StudentID != "s1" || mark.Status != types.StatusPresent {
		t.Errorf("Broadcast payload mismatch: %+v", broadcaster.data[0])
	}
}

func TestDispatcher_MarkUnknownStudentRepliesSenderOnly(t *testing.T) {
	dispatcher, session, broadcaster, _ := newDispatcherWithSession("s1")
	teacher := newFakeConnection(types.RoleTeacher, "t1")

	dispatcher.HandleMessage(teacher, command(t, types.EventAttendanceMarked,
		types.MarkData{StudentID: "stranger", Status: types.StatusPresent}))

	assertErrorReply(t, teacher, msgUnknownStudent)
	if broadcaster.eventCount() != 0 {
		t.Error("Rejected marks must never broadcast")
	}
	if snapshot := session.Snapshot(); len(snapshot.Marks) != 1 {
		t.Error("Rejected marks must not grow the roster")
	}
}

func TestDispatcher_MarkInvalidPayloads(t *testing.T) {
	dispatcher, _, broadcaster, _ := newDispatcherWithSession("s1")
	teacher := newFakeConnection(types.RoleTeacher, "t1")

	// Missing student ID.
	dispatcher.HandleMessage(teacher, command(t, types.EventAttendanceMarked, types.MarkData{Status: types.StatusPresent}))
	assertErrorReply(t, teacher, msgInvalidFormat)

	// Invalid status.
	dispatcher.HandleMessage(teacher, command(t, types.EventAttendanceMarked,
		types.MarkData{StudentID: "s1", Status: "late"}))
	assertErrorReply(t, teacher, msgInvalidFormat)

	if broadcaster.eventCount() != 0 {
		t.Error("Invalid marks must never broadcast")
	}
}

func TestDispatcher_MarkWithoutActiveSession(t *testing.T) {
	dispatcher, _, _, _ := newDispatcherWithSession()
	teacher := newFakeConnection(types.RoleTeacher, "t1")

	dispatcher.HandleMessage(teacher, command(t, types.EventAttendanceMarked,
		types.MarkData{StudentID: "s1", Status: types.StatusPresent}))

	assertErrorReply(t, teacher, msgNoActiveSession)
}

func TestDispatcher_SummaryBroadcastsCounts(t *testing.T) {
	dispatcher, session, broadcaster, _ := newDispatcherWithSession("s1", "s2", "s3")
	session.Mark("s1", types.StatusPresent)
	teacher := newFakeConnection(types.RoleTeacher, "t1")

	dispatcher.HandleMessage(teacher, command(t, types.EventTodaySummary, nil))

	if broadcaster.eventCount() != 1 || broadcaster.events[0] != types.EventTodaySummary {
		t.Fatalf("Expected one TODAY_SUMMARY broadcast, got %v", broadcaster.events)
	}
	summary, ok := broadcaster.data[0].(types.Summary)
	if !ok {
		t.Fatalf("Expected Summary payload, got %T", broadcaster.data[0])
	}
	if summary.Present != 1 || summary.Absent != 2 || summary.Total != 3 {
		t.Errorf("Expected 1/2/3, got %d/%d/%d", summary.Present, summary.Absent, summary.Total)
	}
}

func TestDispatcher_DoneInvokesFinalizer(t *testing.T) {
	dispatcher, _, _, finalizer := newDispatcherWithSession("s1")
	teacher := newFakeConnection(types.RoleTeacher, "t1")

	dispatcher.HandleMessage(teacher, command(t, types.EventDone, nil))

	if finalizer.calls != 1 {
		t.Errorf("Expected 1 finalize call, got %d", finalizer.calls)
	}
}

func TestDispatcher_DoneWithoutActiveSession(t *testing.T) {
	dispatcher, _, _, finalizer := newDispatcherWithSession()
	teacher := newFakeConnection(types.RoleTeacher, "t1")

	dispatcher.HandleMessage(teacher, command(t, types.EventDone, nil))

	assertErrorReply(t, teacher, msgNoActiveSession)
	if finalizer.calls != 0 {
		t.Error("DONE with no session must not reach the finalizer")
	}
}

func TestDispatcher_MyAttendanceRepliesToSenderOnly(t *testing.T) {
	dispatcher, session, broadcaster, _ := newDispatcherWithSession("s1", "s2")
	session.Mark("s1", types.StatusPresent)
	student := newFakeConnection(types.RoleStudent, "s1")

	dispatcher.HandleMessage(student, command(t, types.EventMyAttendance, nil))

	envelope := student.lastEnvelope(t)
	if envelope.Event != types.EventMyAttendance {
		t.Fatalf("Expected MY_ATTENDANCE reply, got %s", envelope.Event)
	}
	data, ok := envelope.Data.(map[string]interface{})
	if !ok || data["status"] != types.StatusPresent {
		t.Errorf("Expected present status, got %+v", envelope.Data)
	}
	if broadcaster.eventCount() != 0 {
		t.Error("MY_ATTENDANCE must never broadcast")
	}
}

func TestDispatcher_MyAttendanceOffRosterSeesPlaceholder(t *testing.T) {
	dispatcher, _, _, _ := newDispatcherWithSession("s1")
	student := newFakeConnection(types.RoleStudent, "s99")

	dispatcher.HandleMessage(student, command(t, types.EventMyAttendance, nil))

	envelope := student.lastEnvelope(t)
	if envelope.Event != types.EventMyAttendance {
		t.Fatalf("Expected MY_ATTENDANCE reply, got %s", envelope.Event)
	}
	data, ok := envelope.Data.(map[string]interface{})
	if !ok || data["status"] != types.StatusNotYetUpdated {
		t.Errorf("Expected placeholder status, got %+v", envelope.Data)
	}
}

func TestDispatcher_MyAttendanceWithoutActiveSession(t *testing.T) {
	dispatcher, _, _, _ := newDispatcherWithSession()
	student := newFakeConnection(types.RoleStudent, "s1")

	dispatcher.HandleMessage(student, command(t, types.EventMyAttendance, nil))

	assertErrorReply(t, student, msgNoActiveSession)
}
