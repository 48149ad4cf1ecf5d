package attendance

import (
	"context"
	"fmt"
	"log"
	"time"

	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// Broadcaster pushes a notification to every open connection. Defined
// here to avoid coupling the finalizer to the websocket registry
// implementation.
type Broadcaster interface {
	Broadcast(event string, data interface{}) error
}

// Finalizer drains the live session into durable storage exactly once
// and reports the outcome to all observers.
type Finalizer struct {
	session     *Session
	store       interfaces.Store
	broadcaster Broadcaster
}

// NewFinalizer creates a finalizer bound to the shared session.
func NewFinalizer(session *Session, store interfaces.Store, broadcaster Broadcaster) *Finalizer {
	return &Finalizer{
		session:     session,
		store:       store,
		broadcaster: broadcaster,
	}
}

// Finalize builds one record per mark, batch-inserts them, clears the
// session, and broadcasts the result. The session lock is held across
// the store write: no mark can slip in between the read that built the
// records and the clear, and a concurrent start cannot race the drain.
//
// On a failed write the session is preserved so the teacher can retry
// DONE; the in-memory marks are the only copy of the roll call until
// the commit succeeds. The per-session roll-call ID makes the retried
// batch idempotent at the storage layer.
func (f *Finalizer) Finalize(ctx context.Context) (types.Summary, error) {
	s := f.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.classID == "" {
		return types.Summary{}, ErrNoActiveSession
	}

	recordedAt := time.Now()
	records := make([]*types.AttendanceRecord, 0, len(s.marks))
	for studentID, status := range s.marks {
		records = append(records, &types.AttendanceRecord{
			RollCallID: s.rollCallID,
			ClassID:    s.classID,
			StudentID:  studentID,
			Status:     status,
			RecordedAt: recordedAt,
		})
	}

	if err := f.store.InsertAttendanceRecords(ctx, records); err != nil {
		log.Printf("Attendance finalize failed for class %s: %v", s.classID, err)
		f.broadcast(map[string]interface{}{
			"success": false,
			"message": "Failed to persist attendance data",
		})
		return types.Summary{}, fmt.Errorf("failed to persist attendance records: %w", err)
	}

	summary := summarize(s.marks)
	classID := s.classID
	s.clearLocked()

	log.Printf("Attendance session finalized: class=%s present=%d absent=%d total=%d",
		classID, summary.Present, summary.Absent, summary.Total)

	f.broadcast(types.DoneData{
		Success: true,
		Message: "Attendance data persisted successfully",
		Present: summary.Present,
		Absent:  summary.Absent,
		Total:   summary.Total,
	})

	return summary, nil
}

// broadcast is best-effort; a failed notification never undoes a
// commit.
func (f *Finalizer) broadcast(data interface{}) {
	if err := f.broadcaster.Broadcast(types.EventDone, data); err != nil {
		log.Printf("Failed to broadcast DONE notification: %v", err)
	}
}
