package attendance

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"rollcall/pkg/types"
)

// Session is the single live attendance roll call. The whole process
// shares one instance; every transition takes the mutex, so a start
// from the HTTP layer, marks from teacher connections, and a finalize
// never interleave mid-operation.
//
// An empty classID means no session is active. The marks map is keyed
// by the roster snapshot taken at start and never gains or loses keys
// while the session is active.
type Session struct {
	mu         sync.Mutex
	rollCallID string
	classID    string
	startedAt  time.Time
	marks      map[string]string
}

// NewSession creates an empty session in the no-session state.
func NewSession() *Session {
	return &Session{}
}

// Start opens a roll call for a class. The roster is deduplicated and
// every student starts as absent. Fails with ErrSessionAlreadyActive
// while another roll call is open; the teacher must finalize or cancel
// first, so an in-flight roll call can never be silently discarded.
func (s *Session) Start(classID string, roster []string) (*types.SessionSnapshot, error) {
	if len(roster) == 0 {
		return nil, ErrEmptyRoster
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.classID != "" {
		return nil, ErrSessionAlreadyActive
	}

	marks := make(map[string]string, len(roster))
	for _, studentID := range roster {
		marks[studentID] = types.StatusAbsent
	}

	s.rollCallID = uuid.New().String()
	s.classID = classID
	s.startedAt = time.Now()
	s.marks = marks

	log.Printf("Attendance session started: class=%s roster=%d", classID, len(marks))
	return s.snapshotLocked(), nil
}

// Mark sets one student's status. Students not on the roster snapshot
// can never be marked, even if added to the class afterward.
func (s *Session) Mark(studentID, status string) error {
	if !types.IsValidStatus(status) {
		return types.ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.classID == "" {
		return ErrNoActiveSession
	}
	if _, ok := s.marks[studentID]; !ok {
		return ErrUnknownStudent
	}

	s.marks[studentID] = status
	return nil
}

// Snapshot returns an owned copy of the current state.
func (s *Session) Snapshot() *types.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Summary counts the current marks.
func (s *Session) Summary() (types.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.classID == "" {
		return types.Summary{}, ErrNoActiveSession
	}
	return summarize(s.marks), nil
}

// Status returns the current mark for a student and whether the
// student is on the active roster. An inactive session has no roster,
// so every lookup reports false.
func (s *Session) Status(studentID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.marks[studentID]
	return status, ok
}

// Active reports whether a roll call is open.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classID != ""
}

// Clear unconditionally resets to the no-session state. It is the only
// way to leave the active state and is idempotent.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Session) snapshotLocked() *types.SessionSnapshot {
	marks := make(map[string]string, len(s.marks))
	for studentID, status := range s.marks {
		marks[studentID] = status
	}
	return &types.SessionSnapshot{
		RollCallID: s.rollCallID,
		ClassID:    s.classID,
		StartedAt:  s.startedAt,
		Marks:      marks,
	}
}

func (s *Session) clearLocked() {
	s.rollCallID = ""
	s.classID = ""
	s.startedAt = time.Time{}
	s.marks = nil
}

func summarize(marks map[string]string) types.Summary {
	summary := types.Summary{Total: len(marks)}
	for _, status := range marks {
		if status == types.StatusPresent {
			summary.Present++
		} else {
			summary.Absent++
		}
	}
	return summary
}
