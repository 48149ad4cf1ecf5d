package types

import (
	"encoding/json"
	"time"
)

// User roles. A role is fixed at signup and carried in the identity token.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Attendance statuses. StatusNotYetUpdated is never stored; it is the
// reply a student sees before any mark has been applied for them.
const (
	StatusPresent       = "present"
	StatusAbsent        = "absent"
	StatusNotYetUpdated = "not yet updated"
)

// Real-time event names, shared by inbound commands and outbound
// notifications.
const (
	EventAttendanceMarked = "ATTENDANCE_MARKED"
	EventTodaySummary     = "TODAY_SUMMARY"
	EventDone             = "DONE"
	EventMyAttendance     = "MY_ATTENDANCE"
	EventError            = "ERROR"
)

// User is a registered account. Password holds the bcrypt hash and is
// never serialized.
type User struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Email    string `json:"email" db:"email"`
	Password string `json:"-" db:"password_hash"`
	Role     string `json:"role" db:"role"`
}

// Class is a roster owned by a teacher. StudentIDs may grow via the
// HTTP layer at any time; a live attendance session snapshots it once
// at start and is isolated from later edits.
type Class struct {
	ID         string   `json:"id" db:"id"`
	Name       string   `json:"className" db:"name"`
	TeacherID  string   `json:"teacherId" db:"teacher_id"`
	StudentIDs []string `json:"studentIds" db:"student_ids"`
}

// AttendanceRecord is one student's durable mark for one roll call.
// RollCallID identifies the session that produced it; together with
// StudentID it makes the finalize batch insert idempotent under retry.
type AttendanceRecord struct {
	RollCallID string    `json:"rollCallId" db:"roll_call_id"`
	ClassID    string    `json:"classId" db:"class_id"`
	StudentID  string    `json:"studentId" db:"student_id"`
	Status     string    `json:"status" db:"status"`
	RecordedAt time.Time `json:"recordedAt" db:"recorded_at"`
}

// Identity is the verified claim set carried by an identity token.
// It is bound to a connection once at handshake time and is immutable
// for the connection's lifetime.
type Identity struct {
	Email  string `json:"email"`
	Role   string `json:"role"`
	UserID string `json:"userId"`
}

// Envelope is the wire format for all real-time messages in both
// directions: {"event": <name>, "data": <event-specific>}.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// InboundEnvelope defers payload decoding so the dispatcher can gate
// on the event name before parsing event-specific data.
type InboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// MarkData is the payload of an ATTENDANCE_MARKED command and of its
// broadcast notification.
type MarkData struct {
	StudentID string `json:"studentId"`
	Status    string `json:"status"`
}

// Summary counts the current marks of an active session.
type Summary struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Total   int `json:"total"`
}

// StatusData is the unicast MY_ATTENDANCE reply.
type StatusData struct {
	Status string `json:"status"`
}

// ErrorData is the unicast ERROR reply.
type ErrorData struct {
	Message string `json:"message"`
}

// DoneData is the broadcast result of a successful finalize. The
// counts describe the records just written, not a re-read of storage.
type DoneData struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
	Total   int    `json:"total"`
}

// SessionSnapshot is a point-in-time copy of the live attendance
// session. Marks is an owned copy; mutating it does not affect the
// session.
type SessionSnapshot struct {
	RollCallID string            `json:"rollCallId"`
	ClassID    string            `json:"classId"`
	StartedAt  time.Time         `json:"startedAt"`
	Marks      map[string]string `json:"marks"`
}

// Active reports whether the snapshot was taken from a live session.
func (s *SessionSnapshot) Active() bool {
	return s.ClassID != ""
}
