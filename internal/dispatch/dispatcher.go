package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"rollcall/internal/attendance"
	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// Broadcaster pushes a notification to every open connection.
type Broadcaster interface {
	Broadcast(event string, data interface{}) error
}

// Finalizer commits the live session and reports the outcome to all
// observers.
type Finalizer interface {
	Finalize(ctx context.Context) (types.Summary, error)
}

// Dispatcher validates and applies inbound real-time commands against
// the shared attendance session. Authorization is enforced per message
// from the identity bound to the connection, never from message
// content.
type Dispatcher struct {
	session     interfaces.Session
	finalizer   Finalizer
	broadcaster Broadcaster
}

// NewDispatcher creates a command dispatcher.
func NewDispatcher(session interfaces.Session, finalizer Finalizer, broadcaster Broadcaster) *Dispatcher {
	return &Dispatcher{
		session:     session,
		finalizer:   finalizer,
		broadcaster: broadcaster,
	}
}

// HandleMessage processes one inbound command: decode the envelope,
// gate on the sender's role, then dispatch by event. Every failure is
// reported to the sender alone; broadcasts happen only for applied
// state changes and summary requests.
func (d *Dispatcher) HandleMessage(conn interfaces.Connection, data []byte) {
	var envelope types.InboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		d.sendError(conn, msgInvalidFormat)
		return
	}

	if !types.IsValidEvent(envelope.Event) {
		d.sendError(conn, msgUnknownEvent)
		return
	}

	if !allowedRole(envelope.Event, conn.Identity().Role) {
		d.sendError(conn, msgForbidden)
		return
	}

	switch envelope.Event {
	case types.EventAttendanceMarked:
		d.handleMark(conn, envelope.Data)
	case types.EventTodaySummary:
		d.handleSummary(conn)
	case types.EventDone:
		d.handleDone(conn)
	case types.EventMyAttendance:
		d.handleMyAttendance(conn)
	}
}

// allowedRole is the per-event authorization gate: marking,
// summarizing, and finalizing are teacher commands; the attendance
// lookup is student-only.
func allowedRole(event, role string) bool {
	switch event {
	case types.EventAttendanceMarked, types.EventTodaySummary, types.EventDone:
		return role == types.RoleTeacher
	case types.EventMyAttendance:
		return role == types.RoleStudent
	default:
		return false
	}
}

// handleMark applies one mark and broadcasts it to all open
// connections, sender included. A mark for a student outside the
// roster snapshot changes nothing and is never broadcast; the sender
// gets an error so the dropped command is observable.
func (d *Dispatcher) handleMark(conn interfaces.Connection, payload json.RawMessage) {
	var mark types.MarkData
	if err := json.Unmarshal(payload, &mark); err != nil || mark.StudentID == "" {
		d.sendError(conn, msgInvalidFormat)
		return
	}

	if err := d.session.Mark(mark.StudentID, mark.Status); err != nil {
		switch {
		case errors.Is(err, attendance.ErrNoActiveSession):
			d.sendError(conn, msgNoActiveSession)
		case errors.Is(err, attendance.ErrUnknownStudent):
			d.sendError(conn, msgUnknownStudent)
		case errors.Is(err, types.ErrInvalidStatus):
			d.sendError(conn, msgInvalidFormat)
		default:
			d.sendError(conn, msgInvalidFormat)
		}
		return
	}

	d.broadcast(types.EventAttendanceMarked, types.MarkData{
		StudentID: mark.StudentID,
		Status:    mark.Status,
	})
}

// handleSummary broadcasts the current counts. Repeated requests have
// no side effect beyond the broadcast itself.
func (d *Dispatcher) handleSummary(conn interfaces.Connection) {
	summary, err := d.session.Summary()
	if err != nil {
		d.sendError(conn, msgNoActiveSession)
		return
	}

	d.broadcast(types.EventTodaySummary, summary)
}

// handleDone hands off to the finalizer, which persists, clears, and
// broadcasts the outcome itself. A failed commit preserves the session
// so DONE can be retried.
func (d *Dispatcher) handleDone(conn interfaces.Connection) {
	if !d.session.Active() {
		d.sendError(conn, msgNoActiveSession)
		return
	}

	if _, err := d.finalizer.Finalize(context.Background()); err != nil {
		if errors.Is(err, attendance.ErrNoActiveSession) {
			d.sendError(conn, msgNoActiveSession)
			return
		}
		// Persist failures were already broadcast by the finalizer.
		log.Printf("Finalize failed: %v", err)
	}
}

// handleMyAttendance replies to the requesting student only. A student
// missing from the roster snapshot sees the placeholder status, not an
// error.
func (d *Dispatcher) handleMyAttendance(conn interfaces.Connection) {
	if !d.session.Active() {
		d.sendError(conn, msgNoActiveSession)
		return
	}

	status, ok := d.session.Status(conn.Identity().UserID)
	if !ok {
		status = types.StatusNotYetUpdated
	}

	d.send(conn, types.EventMyAttendance, types.StatusData{Status: status})
}

func (d *Dispatcher) broadcast(event string, data interface{}) {
	if err := d.broadcaster.Broadcast(event, data); err != nil {
		log.Printf("Failed to broadcast %s: %v", event, err)
	}
}

func (d *Dispatcher) send(conn interfaces.Connection, event string, data interface{}) {
	if err := conn.WriteJSON(types.Envelope{Event: event, Data: data}); err != nil {
		log.Printf("Failed to send %s to %s: %v", event, conn.Identity().UserID, err)
	}
}

func (d *Dispatcher) sendError(conn interfaces.Connection, message string) {
	d.send(conn, types.EventError, types.ErrorData{Message: message})
}
