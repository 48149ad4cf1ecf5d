package interfaces

import "rollcall/pkg/types"

// Session is the single live attendance roll call. All operations are
// serialized by the implementation; callers never see a partially
// applied transition.
type Session interface {
	// Start opens a roll call for a class with a snapshot of its roster.
	// Every roster ID starts as absent. Fails with ErrSessionAlreadyActive
	// while another roll call is open.
	Start(classID string, roster []string) (*types.SessionSnapshot, error)

	// Mark sets one student's status. The roster is fixed at start time:
	// marking an ID outside it fails with ErrUnknownStudent and changes
	// nothing.
	Mark(studentID, status string) error

	// Snapshot returns an owned copy of the current state.
	Snapshot() *types.SessionSnapshot

	// Summary counts current marks. Fails with ErrNoActiveSession when
	// no roll call is open.
	Summary() (types.Summary, error)

	// Status returns the current mark for a student and whether the
	// student is on the active roster.
	Status(studentID string) (string, bool)

	// Active reports whether a roll call is open.
	Active() bool

	// Clear unconditionally resets to the no-session state. Idempotent.
	Clear()
}
