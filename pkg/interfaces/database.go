package interfaces

import (
	"context"
	"rollcall/pkg/types"
)

// Store handles all durable persistence: user accounts, class rosters,
// and finalized attendance records. A single interface keeps
// transaction handling and connection management in one place.
type Store interface {
	// User operations

	// CreateUser inserts a new account. Returns ErrDuplicateEmail when
	// the email is already registered.
	CreateUser(ctx context.Context, user *types.User) error

	// GetUser retrieves an account by ID. Returns ErrUserNotFound when
	// no such account exists.
	GetUser(ctx context.Context, userID string) (*types.User, error)

	// GetUserByEmail retrieves an account by email for login.
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)

	// ListStudents returns all accounts with the student role.
	ListStudents(ctx context.Context) ([]*types.User, error)

	// Class operations

	// CreateClass inserts a new class with its initial roster.
	CreateClass(ctx context.Context, class *types.Class) error

	// GetClass retrieves a class by ID. Returns ErrClassNotFound when
	// no such class exists.
	GetClass(ctx context.Context, classID string) (*types.Class, error)

	// AddStudentToClass appends a student to a class roster. Adding a
	// student already on the roster is a no-op.
	AddStudentToClass(ctx context.Context, classID, studentID string) error

	// Attendance operations

	// InsertAttendanceRecords writes a finalize batch in a single
	// transaction. Records that already exist for the same roll call
	// and student are skipped, so a retried finalize cannot
	// double-insert.
	InsertAttendanceRecords(ctx context.Context, records []*types.AttendanceRecord) error

	// GetStudentAttendance returns the persisted records for one
	// student in one class, oldest first.
	GetStudentAttendance(ctx context.Context, classID, studentID string) ([]*types.AttendanceRecord, error)

	// Health and lifecycle

	// HealthCheck verifies connectivity and basic read access.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and closes the connection.
	Close() error
}
