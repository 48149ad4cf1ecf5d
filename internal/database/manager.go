package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"

	dbconfig "rollcall/pkg/database"
)

// Manager implements the Store interface over SQLite. All writes are
// funneled through a single goroutine; SQLite allows many concurrent
// readers but only one writer, and serializing writes in-process avoids
// busy-retry churn entirely.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // protects closed
}

// writeOperation represents a queued database write.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the write loop.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine,
// retrying each failed operation exactly once.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && retryable(err) {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// retryable filters out deterministic failures: a duplicate email, a
// missing class, or a constraint violation comes out the same way on
// every attempt, so retrying only delays the caller.
func retryable(err error) bool {
	if errors.Is(err, interfaces.ErrDuplicateEmail) || errors.Is(err, interfaces.ErrClassNotFound) {
		return false
	}
	return !strings.Contains(err.Error(), "constraint failed")
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// CreateUser inserts a new user account.
func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO users (id, name, email, password_hash, role)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			user.ID,
			user.Name,
			user.Email,
			user.Password,
			user.Role,
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
				return interfaces.ErrDuplicateEmail
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// GetUser retrieves a user by ID.
func (m *Manager) GetUser(ctx context.Context, userID string) (*types.User, error) {
	query := `
		SELECT id, name, email, password_hash, role
		FROM users
		WHERE id = ?
	`
	return m.scanUser(m.db.QueryRowContext(ctx, query, userID))
}

// GetUserByEmail retrieves a user by email for login.
func (m *Manager) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	query := `
		SELECT id, name, email, password_hash, role
		FROM users
		WHERE email = ?
	`
	return m.scanUser(m.db.QueryRowContext(ctx, query, email))
}

func (m *Manager) scanUser(row *sql.Row) (*types.User, error) {
	var user types.User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Password, &user.Role)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// ListStudents returns all student accounts ordered by name.
func (m *Manager) ListStudents(ctx context.Context) ([]*types.User, error) {
	query := `
		SELECT id, name, email, password_hash, role
		FROM users
		WHERE role = ?
		ORDER BY name ASC
	`

	rows, err := m.db.QueryContext(ctx, query, types.RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var students []*types.User
	for rows.Next() {
		var user types.User
		err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Password, &user.Role)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		students = append(students, &user)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return students, nil
}

// CreateClass inserts a new class with its initial roster.
func (m *Manager) CreateClass(ctx context.Context, class *types.Class) error {
	return m.executeWrite(func(db *sql.DB) error {
		// Roster stored as a JSON array, same row, no join table; rosters
		// are read whole every time.
		studentIDsJSON, err := json.Marshal(class.StudentIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal student IDs: %w", err)
		}

		query := `
			INSERT INTO classes (id, name, teacher_id, student_ids)
			VALUES (?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			class.ID,
			class.Name,
			class.TeacherID,
			string(studentIDsJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert class: %w", err)
		}
		return nil
	})
}

// GetClass retrieves a class by ID.
func (m *Manager) GetClass(ctx context.Context, classID string) (*types.Class, error) {
	query := `
		SELECT id, name, teacher_id, student_ids
		FROM classes
		WHERE id = ?
	`

	row := m.db.QueryRowContext(ctx, query, classID)

	var class types.Class
	var studentIDsJSON string

	err := row.Scan(&class.ID, &class.Name, &class.TeacherID, &studentIDsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to query class: %w", err)
	}

	if err := json.Unmarshal([]byte(studentIDsJSON), &class.StudentIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal student IDs: %w", err)
	}

	return &class, nil
}

// AddStudentToClass appends a student to a class roster. The
// read-modify-write is safe because all writes go through the single
// write loop.
func (m *Manager) AddStudentToClass(ctx context.Context, classID, studentID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		var studentIDsJSON string
		err := db.QueryRowContext(ctx,
			"SELECT student_ids FROM classes WHERE id = ?", classID,
		).Scan(&studentIDsJSON)
		if err != nil {
			if err == sql.ErrNoRows {
				return interfaces.ErrClassNotFound
			}
			return fmt.Errorf("failed to query class roster: %w", err)
		}

		var studentIDs []string
		if err := json.Unmarshal([]byte(studentIDsJSON), &studentIDs); err != nil {
			return fmt.Errorf("failed to unmarshal student IDs: %w", err)
		}

		for _, id := range studentIDs {
			if id == studentID {
				return nil // already on the roster
			}
		}
		studentIDs = append(studentIDs, studentID)

		updatedJSON, err := json.Marshal(studentIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal student IDs: %w", err)
		}

		_, err = db.ExecContext(ctx,
			"UPDATE classes SET student_ids = ? WHERE id = ?",
			string(updatedJSON), classID,
		)
		if err != nil {
			return fmt.Errorf("failed to update class roster: %w", err)
		}
		return nil
	})
}

// InsertAttendanceRecords writes a finalize batch in one transaction.
// INSERT OR IGNORE against the (roll_call_id, student_id) unique index
// makes a retried finalize idempotent: records that survived a partial
// failure are skipped, not duplicated.
func (m *Manager) InsertAttendanceRecords(ctx context.Context, records []*types.AttendanceRecord) error {
	if len(records) == 0 {
		return nil
	}

	return m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO attendance_records
				(roll_call_id, class_id, student_id, status, recorded_at)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, record := range records {
			_, err := stmt.ExecContext(ctx,
				record.RollCallID,
				record.ClassID,
				record.StudentID,
				record.Status,
				record.RecordedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert attendance record: %w", err)
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit attendance batch: %w", err)
		}
		return nil
	})
}

// GetStudentAttendance returns one student's records for a class,
// oldest first.
func (m *Manager) GetStudentAttendance(ctx context.Context, classID, studentID string) ([]*types.AttendanceRecord, error) {
	query := `
		SELECT roll_call_id, class_id, student_id, status, recorded_at
		FROM attendance_records
		WHERE class_id = ? AND student_id = ?
		ORDER BY recorded_at ASC
	`

	rows, err := m.db.QueryContext(ctx, query, classID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.AttendanceRecord
	for rows.Next() {
		var record types.AttendanceRecord
		err := rows.Scan(
			&record.RollCallID,
			&record.ClassID,
			&record.StudentID,
			&record.Status,
			&record.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance row: %w", err)
		}
		records = append(records, &record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendance rows: %w", err)
	}

	return records, nil
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for migrations.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the write loop and closes the connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// applySQLiteOptimizations applies performance pragmas.
func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
