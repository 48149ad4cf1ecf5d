package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator verifies the database structure matches what the
// store expects, independently of the migration system.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"users":              "user accounts",
		"classes":            "class rosters",
		"attendance_records": "finalized roll calls",
		"schema_migrations":  "migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies column types match the Go structs
// that scan them.
func (v *SchemaValidator) ValidateTableStructure() error {
	userColumns := map[string]string{
		"id":            "TEXT",
		"name":          "TEXT",
		"email":         "TEXT",
		"password_hash": "TEXT",
		"role":          "TEXT",
	}
	if err := v.validateColumns("users", userColumns); err != nil {
		return fmt.Errorf("users table structure invalid: %w", err)
	}

	classColumns := map[string]string{
		"id":          "TEXT",
		"name":        "TEXT",
		"teacher_id":  "TEXT",
		"student_ids": "TEXT",
	}
	if err := v.validateColumns("classes", classColumns); err != nil {
		return fmt.Errorf("classes table structure invalid: %w", err)
	}

	attendanceColumns := map[string]string{
		"roll_call_id": "TEXT",
		"class_id":     "TEXT",
		"student_id":   "TEXT",
		"status":       "TEXT",
		"recorded_at":  "DATETIME",
	}
	if err := v.validateColumns("attendance_records", attendanceColumns); err != nil {
		return fmt.Errorf("attendance_records table structure invalid: %w", err)
	}

	return nil
}

func (v *SchemaValidator) tableExists(name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(table string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("failed to query table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	actual := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		actual[name] = colType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, expectedType := range expected {
		actualType, exists := actual[column]
		if !exists {
			return fmt.Errorf("missing column %s", column)
		}
		if actualType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", column, actualType, expectedType)
		}
	}

	return nil
}
