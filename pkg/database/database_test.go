package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestConfig_Validate(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}

	config.DatabasePath = ""
	if err := config.Validate(); err == nil {
		t.Error("Empty database path should be rejected")
	}
}

func TestMigrationManager_AppliesSchema(t *testing.T) {
	db := openTestDB(t)

	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations should succeed: %v", err)
	}

	validator := NewSchemaValidator(db)
	if err := validator.ValidateTablesExist(); err != nil {
		t.Errorf("All tables should exist after migration: %v", err)
	}
	if err := validator.ValidateTableStructure(); err != nil {
		t.Errorf("Table structure should match: %v", err)
	}
}

func TestMigrationManager_IsIdempotent(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db)

	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("First run should succeed: %v", err)
	}
	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("Second run should be a no-op: %v", err)
	}

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("Expected %d recorded migrations, got %d", len(migrations), count)
	}
}

func TestMigrationManager_EnforcesConstraints(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations should succeed: %v", err)
	}

	// Role check constraint.
	_, err := db.Exec(
		"INSERT INTO users (id, name, email, password_hash, role) VALUES ('u1', 'A', 'a@b.co', 'h', 'admin')")
	if err == nil {
		t.Error("Unknown role should violate the check constraint")
	}

	// Duplicate (roll_call_id, student_id) pairs are rejected.
	_, err = db.Exec(
		"INSERT INTO attendance_records (roll_call_id, class_id, student_id, status, recorded_at) VALUES ('rc1', 'c1', 's1', 'present', CURRENT_TIMESTAMP)")
	if err != nil {
		t.Fatalf("First record should insert: %v", err)
	}
	_, err = db.Exec(
		"INSERT INTO attendance_records (roll_call_id, class_id, student_id, status, recorded_at) VALUES ('rc1', 'c1', 's1', 'absent', CURRENT_TIMESTAMP)")
	if err == nil {
		t.Error("Duplicate roll call record should violate the unique constraint")
	}
}

func TestSchemaValidator_DetectsMissingTables(t *testing.T) {
	db := openTestDB(t)

	if err := NewSchemaValidator(db).ValidateTablesExist(); err == nil {
		t.Error("Validation should fail on an empty database")
	}
}
