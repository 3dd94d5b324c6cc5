package database

import (
	"database/sql"
	"fmt"
)

// RequiredTables lists every table the store reads or writes
var RequiredTables = []string{
	"users",
	"classrooms",
	"classroom_members",
	"lectures",
	"chat_messages",
	"lecture_notes",
	"schema_migrations",
}

// RequiredIndexes lists the indexes backing history replay and membership checks
var RequiredIndexes = []string{
	"idx_classroom_members_user",
	"idx_lectures_classroom",
	"idx_chat_messages_lecture_time",
	"idx_lecture_notes_lecture_time",
}

// SchemaValidator checks a migrated database against what the store expects
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every check
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateIndexes(); err != nil {
		return err
	}
	return v.ValidateTableStructure()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for _, table := range RequiredTables {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// ValidateIndexes verifies that all required indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range RequiredIndexes {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}
	return nil
}

// ValidateTableStructure verifies column types of the history tables
// TECHNICAL DISCOVERY: Timestamps must be DATETIME so go-sqlite3 scans them into time.Time
func (v *SchemaValidator) ValidateTableStructure() error {
	expected := map[string]map[string]string{
		"chat_messages": {
			"id":         "TEXT",
			"lecture_id": "TEXT",
			"sender_id":  "TEXT",
			"content":    "TEXT",
			"timestamp":  "DATETIME",
		},
		"lecture_notes": {
			"id":         "TEXT",
			"lecture_id": "TEXT",
			"content":    "TEXT",
			"timestamp":  "DATETIME",
		},
	}

	for table, columns := range expected {
		if err := v.validateColumns(table, columns); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}
	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(table string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue interface{}
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, wantType := range expected {
		gotType, ok := found[column]
		if !ok {
			return fmt.Errorf("column %s not found", column)
		}
		if gotType != wantType {
			return fmt.Errorf("column %s has type %s, expected %s", column, gotType, wantType)
		}
	}
	return nil
}
