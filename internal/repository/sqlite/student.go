package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/tomato-slides/internal/apperror"
	"github.com/sakif/tomato-slides/internal/model"
	"github.com/sakif/tomato-slides/internal/repository"
)

// Compile-time check that *DB implements repository.StudentRepository.
var _ repository.StudentRepository = (*DB)(nil)

// Add inserts a student who just joined a session.
func (db *DB) Add(ctx context.Context, student *model.Student) error {
	now := time.Now()
	student.JoinedAt = now
	student.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO students (session_code, id, name, code, output, joined_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		student.SessionCode,
		student.ID,
		student.Name,
		student.Code,
		student.Output,
		student.JoinedAt,
		student.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding student: %w", err)
	}
	return nil
}

// Upsert replaces the student's code and output. A student the session has
// never seen is inserted under the given name; a known student keeps the name
// they joined with.
func (db *DB) Upsert(ctx context.Context, student *model.Student) error {
	now := time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO students (session_code, id, name, code, output, joined_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_code, id) DO UPDATE SET
			code       = excluded.code,
			output     = excluded.output,
			updated_at = excluded.updated_at`,
		student.SessionCode,
		student.ID,
		student.Name,
		student.Code,
		student.Output,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving student %s: %w", student.ID, err)
	}
	student.UpdatedAt = now
	return nil
}

// Get returns one student of a session.
func (db *DB) Get(ctx context.Context, sessionCode, id string) (*model.Student, error) {
	var s model.Student

	err := db.conn.QueryRowContext(ctx,
		`SELECT session_code, id, name, code, output, joined_at, updated_at
		 FROM students
		 WHERE session_code = ? AND id = ?`,
		sessionCode, id,
	).Scan(&s.SessionCode, &s.ID, &s.Name, &s.Code, &s.Output, &s.JoinedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("student", id)
		}
		return nil, fmt.Errorf("sqlite: getting student %s: %w", id, err)
	}

	return &s, nil
}

// List returns a session's students in the order they joined.
func (db *DB) List(ctx context.Context, sessionCode string) ([]model.Student, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT session_code, id, name, code, output, joined_at, updated_at
		 FROM students
		 WHERE session_code = ?
		 ORDER BY rowid`,
		sessionCode,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing students: %w", err)
	}
	defer rows.Close()

	students := make([]model.Student, 0)
	for rows.Next() {
		var s model.Student
		if err := rows.Scan(&s.SessionCode, &s.ID, &s.Name, &s.Code, &s.Output, &s.JoinedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating students: %w", err)
	}

	return students, nil
}
