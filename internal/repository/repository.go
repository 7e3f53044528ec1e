// Package repository declares the storage interfaces the services depend on.
// Implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/sakif/tomato-slides/internal/model"
)

// StudentRepository stores the roster of each classroom session.
type StudentRepository interface {
	// Add inserts a new student. The ID must already be set.
	Add(ctx context.Context, student *model.Student) error
	// Upsert saves the student's latest code and output, creating the entry if
	// the student is unknown to this session.
	Upsert(ctx context.Context, student *model.Student) error
	Get(ctx context.Context, sessionCode, id string) (*model.Student, error)
	// List returns the session's students in join order. An unknown session has
	// no students, which is not an error.
	List(ctx context.Context, sessionCode string) ([]model.Student, error)
}
