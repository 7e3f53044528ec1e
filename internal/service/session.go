// Package service contains the business logic of the classroom server.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes storage
//
// Services take interfaces (repository.StudentRepository, Converter) so tests can
// hand them in-memory fakes, and they return apperror values so handlers can pick
// status codes without knowing the rules.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/tomato-slides/internal/apperror"
	"github.com/sakif/tomato-slides/internal/model"
	"github.com/sakif/tomato-slides/internal/repository"
)

const (
	MaxStudentNameLength = 100
	MaxCodeLength        = 100000 // ~100KB of code
	MaxOutputLength      = 1 << 20
)

// SessionService tracks who joined a session and what they last ran.
type SessionService struct {
	repo   repository.StudentRepository
	logger *slog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(repo repository.StudentRepository, logger *slog.Logger) *SessionService {
	return &SessionService{
		repo:   repo,
		logger: logger,
	}
}

// Join registers a student under a session and returns their new id.
// Session codes are not checked against uploaded decks: a class can start
// coding before any slides exist.
func (s *SessionService) Join(ctx context.Context, sessionCode, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("name", "Name is required")
	}
	if len(name) > MaxStudentNameLength {
		return "", apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxStudentNameLength))
	}

	student := &model.Student{
		ID:          uuid.NewString(),
		SessionCode: sessionCode,
		Name:        name,
	}
	if err := s.repo.Add(ctx, student); err != nil {
		return "", fmt.Errorf("joining session %s: %w", sessionCode, err)
	}

	s.logger.Info("student joined",
		slog.String("session", sessionCode),
		slog.String("student", student.ID),
	)
	return student.ID, nil
}

// SaveCode records the student's latest code and its output, replacing the
// previous ones.
func (s *SessionService) SaveCode(ctx context.Context, sessionCode, studentID, name, code, output string) error {
	if studentID == "" || strings.TrimSpace(name) == "" {
		return apperror.ValidationFailed("studentId", "Missing studentId or name")
	}
	if len(code) > MaxCodeLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d bytes or less", MaxCodeLength))
	}
	if len(output) > MaxOutputLength {
		output = output[:MaxOutputLength]
	}

	err := s.repo.Upsert(ctx, &model.Student{
		ID:          studentID,
		SessionCode: sessionCode,
		Name:        strings.TrimSpace(name),
		Code:        code,
		Output:      output,
	})
	if err != nil {
		return fmt.Errorf("saving code for %s: %w", studentID, err)
	}
	return nil
}

// Students lists a session's roster in join order.
func (s *SessionService) Students(ctx context.Context, sessionCode string) ([]model.Student, error) {
	return s.repo.List(ctx, sessionCode)
}

// Student returns one student's latest code and output.
func (s *SessionService) Student(ctx context.Context, sessionCode, studentID string) (*model.Student, error) {
	return s.repo.Get(ctx, sessionCode, studentID)
}
