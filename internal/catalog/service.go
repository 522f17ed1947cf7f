// Package catalog manages the course and test catalogue.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quizpath/quizpath/internal/domain"
	"github.com/quizpath/quizpath/internal/errors"
)

type Store interface {
	CreateCourse(ctx context.Context, c *domain.Course) error
	Course(ctx context.Context, id string) (*domain.Course, error)
	ListCourses(ctx context.Context) ([]domain.Course, error)
	CreateTest(ctx context.Context, t *domain.Test) error
	ListCourseTests(ctx context.Context, courseID string) ([]domain.Test, error)
}

type Config struct {
	Store Store
}

type Service struct {
	store Store
}

func NewService(c Config) *Service {
	return &Service{store: c.Store}
}

type CreateCourseRequest struct {
	Title       string
	Description string
	OrderNumber int
}

// CreateCourse adds a course. Order numbers are unique across courses; a
// duplicate fails with CodeAlreadyExists.
func (s *Service) CreateCourse(ctx context.Context, req CreateCourseRequest) (*domain.Course, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || req.OrderNumber <= 0 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("title and a positive order number are required"))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate course ID: %w", err)
	}

	c := &domain.Course{
		ID:          id.String(),
		Title:       title,
		Description: req.Description,
		OrderNumber: req.OrderNumber,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.CreateCourse(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCourses returns all courses ordered by order number, with tests
// attached. Stripping correct answers before exposure is the API layer's job.
func (s *Service) ListCourses(ctx context.Context) ([]domain.Course, error) {
	return s.store.ListCourses(ctx)
}

type CreateTestRequest struct {
	CourseID      string
	Question      string
	Options       []string
	CorrectAnswer int
	// Points defaults to 1 when zero.
	Points int
}

// CreateTest adds a multiple-choice test to a course. Tests are immutable
// after creation.
func (s *Service) CreateTest(ctx context.Context, req CreateTestRequest) (*domain.Test, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("question is required"))
	}
	if len(req.Options) < 2 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("options must contain at least 2 choices, got %d", len(req.Options)))
	}
	if req.CorrectAnswer < 0 || req.CorrectAnswer >= len(req.Options) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("correct answer must be a valid index into options"))
	}
	if req.Points < 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("points must be positive"))
	}

	// Verify the course exists before inserting, so a missing course is a
	// NotFound even on stores without referential checks.
	if _, err := s.store.Course(ctx, req.CourseID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate test ID: %w", err)
	}

	points := req.Points
	if points == 0 {
		points = 1
	}

	t := &domain.Test{
		ID:            id.String(),
		CourseID:      req.CourseID,
		Question:      req.Question,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Points:        points,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.CreateTest(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListCourseTests returns the tests of one course.
func (s *Service) ListCourseTests(ctx context.Context, courseID string) ([]domain.Test, error) {
	if _, err := s.store.Course(ctx, courseID); err != nil {
		return nil, err
	}
	return s.store.ListCourseTests(ctx, courseID)
}
