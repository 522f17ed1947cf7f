// Package quiz implements answer evaluation, attempt recording and course
// progress tracking.
package quiz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quizpath/quizpath/internal/domain"
	"github.com/quizpath/quizpath/internal/errors"
	"github.com/quizpath/quizpath/internal/event"
)

// Store is the data-store collaborator. Implementations must make
// IncrementScore and FinishCourseIfAbsent atomic operations, and RunInTx must
// make a whole submission atomic across multiple service instances sharing
// the store.
type Store interface {
	Test(ctx context.Context, id string) (*domain.Test, error)
	CreateAttempt(ctx context.Context, a *domain.Attempt) error
	CountCourseTests(ctx context.Context, courseID string) (int, error)
	CountCorrectTests(ctx context.Context, userID, courseID string) (int, error)
	IncrementScore(ctx context.Context, userID string, delta int) (int, error)
	FinishCourseIfAbsent(ctx context.Context, userID, courseID string) (bool, error)
	UserAttempts(ctx context.Context, userID string) ([]domain.AttemptRecord, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Config struct {
	EventBus *event.Bus
	Store    Store

	// Now overrides the attempt timestamp source in tests.
	Now func() time.Time
}

type Service struct {
	eb    *event.Bus
	store Store
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:    c.EventBus,
		store: c.Store,
		now:   c.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Evaluate decides correctness of a submitted answer index against the test's
// stored correct answer and returns the points to award. No side effects.
func Evaluate(t *domain.Test, answer int) (isCorrect bool, points int) {
	if answer != t.CorrectAnswer {
		return false, 0
	}
	return true, t.Points
}

type SubmitAnswerRequest struct {
	UserID string
	TestID string
	Answer int
}

type SubmitAnswerResponse struct {
	IsCorrect bool
	Points    int
	// CourseCompleted reports that this submission transitioned the course
	// into the completed state, as opposed to the course having been
	// completed before.
	CourseCompleted bool
}

// SubmitAnswer evaluates a submission, records the attempt, and on a correct
// answer increments the user's score and re-derives course completion. The
// whole sequence runs as one store transaction: a store failure fails the
// submission instead of applying it partially.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	if req.Answer < 0 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("answer index must not be negative, got %d", req.Answer))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate attempt ID: %w", err)
	}

	var (
		resp     SubmitAnswerResponse
		attempt  domain.Attempt
		courseID string
		total    int
	)

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		t, err := s.store.Test(ctx, req.TestID)
		if err != nil {
			return err
		}
		courseID = t.CourseID

		isCorrect, points := Evaluate(t, req.Answer)
		attempt = domain.Attempt{
			ID:        id.String(),
			UserID:    req.UserID,
			TestID:    req.TestID,
			Answer:    req.Answer,
			IsCorrect: isCorrect,
			Points:    points,
			CreatedAt: s.now().UTC(),
		}

		if err := s.store.CreateAttempt(ctx, &attempt); err != nil {
			return err
		}

		resp.IsCorrect = isCorrect
		resp.Points = points
		if !isCorrect {
			return nil
		}

		total, err = s.store.IncrementScore(ctx, req.UserID, points)
		if err != nil {
			return err
		}

		completed, err := s.checkCompletion(ctx, req.UserID, t.CourseID)
		if err != nil {
			return err
		}
		resp.CourseCompleted = completed
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventAttemptRecorded{Attempt: attempt})
	if attempt.IsCorrect {
		s.eb.Publish(ctx, domain.EventScoreUpdated{
			UserID:     req.UserID,
			Score:      total,
			UpdateTime: attempt.CreatedAt,
		})
	}
	if resp.CourseCompleted {
		s.eb.Publish(ctx, domain.EventCourseCompleted{
			UserID:   req.UserID,
			CourseID: courseID,
		})
	}

	return &resp, nil
}

// checkCompletion re-derives course completion from stored facts: it compares
// the number of distinct tests the user has answered correctly at least once
// against the course's test count. The triggering attempt is already visible
// inside the transaction, so two racing submissions cannot both miss the
// completion condition. Returns true only when this call appended the course.
func (s *Service) checkCompletion(ctx context.Context, userID, courseID string) (bool, error) {
	tests, err := s.store.CountCourseTests(ctx, courseID)
	if err != nil {
		return false, err
	}

	// A course without tests is never completed through this path.
	if tests == 0 {
		return false, nil
	}

	done, err := s.store.CountCorrectTests(ctx, userID, courseID)
	if err != nil {
		return false, err
	}
	if done != tests {
		return false, nil
	}

	return s.store.FinishCourseIfAbsent(ctx, userID, courseID)
}

type ListAttemptsRequest struct {
	UserID string
}

type ListAttemptsResponse struct {
	Total          int
	CorrectAnswers int
	TotalPoints    int
	Attempts       []domain.AttemptRecord
}

// ListAttempts returns the user's full submission history, newest first,
// with aggregate counters.
func (s *Service) ListAttempts(ctx context.Context, req ListAttemptsRequest) (*ListAttemptsResponse, error) {
	records, err := s.store.UserAttempts(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	resp := &ListAttemptsResponse{
		Total:    len(records),
		Attempts: records,
	}
	for _, r := range records {
		if r.IsCorrect {
			resp.CorrectAnswers++
		}
		resp.TotalPoints += r.Points
	}
	return resp, nil
}
