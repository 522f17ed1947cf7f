// Package memory is a mutex-guarded in-memory data store. It backs package
// tests and lets the server run without a configured Postgres.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/quizpath/quizpath/internal/domain"
	"github.com/quizpath/quizpath/internal/errors"
)

type Store struct {
	mu sync.Mutex

	users    map[string]*domain.User
	byEmail  map[string]string
	courses  map[string]*domain.Course
	byOrder  map[int]string
	tests    map[string]*domain.Test
	attempts []domain.Attempt
}

func NewStore() *Store {
	return &Store{
		users:   make(map[string]*domain.User),
		byEmail: make(map[string]string),
		courses: make(map[string]*domain.Course),
		byOrder: make(map[int]string),
		tests:   make(map[string]*domain.Test),
	}
}

// cloneStrings copies a slice preserving empty-but-non-nil, so a fresh
// user's finished courses read back as [] the same way the Postgres store
// scans them.
func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

type txKey struct{}

// lock acquires the store mutex unless ctx is already inside RunInTx.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RunInTx serializes fn against all other store operations, which gives a
// submission the same atomic-unit-of-work semantics the Postgres store gets
// from a transaction. There is no rollback: callers treat a failed unit as a
// failed submission.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, struct{}{}))
}

// users

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	defer s.lock(ctx)()

	if _, ok := s.byEmail[u.Email]; ok {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("email already registered: %s", u.Email))
	}

	clone := *u
	clone.FinishedCourses = cloneStrings(u.FinishedCourses)
	s.users[u.ID] = &clone
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *Store) User(ctx context.Context, id string) (*domain.User, error) {
	defer s.lock(ctx)()
	return s.userLocked(id)
}

func (s *Store) userLocked(id string) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: %s", id))
	}

	clone := *u
	clone.FinishedCourses = cloneStrings(u.FinishedCourses)
	return &clone, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	defer s.lock(ctx)()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found"))
	}
	return s.userLocked(id)
}

func (s *Store) UpdateSettings(ctx context.Context, userID string, st domain.Settings) error {
	defer s.lock(ctx)()

	u, ok := s.users[userID]
	if !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: %s", userID))
	}
	u.Settings = st
	return nil
}

func (s *Store) IncrementScore(ctx context.Context, userID string, delta int) (int, error) {
	defer s.lock(ctx)()

	u, ok := s.users[userID]
	if !ok {
		return 0, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: %s", userID))
	}
	u.Score += delta
	return u.Score, nil
}

func (s *Store) FinishCourseIfAbsent(ctx context.Context, userID, courseID string) (bool, error) {
	defer s.lock(ctx)()

	u, ok := s.users[userID]
	if !ok {
		return false, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: %s", userID))
	}

	for _, id := range u.FinishedCourses {
		if id == courseID {
			return false, nil
		}
	}
	u.FinishedCourses = append(u.FinishedCourses, courseID)
	return true, nil
}

func (s *Store) ListUserStats(ctx context.Context) ([]domain.UserStats, error) {
	defer s.lock(ctx)()

	stats := make([]domain.UserStats, 0, len(s.users))
	for _, u := range s.users {
		st := domain.UserStats{
			UserID:          u.ID,
			Name:            u.Name,
			Score:           u.Score,
			FinishedCourses: len(u.FinishedCourses),
		}
		for _, a := range s.attempts {
			if a.UserID != u.ID {
				continue
			}
			st.TotalAttempts++
			if a.IsCorrect {
				st.CorrectAttempts++
			}
		}
		stats = append(stats, st)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Score != stats[j].Score {
			return stats[i].Score > stats[j].Score
		}
		return stats[i].Name < stats[j].Name
	})
	return stats, nil
}

// courses and tests

func (s *Store) CreateCourse(ctx context.Context, c *domain.Course) error {
	defer s.lock(ctx)()

	if _, ok := s.byOrder[c.OrderNumber]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("course with order number %d already exists", c.OrderNumber))
	}

	clone := *c
	clone.Tests = nil
	s.courses[c.ID] = &clone
	s.byOrder[c.OrderNumber] = c.ID
	return nil
}

func (s *Store) Course(ctx context.Context, id string) (*domain.Course, error) {
	defer s.lock(ctx)()

	c, ok := s.courses[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("course not found: %s", id))
	}
	clone := *c
	return &clone, nil
}

func (s *Store) ListCourses(ctx context.Context) ([]domain.Course, error) {
	defer s.lock(ctx)()

	courses := make([]domain.Course, 0, len(s.courses))
	for _, c := range s.courses {
		clone := *c
		clone.Tests = s.courseTestsLocked(c.ID)
		courses = append(courses, clone)
	}

	sort.Slice(courses, func(i, j int) bool { return courses[i].OrderNumber < courses[j].OrderNumber })
	return courses, nil
}

func (s *Store) CreateTest(ctx context.Context, t *domain.Test) error {
	defer s.lock(ctx)()

	if _, ok := s.courses[t.CourseID]; !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("course not found: %s", t.CourseID))
	}

	clone := *t
	clone.Options = append([]string(nil), t.Options...)
	s.tests[t.ID] = &clone
	return nil
}

func (s *Store) courseTestsLocked(courseID string) []domain.Test {
	var tests []domain.Test
	for _, t := range s.tests {
		if t.CourseID == courseID {
			clone := *t
			clone.Options = append([]string(nil), t.Options...)
			tests = append(tests, clone)
		}
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].CreatedAt.Before(tests[j].CreatedAt) })
	return tests
}

func (s *Store) ListCourseTests(ctx context.Context, courseID string) ([]domain.Test, error) {
	defer s.lock(ctx)()
	return s.courseTestsLocked(courseID), nil
}

func (s *Store) Test(ctx context.Context, id string) (*domain.Test, error) {
	defer s.lock(ctx)()

	t, ok := s.tests[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("test not found: %s", id))
	}
	clone := *t
	clone.Options = append([]string(nil), t.Options...)
	return &clone, nil
}

func (s *Store) CountCourseTests(ctx context.Context, courseID string) (int, error) {
	defer s.lock(ctx)()

	n := 0
	for _, t := range s.tests {
		if t.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

// attempts

func (s *Store) CreateAttempt(ctx context.Context, a *domain.Attempt) error {
	defer s.lock(ctx)()
	s.attempts = append(s.attempts, *a)
	return nil
}

func (s *Store) CountCorrectTests(ctx context.Context, userID, courseID string) (int, error) {
	defer s.lock(ctx)()

	seen := make(map[string]struct{})
	for _, a := range s.attempts {
		if a.UserID != userID || !a.IsCorrect {
			continue
		}
		t, ok := s.tests[a.TestID]
		if !ok || t.CourseID != courseID {
			continue
		}
		seen[a.TestID] = struct{}{}
	}
	return len(seen), nil
}

func (s *Store) UserAttempts(ctx context.Context, userID string) ([]domain.AttemptRecord, error) {
	defer s.lock(ctx)()

	var records []domain.AttemptRecord
	for _, a := range s.attempts {
		if a.UserID != userID {
			continue
		}
		rec := domain.AttemptRecord{Attempt: a}
		if t, ok := s.tests[a.TestID]; ok {
			rec.Question = t.Question
			rec.CorrectAnswer = t.CorrectAnswer
			if c, ok := s.courses[t.CourseID]; ok {
				rec.CourseTitle = c.Title
				rec.CourseOrder = c.OrderNumber
			}
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	return records, nil
}
