// Package account handles registration, credential checks, user settings and
// progress lookups.
package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/quizpath/quizpath/internal/domain"
	"github.com/quizpath/quizpath/internal/errors"
)

type Store interface {
	CreateUser(ctx context.Context, u *domain.User) error
	User(ctx context.Context, id string) (*domain.User, error)
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateSettings(ctx context.Context, userID string, st domain.Settings) error
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

type RegisterRequest struct {
	Name     string
	Email    string
	Password string
}

// Register creates a user with a zero score, no finished courses and default
// settings. The email is its unique key; a duplicate fails with
// CodeAlreadyExists.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || email == "" || req.Password == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("name, email and password are required"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}

	u := &domain.User{
		ID:              id.String(),
		Email:           email,
		Name:            name,
		PasswordHash:    string(hash),
		FinishedCourses: []string{},
		Settings:        domain.DefaultSettings(),
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate verifies email and password and returns the user. An unknown
// email and a wrong password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := s.store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, errors.CodeNotFound) {
		return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid email or password"))
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid email or password"))
	}
	return u, nil
}

// UpdateSettings replaces the user's display preferences.
func (s *Service) UpdateSettings(ctx context.Context, userID string, st domain.Settings) error {
	if st.FontSize <= 0 {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("font size must be positive"))
	}
	return s.store.UpdateSettings(ctx, userID, st)
}

type Progress struct {
	Score           int
	FinishedCourses []string
}

// GetProgress returns the user's cumulative score and finished courses.
func (s *Service) GetProgress(ctx context.Context, userID string) (*Progress, error) {
	u, err := s.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Progress{
		Score:           u.Score,
		FinishedCourses: u.FinishedCourses,
	}, nil
}
