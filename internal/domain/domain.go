package domain

import (
	"time"
)

// User is a registered learner. Score and FinishedCourses are mutated only by
// the progress logic in the quiz service: Score is the sum of points over all
// correct attempts, and FinishedCourses is an append-only list holding each
// completed course at most once.
type User struct {
	ID              string
	Email           string
	Name            string
	PasswordHash    string
	Score           int
	FinishedCourses []string
	Settings        Settings
	CreatedAt       time.Time
}

// Settings holds per-user display preferences.
type Settings struct {
	FontSize int
	Theme    string
	Language string
}

// DefaultSettings returns the settings assigned at registration.
func DefaultSettings() Settings {
	return Settings{
		FontSize: 16,
		Theme:    "light",
		Language: "en",
	}
}

// Course groups tests. OrderNumber is unique and used for display ordering
// only; it is not required to be a dense sequence.
type Course struct {
	ID          string
	Title       string
	Description string
	OrderNumber int
	Tests       []Test
	CreatedAt   time.Time
}

// Test is a multiple-choice question belonging to exactly one course.
// CorrectAnswer indexes into Options. Immutable after creation.
type Test struct {
	ID            string
	CourseID      string
	Question      string
	Options       []string
	CorrectAnswer int
	Points        int
	CreatedAt     time.Time
}

// Attempt is an immutable record of one answer submission. Points is the
// amount awarded, zero when incorrect. A user may attempt the same test any
// number of times; every submission produces a new Attempt.
type Attempt struct {
	ID        string
	UserID    string
	TestID    string
	Answer    int
	IsCorrect bool
	Points    int
	CreatedAt time.Time
}

// AttemptRecord is an Attempt joined with its test and course for history
// listings.
type AttemptRecord struct {
	Attempt

	Question      string
	CorrectAnswer int
	CourseTitle   string
	CourseOrder   int
}

// UserStats is the per-user aggregate the leaderboard is built from.
type UserStats struct {
	UserID          string
	Name            string
	Score           int
	FinishedCourses int
	TotalAttempts   int
	CorrectAttempts int
}

// AttemptStats summarises a user's submission history for display.
type AttemptStats struct {
	TotalAttempts  int
	CorrectAnswers int
	// Accuracy is correct/total as a whole percentage, rounded half up.
	Accuracy int
}

// LeaderboardEntry is one row of the ranked user list.
type LeaderboardEntry struct {
	// Position is the 1-based rank. Ties on score are broken by name, so
	// positions form a total order.
	Position         int
	UserID           string
	Name             string
	Score            int
	CompletedCourses int
	Statistics       AttemptStats
	IsCurrentUser    bool
}

// LeaderboardWindow is the bounded view returned for display: the top three
// entries plus a band around the requesting user.
type LeaderboardWindow struct {
	Top                 []LeaderboardEntry
	Nearby              []LeaderboardEntry
	CurrentUserPosition int
	TotalUsers          int
}

// RankedScore is a (user, score) pair from the realtime leaderboard cache.
type RankedScore struct {
	UserID string
	Score  int
}
