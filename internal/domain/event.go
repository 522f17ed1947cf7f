package domain

import "time"

const (
	EventNameAttemptRecorded  = "attempt.recorded"
	EventNameScoreUpdated     = "score.updated"
	EventNameCourseCompleted  = "course.completed"
	EventNameStandingsUpdated = "standings.updated"
)

// EventAttemptRecorded is published after every submission, correct or not.
type EventAttemptRecorded struct {
	Attempt Attempt
}

func (EventAttemptRecorded) Name() string { return EventNameAttemptRecorded }

// EventScoreUpdated is published when a correct attempt increases a user's
// cumulative score. Score carries the new total.
type EventScoreUpdated struct {
	UserID     string
	Score      int
	UpdateTime time.Time
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

// EventCourseCompleted is published when a submission transitions a course
// into the completed state for a user. It is not re-published for attempts
// against an already completed course.
type EventCourseCompleted struct {
	UserID   string
	CourseID string
}

func (EventCourseCompleted) Name() string { return EventNameCourseCompleted }

// EventStandingsUpdated carries the current head of the realtime standings
// cache after a batch of score updates.
type EventStandingsUpdated struct {
	Standings []RankedScore
}

func (EventStandingsUpdated) Name() string { return EventNameStandingsUpdated }
