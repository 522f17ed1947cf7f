// Package postgres implements the data store on top of pgx. Write paths that
// the quiz service composes into one submission run against a single
// transaction via RunInTx, so a mid-sequence failure never leaves a recorded
// attempt without its score increment or completion check.
package postgres

import (
	"context"
	_ "embed"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizpath/quizpath/internal/domain"
	"github.com/quizpath/quizpath/internal/errors"
)

//go:embed schema.sql
var schema string

const codeUniqueViolation = "23505"
const codeForeignKeyViolation = "23503"

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return errors.Store(err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

type txKey struct{}

// q returns the transaction bound to ctx by RunInTx, or the pool.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.db
}

// RunInTx executes fn inside a single database transaction. Store calls made
// with the context passed to fn see and produce uncommitted state; the whole
// unit commits or rolls back together.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.Store(err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return stderrors.Join(err, tx.Rollback(ctx))
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Store(err)
	}
	return nil
}

// users

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	const stmt = `
INSERT INTO users (user_id, email, name, password_hash, score, finished_courses, font_size, theme, language, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err := s.q(ctx).Exec(ctx, stmt,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Score, u.FinishedCourses,
		u.Settings.FontSize, u.Settings.Theme, u.Settings.Language, u.CreatedAt,
	)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("email already registered: %s", u.Email),
			errors.WithCause(err))
	}
	if err != nil {
		return errors.Store(err)
	}
	return nil
}

const userColumns = `user_id, email, name, password_hash, score, finished_courses, font_size, theme, language, create_time`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Score, &u.FinishedCourses,
		&u.Settings.FontSize, &u.Settings.Theme, &u.Settings.Language, &u.CreatedAt,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found"))
	}
	if err != nil {
		return nil, errors.Store(err)
	}
	return &u, nil
}

func (s *Store) User(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(s.q(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1;`, id))
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(s.q(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1;`, email))
}

func (s *Store) UpdateSettings(ctx context.Context, userID string, st domain.Settings) error {
	const stmt = `UPDATE users SET font_size = $2, theme = $3, language = $4 WHERE user_id = $1;`

	tag, err := s.q(ctx).Exec(ctx, stmt, userID, st.FontSize, st.Theme, st.Language)
	if err != nil {
		return errors.Store(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: %s", userID))
	}
	return nil
}

// IncrementScore atomically adds delta to the user's cumulative score and
// returns the new total.
func (s *Store) IncrementScore(ctx context.Context, userID string, delta int) (int, error) {
	const stmt = `UPDATE users SET score = score + $2 WHERE user_id = $1 RETURNING score;`

	var total int
	err := s.q(ctx).QueryRow(ctx, stmt, userID, delta).Scan(&total)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return 0, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: %s", userID))
	}
	if err != nil {
		return 0, errors.Store(err)
	}
	return total, nil
}

// FinishCourseIfAbsent appends courseID to the user's finished courses unless
// it is already present. The containment check and the append are one
// statement, so a lost race between two completing submissions results in at
// most one append. Returns true when this call performed the append.
func (s *Store) FinishCourseIfAbsent(ctx context.Context, userID, courseID string) (bool, error) {
	const stmt = `
UPDATE users SET finished_courses = array_append(finished_courses, $2)
WHERE user_id = $1 AND NOT ($2 = ANY(finished_courses));`

	tag, err := s.q(ctx).Exec(ctx, stmt, userID, courseID)
	if err != nil {
		return false, errors.Store(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListUserStats(ctx context.Context) ([]domain.UserStats, error) {
	const stmt = `
SELECT u.user_id, u.name, u.score, cardinality(u.finished_courses),
       COUNT(a.attempt_id),
       COUNT(a.attempt_id) FILTER (WHERE a.is_correct)
FROM users u
LEFT JOIN attempts a ON a.user_id = u.user_id
GROUP BY u.user_id
ORDER BY u.score DESC, u.name ASC;`

	rows, err := s.q(ctx).Query(ctx, stmt)
	if err != nil {
		return nil, errors.Store(err)
	}

	stats, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.UserStats, error) {
		var st domain.UserStats
		err := r.Scan(&st.UserID, &st.Name, &st.Score, &st.FinishedCourses, &st.TotalAttempts, &st.CorrectAttempts)
		return st, err
	})
	if err != nil {
		return nil, errors.Store(err)
	}
	return stats, nil
}

// courses and tests

func (s *Store) CreateCourse(ctx context.Context, c *domain.Course) error {
	const stmt = `
INSERT INTO courses (course_id, title, description, order_number, create_time)
VALUES ($1, $2, $3, $4, $5);`

	_, err := s.q(ctx).Exec(ctx, stmt, c.ID, c.Title, c.Description, c.OrderNumber, c.CreatedAt)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("course with order number %d already exists", c.OrderNumber),
			errors.WithCause(err))
	}
	if err != nil {
		return errors.Store(err)
	}
	return nil
}

func (s *Store) Course(ctx context.Context, id string) (*domain.Course, error) {
	const stmt = `SELECT course_id, title, description, order_number, create_time FROM courses WHERE course_id = $1;`

	var c domain.Course
	err := s.q(ctx).QueryRow(ctx, stmt, id).Scan(&c.ID, &c.Title, &c.Description, &c.OrderNumber, &c.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("course not found: %s", id))
	}
	if err != nil {
		return nil, errors.Store(err)
	}
	return &c, nil
}

// ListCourses returns all courses ordered by order number, each with its
// tests attached.
func (s *Store) ListCourses(ctx context.Context) ([]domain.Course, error) {
	const stmt = `SELECT course_id, title, description, order_number, create_time FROM courses ORDER BY order_number ASC;`

	rows, err := s.q(ctx).Query(ctx, stmt)
	if err != nil {
		return nil, errors.Store(err)
	}

	courses, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Course, error) {
		var c domain.Course
		err := r.Scan(&c.ID, &c.Title, &c.Description, &c.OrderNumber, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, errors.Store(err)
	}

	tests, err := s.listTests(ctx, `SELECT `+testColumns+` FROM tests ORDER BY create_time ASC;`)
	if err != nil {
		return nil, err
	}

	byCourse := make(map[string][]domain.Test, len(courses))
	for _, t := range tests {
		byCourse[t.CourseID] = append(byCourse[t.CourseID], t)
	}
	for i := range courses {
		courses[i].Tests = byCourse[courses[i].ID]
	}
	return courses, nil
}

func (s *Store) CreateTest(ctx context.Context, t *domain.Test) error {
	const stmt = `
INSERT INTO tests (test_id, course_id, question, options, correct_answer, points, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := s.q(ctx).Exec(ctx, stmt, t.ID, t.CourseID, t.Question, t.Options, t.CorrectAnswer, t.Points, t.CreatedAt)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("course not found: %s", t.CourseID),
			errors.WithCause(err))
	}
	if err != nil {
		return errors.Store(err)
	}
	return nil
}

const testColumns = `test_id, course_id, question, options, correct_answer, points, create_time`

func (s *Store) listTests(ctx context.Context, stmt string, args ...any) ([]domain.Test, error) {
	rows, err := s.q(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Store(err)
	}

	tests, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Test, error) {
		var t domain.Test
		err := r.Scan(&t.ID, &t.CourseID, &t.Question, &t.Options, &t.CorrectAnswer, &t.Points, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, errors.Store(err)
	}
	return tests, nil
}

func (s *Store) ListCourseTests(ctx context.Context, courseID string) ([]domain.Test, error) {
	return s.listTests(ctx, `SELECT `+testColumns+` FROM tests WHERE course_id = $1 ORDER BY create_time ASC;`, courseID)
}

func (s *Store) Test(ctx context.Context, id string) (*domain.Test, error) {
	var t domain.Test
	err := s.q(ctx).QueryRow(ctx, `SELECT `+testColumns+` FROM tests WHERE test_id = $1;`, id).
		Scan(&t.ID, &t.CourseID, &t.Question, &t.Options, &t.CorrectAnswer, &t.Points, &t.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("test not found: %s", id))
	}
	if err != nil {
		return nil, errors.Store(err)
	}
	return &t, nil
}

func (s *Store) CountCourseTests(ctx context.Context, courseID string) (int, error) {
	var n int
	err := s.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM tests WHERE course_id = $1;`, courseID).Scan(&n)
	if err != nil {
		return 0, errors.Store(err)
	}
	return n, nil
}

// attempts

func (s *Store) CreateAttempt(ctx context.Context, a *domain.Attempt) error {
	const stmt = `
INSERT INTO attempts (attempt_id, user_id, test_id, answer, is_correct, points, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := s.q(ctx).Exec(ctx, stmt, a.ID, a.UserID, a.TestID, a.Answer, a.IsCorrect, a.Points, a.CreatedAt)
	if err != nil {
		return errors.Store(err)
	}
	return nil
}

// CountCorrectTests counts the distinct tests in a course for which the user
// has at least one correct attempt. Repeated correct attempts on the same
// test count once.
func (s *Store) CountCorrectTests(ctx context.Context, userID, courseID string) (int, error) {
	const stmt = `
SELECT COUNT(DISTINCT a.test_id)
FROM attempts a
JOIN tests t ON t.test_id = a.test_id
WHERE a.user_id = $1 AND t.course_id = $2 AND a.is_correct;`

	var n int
	err := s.q(ctx).QueryRow(ctx, stmt, userID, courseID).Scan(&n)
	if err != nil {
		return 0, errors.Store(err)
	}
	return n, nil
}

func (s *Store) UserAttempts(ctx context.Context, userID string) ([]domain.AttemptRecord, error) {
	const stmt = `
SELECT a.attempt_id, a.user_id, a.test_id, a.answer, a.is_correct, a.points, a.create_time,
       t.question, t.correct_answer, c.title, c.order_number
FROM attempts a
JOIN tests t ON t.test_id = a.test_id
JOIN courses c ON c.course_id = t.course_id
WHERE a.user_id = $1
ORDER BY a.create_time DESC;`

	rows, err := s.q(ctx).Query(ctx, stmt, userID)
	if err != nil {
		return nil, errors.Store(err)
	}

	records, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.AttemptRecord, error) {
		var rec domain.AttemptRecord
		err := r.Scan(
			&rec.ID, &rec.UserID, &rec.TestID, &rec.Answer, &rec.IsCorrect, &rec.Points, &rec.CreatedAt,
			&rec.Question, &rec.CorrectAnswer, &rec.CourseTitle, &rec.CourseOrder,
		)
		return rec, err
	})
	if err != nil {
		return nil, errors.Store(err)
	}
	return records, nil
}
