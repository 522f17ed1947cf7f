// Package api exposes the HTTP/JSON API and pushes realtime standings
// notifications over Redis pub/sub.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/quizpath/quizpath/internal/account"
	"github.com/quizpath/quizpath/internal/catalog"
	"github.com/quizpath/quizpath/internal/domain"
	"github.com/quizpath/quizpath/internal/errors"
	"github.com/quizpath/quizpath/internal/event"
	"github.com/quizpath/quizpath/internal/leaderboard"
	"github.com/quizpath/quizpath/internal/quiz"
)

type Config struct {
	Engine       *gin.Engine
	EventBus     *event.Bus
	Account      *account.Service
	Catalog      *catalog.Service
	Quiz         *quiz.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	accounts *account.Service
	catalog  *catalog.Service
	quiz     *quiz.Service
	lb       *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		accounts: c.Account,
		catalog:  c.Catalog,
		quiz:     c.Quiz,
		lb:       c.Leaderboard,
		redis:    c.Redis,
		prefix:   c.PubsubPrefix,
	}

	a.registerRoutes(c.Engine)

	c.EventBus.Subscribe(domain.EventNameStandingsUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishStandingsUpdated(ctx, e.(domain.EventStandingsUpdated))
	})

	return a
}

func (a *API) registerRoutes(e *gin.Engine) {
	r := e.Group("/api")
	r.POST("/register", a.handleRegister)
	r.POST("/login", a.handleLogin)

	authed := r.Group("", a.authenticate)
	authed.GET("/courses", a.handleListCourses)
	authed.POST("/courses", a.handleCreateCourse)
	authed.GET("/courses/:courseID/tests", a.handleListTests)
	authed.POST("/courses/:courseID/tests", a.handleCreateTest)
	authed.POST("/tests/:testID/submit", a.handleSubmitAnswer)
	authed.PUT("/settings", a.handleUpdateSettings)
	authed.GET("/progress", a.handleProgress)
	authed.GET("/user/attempts", a.handleListAttempts)
	authed.GET("/rating", a.handleRating)
}

const userContextKey = "api.user"

// authenticate resolves the credential headers to a user. Credential storage
// and verification live in the account service; this just wires the check in
// front of the protected routes.
func (a *API) authenticate(c *gin.Context) {
	email := c.GetHeader("email")
	password := c.GetHeader("password")
	if email == "" || password == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	u, err := a.accounts.Authenticate(c.Request.Context(), email, password)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Set(userContextKey, u)
	c.Next()
}

func currentUser(c *gin.Context) *domain.User {
	return c.MustGet(userContextKey).(*domain.User)
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
}

// accounts

type userView struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Score           int             `json:"score"`
	FinishedCourses []string        `json:"finishedCourses"`
	Settings        domain.Settings `json:"settings"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func viewUser(u *domain.User) userView {
	return userView{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Score:           u.Score,
		FinishedCourses: u.FinishedCourses,
		Settings:        u.Settings,
		CreatedAt:       u.CreatedAt,
	}
}

func (a *API) handleRegister(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	u, err := a.accounts.Register(c.Request.Context(), account.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, viewUser(u))
}

func (a *API) handleLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	u, err := a.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, viewUser(u))
}

func (a *API) handleUpdateSettings(c *gin.Context) {
	var req struct {
		FontSize int    `json:"fontSize"`
		Theme    string `json:"theme"`
		Language string `json:"language"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	st := domain.Settings{FontSize: req.FontSize, Theme: req.Theme, Language: req.Language}
	if err := a.accounts.UpdateSettings(c.Request.Context(), currentUser(c).ID, st); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func (a *API) handleProgress(c *gin.Context) {
	p, err := a.accounts.GetProgress(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"score":           p.Score,
		"finishedCourses": p.FinishedCourses,
	})
}

// catalogue

// testView deliberately omits the correct answer.
type testView struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Points   int      `json:"points"`
}

type courseView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	OrderNumber int        `json:"orderNumber"`
	Tests       []testView `json:"tests"`
}

func viewTests(tests []domain.Test) []testView {
	views := make([]testView, 0, len(tests))
	for _, t := range tests {
		views = append(views, testView{
			ID:       t.ID,
			Question: t.Question,
			Options:  t.Options,
			Points:   t.Points,
		})
	}
	return views
}

func (a *API) handleListCourses(c *gin.Context) {
	courses, err := a.catalog.ListCourses(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	views := make([]courseView, 0, len(courses))
	for _, course := range courses {
		views = append(views, courseView{
			ID:          course.ID,
			Title:       course.Title,
			Description: course.Description,
			OrderNumber: course.OrderNumber,
			Tests:       viewTests(course.Tests),
		})
	}

	c.JSON(http.StatusOK, views)
}

func (a *API) handleCreateCourse(c *gin.Context) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		OrderNumber int    `json:"orderNumber"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	course, err := a.catalog.CreateCourse(c.Request.Context(), catalog.CreateCourseRequest{
		Title:       req.Title,
		Description: req.Description,
		OrderNumber: req.OrderNumber,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, courseView{
		ID:          course.ID,
		Title:       course.Title,
		Description: course.Description,
		OrderNumber: course.OrderNumber,
		Tests:       []testView{},
	})
}

func (a *API) handleListTests(c *gin.Context) {
	tests, err := a.catalog.ListCourseTests(c.Request.Context(), c.Param("courseID"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, viewTests(tests))
}

func (a *API) handleCreateTest(c *gin.Context) {
	var req struct {
		Question      string   `json:"question"`
		Options       []string `json:"options"`
		CorrectAnswer *int     `json:"correctAnswer"`
		Points        int      `json:"points"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}
	if req.CorrectAnswer == nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("correctAnswer is required")))
		return
	}

	t, err := a.catalog.CreateTest(c.Request.Context(), catalog.CreateTestRequest{
		CourseID:      c.Param("courseID"),
		Question:      req.Question,
		Options:       req.Options,
		CorrectAnswer: *req.CorrectAnswer,
		Points:        req.Points,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, testView{
		ID:       t.ID,
		Question: t.Question,
		Options:  t.Options,
		Points:   t.Points,
	})
}

// submissions

func (a *API) handleSubmitAnswer(c *gin.Context) {
	var req struct {
		Answer *int `json:"answer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}
	if req.Answer == nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("answer is required")))
		return
	}

	resp, err := a.quiz.SubmitAnswer(c.Request.Context(), quiz.SubmitAnswerRequest{
		UserID: currentUser(c).ID,
		TestID: c.Param("testID"),
		Answer: *req.Answer,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"correct":         resp.IsCorrect,
		"points":          resp.Points,
		"courseCompleted": resp.CourseCompleted,
	})
}

type attemptView struct {
	ID            string    `json:"id"`
	TestID        string    `json:"testId"`
	Question      string    `json:"question"`
	YourAnswer    int       `json:"yourAnswer"`
	CorrectAnswer int       `json:"correctAnswer"`
	IsCorrect     bool      `json:"isCorrect"`
	Points        int       `json:"points"`
	Course        struct {
		Title       string `json:"title"`
		OrderNumber int    `json:"orderNumber"`
	} `json:"course"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

func (a *API) handleListAttempts(c *gin.Context) {
	resp, err := a.quiz.ListAttempts(c.Request.Context(), quiz.ListAttemptsRequest{
		UserID: currentUser(c).ID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	attempts := make([]attemptView, 0, len(resp.Attempts))
	for _, r := range resp.Attempts {
		v := attemptView{
			ID:            r.ID,
			TestID:        r.TestID,
			Question:      r.Question,
			YourAnswer:    r.Answer,
			CorrectAnswer: r.CorrectAnswer,
			IsCorrect:     r.IsCorrect,
			Points:        r.Points,
			AttemptedAt:   r.CreatedAt,
		}
		v.Course.Title = r.CourseTitle
		v.Course.OrderNumber = r.CourseOrder
		attempts = append(attempts, v)
	}

	c.JSON(http.StatusOK, gin.H{
		"total":          resp.Total,
		"correctAnswers": resp.CorrectAnswers,
		"totalPoints":    resp.TotalPoints,
		"attempts":       attempts,
	})
}

// rating

type ratingEntry struct {
	Position         int    `json:"position"`
	ID               string `json:"id"`
	Name             string `json:"name"`
	Score            int    `json:"score"`
	CompletedCourses int    `json:"completedCourses"`
	Statistics       struct {
		TotalAttempts  int `json:"totalAttempts"`
		CorrectAnswers int `json:"correctAnswers"`
		Accuracy       int `json:"accuracy"`
	} `json:"statistics"`
	IsCurrentUser bool `json:"isCurrentUser"`
}

func viewEntries(entries []domain.LeaderboardEntry) []ratingEntry {
	views := make([]ratingEntry, 0, len(entries))
	for _, e := range entries {
		v := ratingEntry{
			Position:         e.Position,
			ID:               e.UserID,
			Name:             e.Name,
			Score:            e.Score,
			CompletedCourses: e.CompletedCourses,
			IsCurrentUser:    e.IsCurrentUser,
		}
		v.Statistics.TotalAttempts = e.Statistics.TotalAttempts
		v.Statistics.CorrectAnswers = e.Statistics.CorrectAnswers
		v.Statistics.Accuracy = e.Statistics.Accuracy
		views = append(views, v)
	}
	return views
}

func (a *API) handleRating(c *gin.Context) {
	w, err := a.lb.GetWindow(c.Request.Context(), leaderboard.GetWindowRequest{
		UserID: currentUser(c).ID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"top":                 viewEntries(w.Top),
		"nearby":              viewEntries(w.Nearby),
		"currentUserPosition": w.CurrentUserPosition,
		"totalUsers":          w.TotalUsers,
	})
}
