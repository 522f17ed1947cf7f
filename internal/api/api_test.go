package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/quizpath/quizpath/internal/account"
	"github.com/quizpath/quizpath/internal/api"
	"github.com/quizpath/quizpath/internal/catalog"
	"github.com/quizpath/quizpath/internal/event"
	"github.com/quizpath/quizpath/internal/leaderboard"
	"github.com/quizpath/quizpath/internal/quiz"
	"github.com/quizpath/quizpath/internal/store/memory"
)

func makeAPI(t *testing.T) *gin.Engine {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err())

	store := memory.NewStore()
	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	gin.SetMode(gin.TestMode)
	engine := gin.New()

	api.New(api.Config{
		Engine:   engine,
		EventBus: eb,
		Account:  account.NewService(account.Config{Store: store}),
		Catalog:  catalog.NewService(catalog.Config{Store: store}),
		Quiz: quiz.NewService(quiz.Config{
			EventBus: eb,
			Store:    store,
		}),
		Leaderboard: leaderboard.NewService(leaderboard.Config{
			EventBus: eb,
			Store:    store,
			Redis:    rc,
			Prefix:   "test",
		}),
		Redis:        rc,
		PubsubPrefix: "test:pubsub",
	})

	return engine
}

type creds struct {
	email    string
	password string
}

func do(t *testing.T, e *gin.Engine, method, path string, c *creds, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c != nil {
		req.Header.Set("email", c.email)
		req.Header.Set("password", c.password)
	}

	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func register(t *testing.T, e *gin.Engine, name, email string) creds {
	t.Helper()

	w := do(t, e, http.MethodPost, "/api/register", nil, gin.H{
		"name":     name,
		"email":    email,
		"password": "secret",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	return creds{email: email, password: "secret"}
}

func TestAPI_RegisterAndLogin(t *testing.T) {
	e := makeAPI(t)

	w := do(t, e, http.MethodPost, "/api/register", nil, gin.H{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "secret",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decode(t, w)
	require.NotEmpty(t, body["id"])
	require.Equal(t, "Alice", body["name"])
	require.Equal(t, float64(0), body["score"])

	w = do(t, e, http.MethodPost, "/api/register", nil, gin.H{
		"name":     "Alice Again",
		"email":    "alice@example.com",
		"password": "other",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	w = do(t, e, http.MethodPost, "/api/login", nil, gin.H{
		"email":    "alice@example.com",
		"password": "secret",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, e, http.MethodPost, "/api/login", nil, gin.H{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_Progress_FreshUser(t *testing.T) {
	e := makeAPI(t)
	alice := register(t, e, "Alice", "alice@example.com")

	w := do(t, e, http.MethodGet, "/api/progress", &alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// A user who has not finished anything gets [], not null.
	require.JSONEq(t, `{"score":0,"finishedCourses":[]}`, w.Body.String())
}

func TestAPI_AuthRequired(t *testing.T) {
	e := makeAPI(t)

	w := do(t, e, http.MethodGet, "/api/courses", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, e, http.MethodGet, "/api/courses", &creds{email: "nobody@example.com", password: "x"}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_QuizFlow(t *testing.T) {
	e := makeAPI(t)
	alice := register(t, e, "Alice", "alice@example.com")

	// Create a course with two tests.
	w := do(t, e, http.MethodPost, "/api/courses", &alice, gin.H{
		"title":       "Basics",
		"description": "intro",
		"orderNumber": 1,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	courseID := decode(t, w)["id"].(string)

	testIDs := make([]string, 0, 2)
	for _, body := range []gin.H{
		{"question": "first?", "options": []string{"a", "b"}, "correctAnswer": 0, "points": 1},
		{"question": "second?", "options": []string{"x", "y", "z"}, "correctAnswer": 2, "points": 2},
	} {
		w = do(t, e, http.MethodPost, fmt.Sprintf("/api/courses/%s/tests", courseID), &alice, body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		testIDs = append(testIDs, decode(t, w)["id"].(string))
	}

	// Listed tests never expose the correct answer.
	w = do(t, e, http.MethodGet, fmt.Sprintf("/api/courses/%s/tests", courseID), &alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "correctAnswer")

	// Wrong answer earns nothing.
	w = do(t, e, http.MethodPost, fmt.Sprintf("/api/tests/%s/submit", testIDs[0]), &alice, gin.H{"answer": 1})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, gin.H{"correct": false, "points": float64(0), "courseCompleted": false}, gin.H(decode(t, w)))

	// Correct answers accumulate, the second one completes the course.
	w = do(t, e, http.MethodPost, fmt.Sprintf("/api/tests/%s/submit", testIDs[0]), &alice, gin.H{"answer": 0})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, gin.H{"correct": true, "points": float64(1), "courseCompleted": false}, gin.H(decode(t, w)))

	w = do(t, e, http.MethodPost, fmt.Sprintf("/api/tests/%s/submit", testIDs[1]), &alice, gin.H{"answer": 2})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, gin.H{"correct": true, "points": float64(2), "courseCompleted": true}, gin.H(decode(t, w)))

	w = do(t, e, http.MethodGet, "/api/progress", &alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	progress := decode(t, w)
	require.Equal(t, float64(3), progress["score"])
	require.Equal(t, []any{courseID}, progress["finishedCourses"])

	w = do(t, e, http.MethodGet, "/api/user/attempts", &alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	attempts := decode(t, w)
	require.Equal(t, float64(3), attempts["total"])
	require.Equal(t, float64(2), attempts["correctAnswers"])
	require.Equal(t, float64(3), attempts["totalPoints"])
}

func TestAPI_SubmitAnswer_Validation(t *testing.T) {
	e := makeAPI(t)
	alice := register(t, e, "Alice", "alice@example.com")

	w := do(t, e, http.MethodPost, "/api/tests/t1/submit", &alice, gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code, "missing answer")

	w = do(t, e, http.MethodPost, "/api/tests/missing/submit", &alice, gin.H{"answer": 0})
	require.Equal(t, http.StatusNotFound, w.Code, "unknown test")
}

func TestAPI_Rating(t *testing.T) {
	e := makeAPI(t)
	alice := register(t, e, "Alice", "alice@example.com")
	bob := register(t, e, "Bob", "bob@example.com")

	w := do(t, e, http.MethodPost, "/api/courses", &alice, gin.H{"title": "Basics", "orderNumber": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	courseID := decode(t, w)["id"].(string)

	w = do(t, e, http.MethodPost, fmt.Sprintf("/api/courses/%s/tests", courseID), &alice, gin.H{
		"question": "first?", "options": []string{"a", "b"}, "correctAnswer": 0, "points": 5,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	testID := decode(t, w)["id"].(string)

	// Only Bob scores.
	w = do(t, e, http.MethodPost, fmt.Sprintf("/api/tests/%s/submit", testID), &bob, gin.H{"answer": 0})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, e, http.MethodGet, "/api/rating", &alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	rating := decode(t, w)
	require.Equal(t, float64(2), rating["currentUserPosition"])
	require.Equal(t, float64(2), rating["totalUsers"])

	top := rating["top"].([]any)
	require.Len(t, top, 2)

	first := top[0].(map[string]any)
	require.Equal(t, "Bob", first["name"])
	require.Equal(t, float64(1), first["position"])
	require.Equal(t, float64(5), first["score"])
	require.Equal(t, false, first["isCurrentUser"])
	require.Equal(t, float64(1), first["completedCourses"])
	require.Equal(t, float64(100), first["statistics"].(map[string]any)["accuracy"])

	second := top[1].(map[string]any)
	require.Equal(t, "Alice", second["name"])
	require.Equal(t, true, second["isCurrentUser"])
	require.Equal(t, float64(0), second["statistics"].(map[string]any)["accuracy"])
}
