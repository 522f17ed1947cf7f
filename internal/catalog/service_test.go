package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quizpath/quizpath/internal/catalog"
	"github.com/quizpath/quizpath/internal/errors"
	"github.com/quizpath/quizpath/internal/store/memory"
)

func makeService(t *testing.T) *catalog.Service {
	t.Helper()
	return catalog.NewService(catalog.Config{Store: memory.NewStore()})
}

func TestService_CreateCourse(t *testing.T) {
	tests := map[string]struct {
		req      catalog.CreateCourseRequest
		wantCode errors.Code
	}{
		"valid": {
			req: catalog.CreateCourseRequest{Title: "Basics", Description: "intro", OrderNumber: 1},
		},
		"blank title": {
			req:      catalog.CreateCourseRequest{Title: "  ", OrderNumber: 1},
			wantCode: errors.CodeInvalidArgument,
		},
		"zero order number": {
			req:      catalog.CreateCourseRequest{Title: "Basics"},
			wantCode: errors.CodeInvalidArgument,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := makeService(t)

			c, err := s.CreateCourse(context.Background(), tt.req)
			if tt.wantCode != 0 {
				require.True(t, errors.Is(err, tt.wantCode))
				return
			}

			require.NoError(t, err)
			require.NotEmpty(t, c.ID)
			require.Equal(t, "Basics", c.Title)
			require.Equal(t, 1, c.OrderNumber)
		})
	}
}

func TestService_CreateCourse_DuplicateOrder(t *testing.T) {
	s := makeService(t)

	_, err := s.CreateCourse(context.Background(), catalog.CreateCourseRequest{Title: "First", OrderNumber: 1})
	require.NoError(t, err)

	_, err = s.CreateCourse(context.Background(), catalog.CreateCourseRequest{Title: "Other", OrderNumber: 1})
	require.True(t, errors.Is(err, errors.CodeAlreadyExists))
}

func TestService_ListCourses(t *testing.T) {
	s := makeService(t)

	for i, title := range []string{"Third", "First", "Second"} {
		order := []int{3, 1, 2}[i]
		_, err := s.CreateCourse(context.Background(), catalog.CreateCourseRequest{Title: title, OrderNumber: order})
		require.NoError(t, err)
	}

	courses, err := s.ListCourses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 3)
	require.Equal(t, "First", courses[0].Title)
	require.Equal(t, "Second", courses[1].Title)
	require.Equal(t, "Third", courses[2].Title)
}

func TestService_CreateTest(t *testing.T) {
	valid := func() catalog.CreateTestRequest {
		return catalog.CreateTestRequest{
			Question:      "what?",
			Options:       []string{"a", "b", "c"},
			CorrectAnswer: 2,
			Points:        2,
		}
	}

	tests := map[string]struct {
		req        func() catalog.CreateTestRequest
		wantCode   errors.Code
		wantPoints int
	}{
		"valid": {
			req:        valid,
			wantPoints: 2,
		},
		"points default to 1": {
			req: func() catalog.CreateTestRequest {
				r := valid()
				r.Points = 0
				return r
			},
			wantPoints: 1,
		},
		"blank question": {
			req: func() catalog.CreateTestRequest {
				r := valid()
				r.Question = " "
				return r
			},
			wantCode: errors.CodeInvalidArgument,
		},
		"single option": {
			req: func() catalog.CreateTestRequest {
				r := valid()
				r.Options = []string{"a"}
				return r
			},
			wantCode: errors.CodeInvalidArgument,
		},
		"correct answer out of range": {
			req: func() catalog.CreateTestRequest {
				r := valid()
				r.CorrectAnswer = 3
				return r
			},
			wantCode: errors.CodeInvalidArgument,
		},
		"negative correct answer": {
			req: func() catalog.CreateTestRequest {
				r := valid()
				r.CorrectAnswer = -1
				return r
			},
			wantCode: errors.CodeInvalidArgument,
		},
		"negative points": {
			req: func() catalog.CreateTestRequest {
				r := valid()
				r.Points = -1
				return r
			},
			wantCode: errors.CodeInvalidArgument,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := makeService(t)

			course, err := s.CreateCourse(context.Background(), catalog.CreateCourseRequest{Title: "Basics", OrderNumber: 1})
			require.NoError(t, err)

			req := tt.req()
			req.CourseID = course.ID

			created, err := s.CreateTest(context.Background(), req)
			if tt.wantCode != 0 {
				require.True(t, errors.Is(err, tt.wantCode))
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.wantPoints, created.Points)

			got, err := s.ListCourseTests(context.Background(), course.ID)
			require.NoError(t, err)
			require.Len(t, got, 1)
			require.Equal(t, created.ID, got[0].ID)
		})
	}
}

func TestService_CreateTest_UnknownCourse(t *testing.T) {
	s := makeService(t)

	_, err := s.CreateTest(context.Background(), catalog.CreateTestRequest{
		CourseID:      "missing",
		Question:      "what?",
		Options:       []string{"a", "b"},
		CorrectAnswer: 0,
	})
	require.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = s.ListCourseTests(context.Background(), "missing")
	require.True(t, errors.Is(err, errors.CodeNotFound))
}
