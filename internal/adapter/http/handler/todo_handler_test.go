package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/suite"

	. "todolist/pkg/test"

	"todolist/internal/adapter/database"
	"todolist/internal/adapter/database/repository"
	"todolist/internal/core/domain"
	"todolist/internal/core/model/response"
	"todolist/internal/core/port"
	"todolist/internal/core/service"
	"todolist/internal/core/telemetry"
	factory "todolist/pkg/test/factory"
)

type TodoHandlerSuite struct {
	suite.Suite
	DB       *database.DB
	TodoRepo port.TodoRepository
	Router   *gin.Engine
}

var ctx = context.Background()

func (s *TodoHandlerSuite) SetupTest() {
	s.DB = InitTestDB()
	probe := telemetry.NewNoOpProbe()

	s.TodoRepo = repository.NewTodoRepository(s.DB, probe)
	todoService := service.NewTodoService(s.TodoRepo, probe)

	s.Router = setupTodoTestRouter(NewTodoHandler(todoService, nil, nil))
}

func (s *TodoHandlerSuite) TearDownTest() {
	TeardownTestDB(s.T(), s.DB)
}

func TestTodoHandlerSuite(t *testing.T) {
	RegisterTestingT(t)
	suite.Run(t, new(TodoHandlerSuite))
}

func setupTodoTestRouter(todoHandler *TodoHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.Use(gin.Recovery())

	router.GET("/todos", todoHandler.ListTodos)
	router.POST("/todos", todoHandler.CreateTodo)
	router.GET("/todos/:id", todoHandler.GetTodo)
	router.PUT("/todos/:id", todoHandler.UpdateTodo)
	router.PATCH("/todos/:id/toggle", todoHandler.ToggleTodo)
	router.DELETE("/todos/:id", todoHandler.DeleteTodo)

	return router
}

func (s *TodoHandlerSuite) do(method, path string, body string) *httptest.ResponseRecorder {
	var reader io.Reader

	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var out T

	Expect(json.Unmarshal(w.Body.Bytes(), &out)).To(Succeed())

	return out
}

func (s *TodoHandlerSuite) count() int {
	todos, err := s.TodoRepo.List(ctx)
	Expect(err).To(BeNil())

	return len(todos)
}

func (s *TodoHandlerSuite) TestListTodos_Empty() {
	w := s.do(http.MethodGet, "/todos", "")

	Expect(w.Code).To(Equal(http.StatusOK))
	Expect(strings.TrimSpace(w.Body.String())).To(Equal("[]"))
}

func (s *TodoHandlerSuite) TestListTodos_NewestFirst() {
	for i := 1; i <= 3; i++ {
		w := s.do(http.MethodPost, "/todos", fmt.Sprintf(`{"title":"todo %d"}`, i))
		Expect(w.Code).To(Equal(http.StatusCreated))
	}

	w := s.do(http.MethodGet, "/todos", "")

	Expect(w.Code).To(Equal(http.StatusOK))

	todos := decode[[]response.TodoResponse](w)

	Expect(todos).To(HaveLen(3))
	Expect(todos[0].Title).To(Equal("todo 3"))
	Expect(todos[2].Title).To(Equal("todo 1"))
}

func (s *TodoHandlerSuite) TestCreateTodo_Success() {
	w := s.do(http.MethodPost, "/todos", `{"title":"  Buy milk  "}`)

	Expect(w.Code).To(Equal(http.StatusCreated))

	var raw map[string]any
	Expect(json.Unmarshal(w.Body.Bytes(), &raw)).To(Succeed())

	Expect(raw).To(HaveKeyWithValue("title", "Buy milk"))
	Expect(raw).To(HaveKeyWithValue("completed", false))
	Expect(raw).To(HaveKey("description"))
	Expect(raw["description"]).To(BeNil())
	Expect(raw["created_at"]).To(Equal(raw["updated_at"]))

	createdAt, err := time.Parse(time.RFC3339Nano, raw["created_at"].(string))
	Expect(err).To(BeNil())
	Expect(createdAt.IsZero()).To(BeFalse())
}

func (s *TodoHandlerSuite) TestCreateTodo_DescriptionNormalized() {
	w := s.do(http.MethodPost, "/todos", `{"title":"a","description":"  two liters "}`)
	Expect(w.Code).To(Equal(http.StatusCreated))
	Expect(*decode[response.TodoResponse](w).Description).To(Equal("two liters"))

	w = s.do(http.MethodPost, "/todos", `{"title":"b","description":"   "}`)
	Expect(w.Code).To(Equal(http.StatusCreated))
	Expect(decode[response.TodoResponse](w).Description).To(BeNil())

	w = s.do(http.MethodPost, "/todos", `{"title":"c","description":null}`)
	Expect(w.Code).To(Equal(http.StatusCreated))
	Expect(decode[response.TodoResponse](w).Description).To(BeNil())
}

func (s *TodoHandlerSuite) TestCreateTodo_InvalidTitle() {
	cases := map[string]string{
		`{"title":""}`:           "Title must be a non-empty string",
		`{"title":"   "}`:        "Title must be a non-empty string",
		`{"title":42}`:           "Title must be a non-empty string",
		`{"title":null}`:         "Title is required",
		`{"description":"no t"}`: "Title is required",
		``:                       "Title is required",
	}

	for body, message := range cases {
		w := s.do(http.MethodPost, "/todos", body)

		Expect(w.Code).To(Equal(http.StatusBadRequest), body)

		resp := decode[response.ErrorResponse](w)
		Expect(resp.Error.Code).To(Equal("VALIDATION_ERROR"))
		Expect(resp.Error.Errors).To(ContainElement(response.ValidationError{Field: "title", Message: message}), body)
	}

	Expect(s.count()).To(Equal(0))
}

func (s *TodoHandlerSuite) TestCreateTodo_InvalidDescriptionType() {
	w := s.do(http.MethodPost, "/todos", `{"title":"ok","description":5}`)

	Expect(w.Code).To(Equal(http.StatusBadRequest))
	Expect(decode[response.ErrorResponse](w).Error.Errors).To(ConsistOf(
		response.ValidationError{Field: "description", Message: "Description must be a string"},
	))
	Expect(s.count()).To(Equal(0))
}

func (s *TodoHandlerSuite) TestCreateTodo_MalformedJSON() {
	for _, body := range []string{`{"title":`, `[]`, `"just a string"`} {
		w := s.do(http.MethodPost, "/todos", body)

		Expect(w.Code).To(Equal(http.StatusBadRequest), body)
		Expect(decode[response.ErrorResponse](w).Error.Code).To(Equal("BAD_REQUEST"))
	}

	Expect(s.count()).To(Equal(0))
}

func (s *TodoHandlerSuite) TestCreateTodo_TrailingDataAfterJSON() {
	for _, body := range []string{`{"title":"ok"} trailing`, `{"title":"ok"}{"title":"again"}`, `{"title":"ok"} 1`} {
		w := s.do(http.MethodPost, "/todos", body)

		Expect(w.Code).To(Equal(http.StatusBadRequest), body)
		Expect(decode[response.ErrorResponse](w).Error.Errors).To(ConsistOf(
			response.ValidationError{Field: "body", Message: "Request body must be a JSON object"},
		))
	}

	Expect(s.count()).To(Equal(0))

	w := s.do(http.MethodPost, "/todos", "{\"title\":\"ok\"}\n  \t")

	Expect(w.Code).To(Equal(http.StatusCreated))
}

func (s *TodoHandlerSuite) TestUpdateTodo_TrailingDataAfterJSON() {
	todo, _ := s.TodoRepo.Create(ctx, factory.NewCreateTodoInput(map[string]any{"Title": "Original"}))

	w := s.do(http.MethodPut, fmt.Sprintf("/todos/%d", todo.ID), `{"title":"Changed"} x`)

	Expect(w.Code).To(Equal(http.StatusBadRequest))

	found, err := s.TodoRepo.GetByID(ctx, todo.ID)

	Expect(err).ToNot(HaveOccurred())
	Expect(found.Title).To(Equal("Original"))
}

func (s *TodoHandlerSuite) TestGetTodo_RoundTrip() {
	created := decode[response.TodoResponse](s.do(http.MethodPost, "/todos", `{"title":"Buy milk","description":"2l"}`))

	w := s.do(http.MethodGet, fmt.Sprintf("/todos/%d", created.ID), "")

	Expect(w.Code).To(Equal(http.StatusOK))
	Expect(decode[response.TodoResponse](w)).To(Equal(created))
}

func (s *TodoHandlerSuite) TestInvalidID() {
	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/todos/abc"},
		{http.MethodPut, "/todos/1.5"},
		{http.MethodPatch, "/todos/12abc/toggle"},
		{http.MethodDelete, "/todos/%20"},
	} {
		w := s.do(req.method, req.path, `{}`)

		Expect(w.Code).To(Equal(http.StatusBadRequest), req.path)
		Expect(decode[response.ErrorResponse](w).Error.Errors).To(ConsistOf(
			response.ValidationError{Field: "id", Message: "Invalid todo ID"},
		))
	}
}

func (s *TodoHandlerSuite) TestNotFound() {
	for _, req := range []struct{ method, path, body string }{
		{http.MethodGet, "/todos/999", ""},
		{http.MethodPut, "/todos/999", `{"title":"x"}`},
		{http.MethodPut, "/todos/999", `{}`},
		{http.MethodPatch, "/todos/999/toggle", ""},
		{http.MethodDelete, "/todos/999", ""},
	} {
		w := s.do(req.method, req.path, req.body)

		Expect(w.Code).To(Equal(http.StatusNotFound), req.method+" "+req.path)

		resp := decode[response.ErrorResponse](w)
		Expect(resp.Error.Code).To(Equal("NOT_FOUND"))
		Expect(resp.Error.Errors[0].Message).To(Equal("Todo not found"))
	}

	Expect(s.count()).To(Equal(0))
}

func (s *TodoHandlerSuite) TestUpdateTodo_Partial() {
	todo, _ := s.TodoRepo.Create(ctx, factory.NewCreateTodoInput(map[string]any{"Title": "Original"}))
	path := fmt.Sprintf("/todos/%d", todo.ID)

	w := s.do(http.MethodPut, path, `{"completed":true}`)

	Expect(w.Code).To(Equal(http.StatusOK))

	updated := decode[response.TodoResponse](w)
	Expect(updated.Title).To(Equal("Original"))
	Expect(updated.Completed).To(BeTrue())
	Expect(updated.Description).To(Equal(todo.Description))

	w = s.do(http.MethodPut, path, `{"title":"  Renamed ","description":"details"}`)

	Expect(w.Code).To(Equal(http.StatusOK))

	updated = decode[response.TodoResponse](w)
	Expect(updated.Title).To(Equal("Renamed"))
	Expect(*updated.Description).To(Equal("details"))
	Expect(updated.Completed).To(BeTrue())
}

func (s *TodoHandlerSuite) TestUpdateTodo_ClearsDescription() {
	description := "remove me"
	todo, _ := s.TodoRepo.Create(ctx, domain.CreateTodoInput{Title: "t", Description: &description})
	path := fmt.Sprintf("/todos/%d", todo.ID)

	w := s.do(http.MethodPut, path, `{"description":""}`)
	Expect(w.Code).To(Equal(http.StatusOK))
	Expect(decode[response.TodoResponse](w).Description).To(BeNil())

	w = s.do(http.MethodPut, path, `{"description":"back"}`)
	Expect(w.Code).To(Equal(http.StatusOK))

	w = s.do(http.MethodPut, path, `{"description":null}`)
	Expect(w.Code).To(Equal(http.StatusOK))
	Expect(decode[response.TodoResponse](w).Description).To(BeNil())
}

func (s *TodoHandlerSuite) TestUpdateTodo_EmptyBodyChangesNothing() {
	todo, _ := s.TodoRepo.Create(ctx, factory.NewCreateTodoInput())
	before := response.NewTodoResponse(todo)

	w := s.do(http.MethodPut, fmt.Sprintf("/todos/%d", todo.ID), `{}`)

	Expect(w.Code).To(Equal(http.StatusOK))
	Expect(decode[response.TodoResponse](w)).To(Equal(before))
}

func (s *TodoHandlerSuite) TestUpdateTodo_InvalidFields() {
	todo, _ := s.TodoRepo.Create(ctx, domain.CreateTodoInput{Title: "Keep"})
	path := fmt.Sprintf("/todos/%d", todo.ID)

	cases := map[string]response.ValidationError{
		`{"title":""}`:          {Field: "title", Message: "Title must be a non-empty string"},
		`{"title":"  "}`:        {Field: "title", Message: "Title must be a non-empty string"},
		`{"title":null}`:        {Field: "title", Message: "Title must be a non-empty string"},
		`{"title":7}`:           {Field: "title", Message: "Title must be a non-empty string"},
		`{"completed":"yes"}`:   {Field: "completed", Message: "Completed must be a boolean"},
		`{"completed":null}`:    {Field: "completed", Message: "Completed must be a boolean"},
		`{"description":false}`: {Field: "description", Message: "Description must be a string"},
	}

	for body, expected := range cases {
		w := s.do(http.MethodPut, path, body)

		Expect(w.Code).To(Equal(http.StatusBadRequest), body)
		Expect(decode[response.ErrorResponse](w).Error.Errors).To(ContainElement(expected), body)
	}

	stored, _ := s.TodoRepo.GetByID(ctx, todo.ID)
	Expect(stored).To(Equal(todo))
}

func (s *TodoHandlerSuite) TestToggleTodo_Twice() {
	todo, _ := s.TodoRepo.Create(ctx, factory.NewCreateTodoInput())
	path := fmt.Sprintf("/todos/%d/toggle", todo.ID)

	first := decode[response.TodoResponse](s.do(http.MethodPatch, path, ""))
	second := decode[response.TodoResponse](s.do(http.MethodPatch, path, ""))

	Expect(first.Completed).To(BeTrue())
	Expect(second.Completed).To(BeFalse())

	created, _ := time.Parse(time.RFC3339Nano, response.NewTodoResponse(todo).UpdatedAt)
	firstAt, _ := time.Parse(time.RFC3339Nano, first.UpdatedAt)
	secondAt, _ := time.Parse(time.RFC3339Nano, second.UpdatedAt)

	Expect(firstAt.After(created)).To(BeTrue())
	Expect(secondAt.After(firstAt)).To(BeTrue())
}

func (s *TodoHandlerSuite) TestDeleteTodo() {
	todo, _ := s.TodoRepo.Create(ctx, factory.NewCreateTodoInput())
	path := fmt.Sprintf("/todos/%d", todo.ID)

	w := s.do(http.MethodDelete, path, "")

	Expect(w.Code).To(Equal(http.StatusNoContent))
	Expect(w.Body.Len()).To(Equal(0))

	w = s.do(http.MethodDelete, path, "")
	Expect(w.Code).To(Equal(http.StatusNotFound))

	w = s.do(http.MethodGet, path, "")
	Expect(w.Code).To(Equal(http.StatusNotFound))
}

// brokenService fails every call with a storage error.
type brokenService struct{}

var errDiskFull = errors.New("database or disk is full")

func (brokenService) List(context.Context) ([]domain.Todo, error) { return nil, errDiskFull }
func (brokenService) GetByID(context.Context, int64) (domain.Todo, error) {
	return domain.Todo{}, errDiskFull
}
func (brokenService) Create(context.Context, domain.CreateTodoInput) (domain.Todo, error) {
	return domain.Todo{}, errDiskFull
}
func (brokenService) Update(context.Context, int64, domain.TodoPatch) (domain.Todo, error) {
	return domain.Todo{}, errDiskFull
}
func (brokenService) Toggle(context.Context, int64) (domain.Todo, error) {
	return domain.Todo{}, errDiskFull
}
func (brokenService) Delete(context.Context, int64) error { return errDiskFull }

func TestTodoHandler_StorageFailuresAreGeneric(t *testing.T) {
	RegisterTestingT(t)

	router := setupTodoTestRouter(NewTodoHandler(brokenService{}, nil, nil))

	for _, req := range []struct{ method, path, body, message string }{
		{http.MethodGet, "/todos", "", "Failed to fetch todos"},
		{http.MethodGet, "/todos/1", "", "Failed to fetch todo"},
		{http.MethodPost, "/todos", `{"title":"x"}`, "Failed to create todo"},
		{http.MethodPut, "/todos/1", `{"title":"x"}`, "Failed to update todo"},
		{http.MethodPatch, "/todos/1/toggle", "", "Failed to toggle todo"},
		{http.MethodDelete, "/todos/1", "", "Failed to delete todo"},
	} {
		var body io.Reader

		if req.body != "" {
			body = strings.NewReader(req.body)
		}

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(req.method, req.path, body))

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).ToNot(ContainSubstring("disk is full"))

		var resp response.ErrorResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Error.Code).To(Equal("INTERNAL_ERROR"))
		Expect(resp.Error.Errors[0].Message).To(Equal(req.message))
	}
}
