package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	. "todolist/internal/adapter/http/helper"
	"todolist/internal/adapter/http/validation"
	"todolist/internal/core/domain"
	"todolist/internal/core/model/request"
	"todolist/internal/core/model/response"
	"todolist/internal/core/port"
	"todolist/pkg/logger"
	"todolist/pkg/optional"
)

const (
	msgInvalidID         = "Invalid todo ID"
	msgInvalidBody       = "Request body must be a JSON object"
	msgTitleRequired     = "Title is required"
	msgTitleNotBlank     = "Title must be a non-empty string"
	msgDescriptionString = "Description must be a string"
	msgCompletedBoolean  = "Completed must be a boolean"
	msgTodoNotFound      = "Todo not found"
	msgFailedToFetchAll  = "Failed to fetch todos"
	msgFailedToFetch     = "Failed to fetch todo"
	msgFailedToCreate    = "Failed to create todo"
	msgFailedToUpdate    = "Failed to update todo"
	msgFailedToToggle    = "Failed to toggle todo"
	msgFailedToDelete    = "Failed to delete todo"
)

type TodoHandler struct {
	svc       port.TodoService
	validator port.Validator
	logger    *logger.Logger
}

func NewTodoHandler(svc port.TodoService, validator port.Validator, log *logger.Logger) *TodoHandler {
	if validator == nil {
		validator = validation.NewValidator()
	}

	if log == nil {
		log = logger.NewNop()
	}

	return &TodoHandler{
		svc:       svc,
		validator: validator,
		logger:    log,
	}
}

func (t *TodoHandler) ListTodos(c *gin.Context) {
	ctx := c.Request.Context()

	todos, err := t.svc.List(ctx)

	if err != nil {
		t.logger.ErrorWithTrace(ctx, "Failed to list todos", err)
		SendInternalError(c, msgFailedToFetchAll)
		return
	}

	c.JSON(http.StatusOK, response.NewTodoListResponse(todos))
}

func (t *TodoHandler) GetTodo(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseID(c)

	if !ok {
		return
	}

	todo, err := t.svc.GetByID(ctx, id)

	if err != nil {
		t.sendServiceError(c, err, msgFailedToFetch, id)
		return
	}

	c.JSON(http.StatusOK, response.NewTodoResponse(todo))
}

func (t *TodoHandler) CreateTodo(c *gin.Context) {
	ctx := c.Request.Context()

	var params request.CreateTodoRequest

	if !bindJSON(c, &params) {
		return
	}

	input, fieldErrors := t.createInput(params)

	if len(fieldErrors) > 0 {
		SendValidationErrors(c, fieldErrors)
		return
	}

	todo, err := t.svc.Create(ctx, input)

	if err != nil {
		t.logger.ErrorWithTrace(ctx, "Failed to create todo", err, zap.Int("title_length", len(input.Title)))
		SendInternalError(c, msgFailedToCreate)
		return
	}

	c.JSON(http.StatusCreated, response.NewTodoResponse(todo))
}

func (t *TodoHandler) UpdateTodo(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseID(c)

	if !ok {
		return
	}

	var params request.UpdateTodoRequest

	if !bindJSON(c, &params) {
		return
	}

	patch, fieldErrors := t.updatePatch(params)

	if len(fieldErrors) > 0 {
		SendValidationErrors(c, fieldErrors)
		return
	}

	todo, err := t.svc.Update(ctx, id, patch)

	if err != nil {
		t.sendServiceError(c, err, msgFailedToUpdate, id)
		return
	}

	c.JSON(http.StatusOK, response.NewTodoResponse(todo))
}

func (t *TodoHandler) ToggleTodo(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseID(c)

	if !ok {
		return
	}

	todo, err := t.svc.Toggle(ctx, id)

	if err != nil {
		t.sendServiceError(c, err, msgFailedToToggle, id)
		return
	}

	c.JSON(http.StatusOK, response.NewTodoResponse(todo))
}

func (t *TodoHandler) DeleteTodo(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseID(c)

	if !ok {
		return
	}

	if err := t.svc.Delete(ctx, id); err != nil {
		t.sendServiceError(c, err, msgFailedToDelete, id)
		return
	}

	c.Status(http.StatusNoContent)
}

func (t *TodoHandler) sendServiceError(c *gin.Context, err error, message string, id int64) {
	if errors.Is(err, domain.ErrTodoNotFound) {
		SendNotFoundError(c, msgTodoNotFound)
		return
	}

	t.logger.ErrorWithTrace(c.Request.Context(), message, err, zap.Int64("todo_id", id))
	SendInternalError(c, message)
}

// createInput trims the title and collapses a blank description to nil.
func (t *TodoHandler) createInput(params request.CreateTodoRequest) (domain.CreateTodoInput, []response.ValidationError) {
	var fieldErrors []response.ValidationError

	input := domain.CreateTodoInput{}

	switch {
	case !params.Title.IsSet() || params.Title.IsNull():
		fieldErrors = append(fieldErrors, response.ValidationError{Field: "title", Message: msgTitleRequired})
	case params.Title.IsInvalid():
		fieldErrors = append(fieldErrors, response.ValidationError{Field: "title", Message: msgTitleNotBlank})
	default:
		title, _ := params.Title.Get()
		input.Title = strings.TrimSpace(title)

		if err := t.validator.ValidatePartial(input, "Title"); err != nil {
			fieldErrors = append(fieldErrors, t.validator.FormatValidationErrors(err)...)
		}
	}

	description, err := normalizeDescription(params.Description)

	if err != nil {
		fieldErrors = append(fieldErrors, *err)
	}

	input.Description = description.Ptr()

	return input, fieldErrors
}

func (t *TodoHandler) updatePatch(params request.UpdateTodoRequest) (domain.TodoPatch, []response.ValidationError) {
	var fieldErrors []response.ValidationError

	patch := domain.TodoPatch{}

	if params.Title.IsSet() {
		title, ok := params.Title.Get()
		trimmed := strings.TrimSpace(title)

		if !ok {
			fieldErrors = append(fieldErrors, response.ValidationError{Field: "title", Message: msgTitleNotBlank})
		} else if err := t.validator.ValidatePartial(domain.CreateTodoInput{Title: trimmed}, "Title"); err != nil {
			fieldErrors = append(fieldErrors, t.validator.FormatValidationErrors(err)...)
		} else {
			patch.Title = optional.Some(trimmed)
		}
	}

	description, err := normalizeDescription(params.Description)

	if err != nil {
		fieldErrors = append(fieldErrors, *err)
	}

	patch.Description = description

	if params.Completed.IsSet() {
		completed, ok := params.Completed.Get()

		if !ok {
			fieldErrors = append(fieldErrors, response.ValidationError{Field: "completed", Message: msgCompletedBoolean})
		} else {
			patch.Completed = optional.Some(completed)
		}
	}

	return patch, fieldErrors
}

// normalizeDescription trims a present description; blank and null both
// become an explicit null, an absent field stays absent.
func normalizeDescription(value optional.Value[string]) (optional.Value[string], *response.ValidationError) {
	if !value.IsSet() {
		return optional.None[string](), nil
	}

	if value.IsInvalid() {
		return optional.None[string](), &response.ValidationError{Field: "description", Message: msgDescriptionString}
	}

	description, ok := value.Get()
	description = strings.TrimSpace(description)

	if !ok || description == "" {
		return optional.Null[string](), nil
	}

	return optional.Some(description), nil
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)

	if err != nil {
		SendBadRequestError(c, "id", msgInvalidID)
		return 0, false
	}

	return id, true
}

// bindJSON treats an empty body as an empty object and rejects anything
// after the first JSON value.
func bindJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil {
		return true
	}

	decoder := json.NewDecoder(c.Request.Body)
	err := decoder.Decode(dst)

	if errors.Is(err, io.EOF) {
		return true
	}

	if err == nil {
		var trailing json.RawMessage

		if err = decoder.Decode(&trailing); errors.Is(err, io.EOF) {
			return true
		}
	}

	SendBadRequestError(c, "body", msgInvalidBody)

	return false
}
