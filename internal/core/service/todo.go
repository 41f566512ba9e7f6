package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"todolist/internal/core/domain"
	"todolist/internal/core/port"
	tel "todolist/internal/core/telemetry"
)

const serviceName = "todo"

type TodoService struct {
	repo      port.TodoRepository
	telemetry port.Telemetry
}

func NewTodoService(repo port.TodoRepository, telemetry port.Telemetry) *TodoService {
	if telemetry == nil {
		telemetry = tel.NewNoOpProbe()
	}

	return &TodoService{
		repo:      repo,
		telemetry: telemetry,
	}
}

func (ts *TodoService) List(ctx context.Context) (todos []domain.Todo, err error) {
	ctx, done := ts.trace(ctx, "List", nil)
	defer func() { done(err) }()

	return ts.repo.List(ctx)
}

func (ts *TodoService) GetByID(ctx context.Context, id int64) (todo domain.Todo, err error) {
	ctx, done := ts.trace(ctx, "GetByID", map[string]interface{}{"todo.id": id})
	defer func() { done(err) }()

	return ts.repo.GetByID(ctx, id)
}

func (ts *TodoService) Create(ctx context.Context, input domain.CreateTodoInput) (todo domain.Todo, err error) {
	ctx, done := ts.trace(ctx, "Create", map[string]interface{}{
		"todo.has_description": input.Description != nil,
	})
	defer func() { done(err) }()

	todo, err = ts.repo.Create(ctx, input)

	if err != nil {
		ts.telemetry.RecordError(ctx, "todo.create", err, map[string]interface{}{"title_length": len(input.Title)})
		return domain.Todo{}, err
	}

	ts.telemetry.RecordBusinessEvent(ctx, "created", "todo", entityID(todo.ID), map[string]interface{}{
		"has_description": todo.Description != nil,
	})

	return todo, nil
}

func (ts *TodoService) Update(ctx context.Context, id int64, patch domain.TodoPatch) (todo domain.Todo, err error) {
	ctx, done := ts.trace(ctx, "Update", map[string]interface{}{
		"todo.id":       id,
		"update.fields": patch.Fields(),
	})
	defer func() { done(err) }()

	todo, err = ts.repo.Update(ctx, id, patch)

	if err != nil {
		return domain.Todo{}, err
	}

	if !patch.IsEmpty() {
		ts.telemetry.RecordBusinessEvent(ctx, "updated", "todo", entityID(id), map[string]interface{}{
			"fields": patch.Fields(),
		})
	}

	return todo, nil
}

func (ts *TodoService) Toggle(ctx context.Context, id int64) (todo domain.Todo, err error) {
	ctx, done := ts.trace(ctx, "Toggle", map[string]interface{}{"todo.id": id})
	defer func() { done(err) }()

	todo, err = ts.repo.Toggle(ctx, id)

	if err != nil {
		return domain.Todo{}, err
	}

	ts.telemetry.RecordBusinessEvent(ctx, "toggled", "todo", entityID(id), map[string]interface{}{
		"completed": todo.Completed,
	})

	return todo, nil
}

func (ts *TodoService) Delete(ctx context.Context, id int64) (err error) {
	ctx, done := ts.trace(ctx, "Delete", map[string]interface{}{"todo.id": id})
	defer func() { done(err) }()

	deleted, err := ts.repo.Delete(ctx, id)

	if err != nil {
		return err
	}

	if !deleted {
		return domain.ErrTodoNotFound
	}

	ts.telemetry.RecordBusinessEvent(ctx, "deleted", "todo", entityID(id), nil)

	return nil
}

func (ts *TodoService) trace(ctx context.Context, operation string, attrs map[string]interface{}) (context.Context, func(error)) {
	ctx, span := ts.telemetry.StartServiceSpan(ctx, serviceName, operation, attrs)
	startTime := time.Now()

	return ctx, func(err error) {
		defer span.End()

		// not found is an expected outcome for the caller
		if errors.Is(err, domain.ErrTodoNotFound) {
			span.SetAttributes(map[string]interface{}{"todo.found": false})
			err = nil
		}

		ts.telemetry.RecordServiceOperation(ctx, serviceName, operation, time.Since(startTime), err)
	}
}

func entityID(id int64) string {
	return strconv.FormatInt(id, 10)
}
