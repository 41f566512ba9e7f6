package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"todolist/internal/adapter/database"
	"todolist/internal/core/domain"
	"todolist/internal/core/port"
	tel "todolist/internal/core/telemetry"
)

const todosTable = "todos"

var todoColumns = []string{"id", "title", "description", "completed", "created_at", "updated_at"}

type TodoRepository struct {
	db        *database.DB
	telemetry port.Telemetry
	now       func() time.Time
}

type Option func(*TodoRepository)

// WithClock replaces the source of created_at/updated_at values.
func WithClock(now func() time.Time) Option {
	return func(tr *TodoRepository) {
		tr.now = now
	}
}

func NewTodoRepository(db *database.DB, telemetry port.Telemetry, opts ...Option) port.TodoRepository {
	if telemetry == nil {
		telemetry = tel.NewNoOpProbe()
	}

	tr := &TodoRepository{
		db:        db,
		telemetry: telemetry,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(tr)
	}

	return tr
}

func (tr *TodoRepository) List(ctx context.Context) (todos []domain.Todo, err error) {
	ctx, done := tr.observe(ctx, "List", nil)
	defer func() { done(err) }()

	query, args, err := tr.db.QueryBuilder.Select(todoColumns...).
		From(todosTable).
		OrderBy("created_at DESC", "id DESC").
		ToSql()

	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	tr.telemetry.RecordRepositoryQuery(ctx, "List", "todo", query, args)

	rows, err := tr.db.QueryContext(ctx, query, args...)

	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}

	defer rows.Close()

	todos = make([]domain.Todo, 0)

	for rows.Next() {
		todo, err := scanTodo(rows)

		if err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}

		todos = append(todos, todo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}

	return todos, nil
}

func (tr *TodoRepository) GetByID(ctx context.Context, id int64) (todo domain.Todo, err error) {
	ctx, done := tr.observe(ctx, "GetByID", map[string]interface{}{"todo.id": id})
	defer func() { done(err) }()

	return tr.getByID(ctx, id)
}

func (tr *TodoRepository) Create(ctx context.Context, input domain.CreateTodoInput) (todo domain.Todo, err error) {
	ctx, done := tr.observe(ctx, "Create", map[string]interface{}{"db.operation": "INSERT"})
	defer func() { done(err) }()

	now := tr.timestamp()

	query, args, err := tr.db.QueryBuilder.Insert(todosTable).
		Columns("title", "description", "completed", "created_at", "updated_at").
		Values(input.Title, input.Description, false, now, now).
		Suffix("RETURNING id").
		ToSql()

	if err != nil {
		return domain.Todo{}, fmt.Errorf("build insert query: %w", err)
	}

	tr.telemetry.RecordRepositoryQuery(ctx, "Create", "todo", query, args)

	var id int64

	if err := tr.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return domain.Todo{}, fmt.Errorf("insert todo: %w", err)
	}

	saved, err := tr.getByID(ctx, id)

	if err != nil {
		return domain.Todo{}, fmt.Errorf("read created todo %d: %w", id, err)
	}

	return saved, nil
}

func (tr *TodoRepository) Update(ctx context.Context, id int64, patch domain.TodoPatch) (todo domain.Todo, err error) {
	ctx, done := tr.observe(ctx, "Update", map[string]interface{}{
		"db.operation":  "UPDATE",
		"todo.id":       id,
		"update.fields": patch.Fields(),
	})
	defer func() { done(err) }()

	return tr.update(ctx, id, patch)
}

func (tr *TodoRepository) Toggle(ctx context.Context, id int64) (todo domain.Todo, err error) {
	ctx, done := tr.observe(ctx, "Toggle", map[string]interface{}{
		"db.operation": "UPDATE",
		"todo.id":      id,
	})
	defer func() { done(err) }()

	query, args, err := tr.db.QueryBuilder.Update(todosTable).
		Set("completed", sq.Expr("NOT completed")).
		Set("updated_at", tr.timestamp()).
		Where(sq.Eq{"id": id}).
		ToSql()

	if err != nil {
		return domain.Todo{}, fmt.Errorf("build toggle query: %w", err)
	}

	return tr.exec(ctx, "Toggle", id, query, args)
}

func (tr *TodoRepository) Delete(ctx context.Context, id int64) (deleted bool, err error) {
	ctx, done := tr.observe(ctx, "Delete", map[string]interface{}{
		"db.operation": "DELETE",
		"todo.id":      id,
	})
	defer func() { done(err) }()

	query, args, err := tr.db.QueryBuilder.Delete(todosTable).
		Where(sq.Eq{"id": id}).
		ToSql()

	if err != nil {
		return false, fmt.Errorf("build delete query: %w", err)
	}

	tr.telemetry.RecordRepositoryQuery(ctx, "Delete", "todo", query, args)

	result, err := tr.db.ExecContext(ctx, query, args...)

	if err != nil {
		return false, fmt.Errorf("delete todo %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return false, fmt.Errorf("delete todo %d: %w", id, err)
	}

	return rowsAffected > 0, nil
}

func (tr *TodoRepository) getByID(ctx context.Context, id int64) (domain.Todo, error) {
	query, args, err := tr.db.QueryBuilder.Select(todoColumns...).
		From(todosTable).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()

	if err != nil {
		return domain.Todo{}, fmt.Errorf("build select query: %w", err)
	}

	tr.telemetry.RecordRepositoryQuery(ctx, "GetByID", "todo", query, args)

	todo, err := scanTodo(tr.db.QueryRowContext(ctx, query, args...))

	if errors.Is(err, sql.ErrNoRows) {
		return domain.Todo{}, domain.ErrTodoNotFound
	}

	if err != nil {
		return domain.Todo{}, fmt.Errorf("get todo %d: %w", id, err)
	}

	return todo, nil
}

func (tr *TodoRepository) update(ctx context.Context, id int64, patch domain.TodoPatch) (domain.Todo, error) {
	builder := tr.db.QueryBuilder.Update(todosTable).Where(sq.Eq{"id": id})
	applied := 0

	if title, ok := patch.Title.Get(); ok {
		builder = builder.Set("title", title)
		applied++
	}

	if patch.Description.IsSet() {
		builder = builder.Set("description", patch.Description.Ptr())
		applied++
	}

	if completed, ok := patch.Completed.Get(); ok {
		builder = builder.Set("completed", completed)
		applied++
	}

	if applied == 0 {
		return tr.getByID(ctx, id)
	}

	query, args, err := builder.Set("updated_at", tr.timestamp()).ToSql()

	if err != nil {
		return domain.Todo{}, fmt.Errorf("build update query: %w", err)
	}

	return tr.exec(ctx, "Update", id, query, args)
}

// exec runs a single-row UPDATE and reads the row back.
func (tr *TodoRepository) exec(ctx context.Context, operation string, id int64, query string, args []interface{}) (domain.Todo, error) {
	tr.telemetry.RecordRepositoryQuery(ctx, operation, "todo", query, args)

	result, err := tr.db.ExecContext(ctx, query, args...)

	if err != nil {
		return domain.Todo{}, fmt.Errorf("update todo %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return domain.Todo{}, fmt.Errorf("update todo %d: %w", id, err)
	}

	if rowsAffected == 0 {
		return domain.Todo{}, domain.ErrTodoNotFound
	}

	return tr.getByID(ctx, id)
}

func (tr *TodoRepository) timestamp() time.Time {
	return tr.now().UTC()
}

// observe opens a repository span and returns the func that closes it.
// A missing row is an answer, not a failure.
func (tr *TodoRepository) observe(ctx context.Context, operation string, attrs map[string]interface{}) (context.Context, func(error)) {
	if attrs == nil {
		attrs = map[string]interface{}{}
	}

	attrs["db.system"] = tr.db.Driver
	attrs["db.table"] = todosTable

	ctx, span := tr.telemetry.StartRepositorySpan(ctx, operation, "todo", attrs)
	startTime := time.Now()

	return ctx, func(err error) {
		defer span.End()

		if errors.Is(err, domain.ErrTodoNotFound) {
			span.SetAttributes(map[string]interface{}{"db.found": false})
			err = nil
		}

		tr.telemetry.RecordRepositoryOperation(ctx, operation, "todo", time.Since(startTime), err)

		if err != nil {
			span.SetStatus("error", err.Error())
			span.RecordError(err)
			return
		}

		span.SetStatus("ok", "")
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (domain.Todo, error) {
	var (
		todo        domain.Todo
		description sql.NullString
	)

	err := row.Scan(&todo.ID, &todo.Title, &description, &todo.Completed, &todo.CreatedAt, &todo.UpdatedAt)

	if err != nil {
		return domain.Todo{}, err
	}

	if description.Valid {
		todo.Description = &description.String
	}

	todo.CreatedAt = todo.CreatedAt.UTC()
	todo.UpdatedAt = todo.UpdatedAt.UTC()

	return todo, nil
}
