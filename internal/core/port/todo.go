package port

import (
	"context"

	"todolist/internal/core/domain"
)

type TodoRepository interface {
	List(ctx context.Context) ([]domain.Todo, error)
	GetByID(ctx context.Context, id int64) (domain.Todo, error)
	Create(ctx context.Context, input domain.CreateTodoInput) (domain.Todo, error)
	Update(ctx context.Context, id int64, patch domain.TodoPatch) (domain.Todo, error)
	Toggle(ctx context.Context, id int64) (domain.Todo, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type TodoService interface {
	List(ctx context.Context) ([]domain.Todo, error)
	GetByID(ctx context.Context, id int64) (domain.Todo, error)
	Create(ctx context.Context, input domain.CreateTodoInput) (domain.Todo, error)
	Update(ctx context.Context, id int64, patch domain.TodoPatch) (domain.Todo, error)
	Toggle(ctx context.Context, id int64) (domain.Todo, error)
	Delete(ctx context.Context, id int64) error
}
