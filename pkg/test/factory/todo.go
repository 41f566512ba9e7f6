package factory

import (
	"context"

	fab "github.com/Goldziher/fabricator"

	"todolist/internal/core/domain"
	"todolist/internal/core/port"
)

func NewCreateTodoInput(customData ...map[string]any) domain.CreateTodoInput {
	return fab.New(domain.CreateTodoInput{}).Build(customData...)
}

// CreateTodos stores n generated todos and returns them in insertion order.
func CreateTodos(ctx context.Context, repo port.TodoRepository, n int) ([]domain.Todo, error) {
	todos := make([]domain.Todo, 0, n)

	for i := 0; i < n; i++ {
		todo, err := repo.Create(ctx, NewCreateTodoInput())

		if err != nil {
			return nil, err
		}

		todos = append(todos, todo)
	}

	return todos, nil
}
