package domain

import (
	"errors"
	"time"

	"todolist/pkg/optional"
)

var ErrTodoNotFound = errors.New("todo not found")

type Todo struct {
	ID          int64
	Title       string
	Description *string
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateTodoInput struct {
	Title       string `validate:"notblank"`
	Description *string
}

// TodoPatch is a sparse update. A null Description clears the column.
type TodoPatch struct {
	Title       optional.Value[string]
	Description optional.Value[string]
	Completed   optional.Value[bool]
}

func (p TodoPatch) IsEmpty() bool {
	return !p.Title.IsSet() && !p.Description.IsSet() && !p.Completed.IsSet()
}

// Fields lists the present fields by column name.
func (p TodoPatch) Fields() []string {
	fields := make([]string, 0, 3)

	if p.Title.IsSet() {
		fields = append(fields, "title")
	}

	if p.Description.IsSet() {
		fields = append(fields, "description")
	}

	if p.Completed.IsSet() {
		fields = append(fields, "completed")
	}

	return fields
}
