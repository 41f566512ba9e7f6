package request

import "todolist/pkg/optional"

// CreateTodoRequest keeps each field three-state so a wrong JSON type can be
// reported per field instead of failing the whole body.
type CreateTodoRequest struct {
	Title       optional.Value[string] `json:"title"`
	Description optional.Value[string] `json:"description"`
}

type UpdateTodoRequest struct {
	Title       optional.Value[string] `json:"title"`
	Description optional.Value[string] `json:"description"`
	Completed   optional.Value[bool]   `json:"completed"`
}
