package port

import "todolist/internal/core/model/response"

type Validator interface {
	ValidatePartial(s interface{}, fields ...string) error
	FormatValidationErrors(err error) []response.ValidationError
}
