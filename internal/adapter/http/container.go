package http

import (
	"todolist/internal/adapter/database"
	"todolist/internal/adapter/database/repository"
	"todolist/internal/adapter/http/handler"
	"todolist/internal/adapter/http/validation"
	"todolist/internal/core/port"
	"todolist/internal/core/service"
	"todolist/pkg/logger"
)

type Container struct {
	TodoRepo    port.TodoRepository
	TodoUseCase port.TodoService

	TodoHandler   *handler.TodoHandler
	HealthHandler *handler.HealthHandler
}

func NewContainer(db *database.DB, log *logger.Logger, probe port.Telemetry) *Container {
	todoRepo := repository.NewTodoRepository(db, probe)
	todoSvc := service.NewTodoService(todoRepo, probe)

	return &Container{
		TodoRepo:    todoRepo,
		TodoUseCase: todoSvc,

		TodoHandler:   handler.NewTodoHandler(todoSvc, validation.NewValidator(), log),
		HealthHandler: handler.NewHealthHandler(db, log),
	}
}
