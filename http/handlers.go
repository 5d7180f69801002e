// server/http/handlers.go
package http

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ViniZap4/tasks-server/domain"
	"github.com/ViniZap4/tasks-server/store"
	"github.com/ViniZap4/tasks-server/ws"
)

type envelope struct {
	OK      bool         `json:"ok"`
	Task    *domain.Task `json:"task,omitempty"`
	Message string       `json:"message,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	OK        bool   `json:"ok"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
	User      struct {
		Username string `json:"username"`
	} `json:"user"`
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(envelope{OK: false, Message: msg})
}

func tasksResponse(c *fiber.Ctx, tasks []domain.Task) error {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return c.JSON(fiber.Map{"ok": true, "tasks": tasks})
}

// storeFailure maps a store error onto a response; only validation errors
// are the caller's fault.
func (s *Server) storeFailure(c *fiber.Ctx, err error, msg string) error {
	if errors.Is(err, domain.ErrValidation) {
		return fail(c, fiber.StatusBadRequest, "Title is required")
	}
	var perr *store.PersistenceError
	if errors.As(err, &perr) {
		s.log.Error().Err(perr.Err).Int("attempts", perr.Attempts).Str("path", c.Path()).Msg("persistence failed")
	} else {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("store operation failed")
	}
	return fail(c, fiber.StatusInternalServerError, msg)
}

// decodeBody treats an empty body as an empty object.
func decodeBody(c *fiber.Ctx, v any) error {
	body := c.Body()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func (s *Server) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := decodeBody(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return fail(c, fiber.StatusBadRequest, "Username and password are required")
	}
	if s.authn == nil {
		return fail(c, fiber.StatusNotImplemented, "Authentication is disabled")
	}

	token, expires, err := s.authn.Login(req.Username, req.Password)
	if err != nil {
		s.log.Info().Str("username", req.Username).Msg("login rejected")
		return fail(c, fiber.StatusUnauthorized, "Invalid username or password")
	}

	resp := loginResponse{OK: true, Token: token, ExpiresAt: domain.Timestamp(expires)}
	resp.User.Username = req.Username
	return c.JSON(resp)
}

func (s *Server) HandleListTasks(c *fiber.Ctx) error {
	return tasksResponse(c, s.store.List())
}

func (s *Server) HandleCreateTask(c *fiber.Ctx) error {
	var req struct {
		Title any `json:"title"`
	}
	if err := decodeBody(c, &req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	title, ok := req.Title.(string)
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Title is required")
	}

	task, err := s.store.Create(title)
	if err != nil {
		return s.storeFailure(c, err, "Failed to create task")
	}

	s.hub.Broadcast(ws.TaskCreated, &task)
	return c.Status(fiber.StatusCreated).JSON(envelope{OK: true, Task: &task})
}

func (s *Server) HandleUpdateTask(c *fiber.Ctx) error {
	id, ok := parseID(c.Params("id"))
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid ID")
	}
	patch, err := decodePatch(c.Body())
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	task, found, err := s.store.Update(id, patch)
	if err != nil {
		return s.storeFailure(c, err, "Failed to update task")
	}
	if !found {
		return fail(c, fiber.StatusNotFound, "Task not found")
	}

	s.hub.Broadcast(ws.TaskUpdated, &task)
	return c.JSON(envelope{OK: true, Task: &task})
}

func (s *Server) HandleDeleteTask(c *fiber.Ctx) error {
	id, ok := parseID(c.Params("id"))
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid ID")
	}

	removed, err := s.store.Remove(id)
	if err != nil {
		return s.storeFailure(c, err, "Failed to delete task")
	}
	if !removed {
		return fail(c, fiber.StatusNotFound, "Task not found")
	}

	s.hub.BroadcastDeleted(id)
	return c.JSON(envelope{OK: true})
}

func (s *Server) HandleCompleteAll(c *fiber.Ctx) error {
	changed, err := s.store.CompleteAll()
	if err != nil {
		return s.storeFailure(c, err, "Failed to complete tasks")
	}
	s.broadcastUpdated(changed)
	return tasksResponse(c, changed)
}

func (s *Server) HandleUncheckCompleted(c *fiber.Ctx) error {
	changed, err := s.store.UncheckCompleted()
	if err != nil {
		return s.storeFailure(c, err, "Failed to update tasks")
	}
	s.broadcastUpdated(changed)
	return tasksResponse(c, changed)
}

func (s *Server) broadcastUpdated(tasks []domain.Task) {
	for i := range tasks {
		s.hub.Broadcast(ws.TaskUpdated, &tasks[i])
	}
}
