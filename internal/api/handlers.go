package api

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"smart-todos/internal/model"
	"smart-todos/internal/repository"
	"smart-todos/internal/service"
	"smart-todos/internal/view"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type bulkUpdateRequest struct {
	TodoIDs []uint            `json:"todo_ids"`
	Updates service.TodoPatch `json:"updates"`
}

type subtaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format("2006-01-02T15:04:05Z07:00"),
		"version":   apiVersion,
	})
}

func (s *Server) signup(c *fiber.Ctx) error {
	var req service.SignupInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.auth.Signup(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) me(c *fiber.Ctx) error {
	return c.JSON(currentUser(c))
}

func (s *Server) createTodo(c *fiber.Ctx) error {
	var input service.TodoInput
	if err := parseBody(c, &input); err != nil {
		return err
	}
	task, err := s.todos.Create(c.UserContext(), currentUser(c), input)
	if err != nil {
		return err
	}
	return c.JSON(task)
}

func (s *Server) listTodos(c *fiber.Ctx) error {
	filter := repository.ListFilter{
		Priority:  model.Priority(c.Query("priority")),
		Category:  c.Query("category"),
		DueBefore: c.Query("due_before"),
	}
	if raw := c.Query("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "completed: must be a boolean")
		}
		filter.Completed = &completed
	}
	limit, err := queryInt(c, "limit", 0, 1, 100)
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset", 0, 0, -1)
	if err != nil {
		return err
	}
	filter.Limit, filter.Offset = limit, offset

	tasks, err := s.todos.List(c.UserContext(), currentUser(c), filter)
	if err != nil {
		return err
	}
	return c.JSON(orEmpty(tasks))
}

func (s *Server) todosByStatus(c *fiber.Ctx) error {
	completed, err := strconv.ParseBool(c.Params("completed"))
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "completed: must be a boolean")
	}
	tasks, err := s.todos.List(c.UserContext(), currentUser(c), repository.ListFilter{Completed: &completed})
	if err != nil {
		return err
	}
	return c.JSON(orEmpty(tasks))
}

func (s *Server) getTodo(c *fiber.Ctx) error {
	id, err := todoID(c)
	if err != nil {
		return err
	}
	task, err := s.todos.Get(c.UserContext(), currentUser(c), id)
	if err != nil {
		return err
	}
	return c.JSON(task)
}

func (s *Server) updateTodo(c *fiber.Ctx) error {
	id, err := todoID(c)
	if err != nil {
		return err
	}
	var patch service.TodoPatch
	if err := parseBody(c, &patch); err != nil {
		return err
	}
	task, err := s.todos.Update(c.UserContext(), currentUser(c), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(task)
}

func (s *Server) deleteTodo(c *fiber.Ctx) error {
	id, err := todoID(c)
	if err != nil {
		return err
	}
	if err := s.todos.Delete(c.UserContext(), currentUser(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Todo deleted successfully"})
}

func (s *Server) clearTodos(c *fiber.Ctx) error {
	count, err := s.todos.ClearAll(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": fmt.Sprintf("Cleared %d todos", count)})
}

func (s *Server) overdue(c *fiber.Ctx) error {
	tasks, err := s.todos.Overdue(c.UserContext(), currentUser(c), s.now())
	if err != nil {
		return err
	}
	return c.JSON(orEmpty(tasks))
}

func (s *Server) dueSoon(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)
	tasks, err := s.todos.DueSoon(c.UserContext(), currentUser(c), days, s.now())
	if err != nil {
		return err
	}
	return c.JSON(orEmpty(tasks))
}

func (s *Server) view(c *fiber.Ctx) error {
	filter := view.FilterAll
	if raw := c.Query("filter"); raw != "" {
		parsed, err := view.ParseFilter(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
		}
		filter = parsed
	}
	res, err := s.todos.View(c.UserContext(), currentUser(c), filter, c.Query("q"), s.now())
	if err != nil {
		return err
	}
	res.Todos = orEmpty(res.Todos)
	return c.JSON(res)
}

func (s *Server) statistics(c *fiber.Ctx) error {
	stats, err := s.todos.Statistics(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (s *Server) bulkUpdate(c *fiber.Ctx) error {
	var req bulkUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.TodoIDs) == 0 {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "todo_ids: must not be empty")
	}
	res, err := s.todos.BulkUpdate(c.UserContext(), currentUser(c), req.TodoIDs, req.Updates)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) search(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	tasks, err := s.todos.Search(c.UserContext(), currentUser(c), c.Query("q"), c.QueryBool("include_completed", true), limit)
	if err != nil {
		return err
	}
	return c.JSON(orEmpty(tasks))
}

func (s *Server) listCategories(c *fiber.Ctx) error {
	names, err := s.categories.List(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(names)
}

func (s *Server) categorySuggestions(c *fiber.Ctx) error {
	names, err := s.categories.Suggestions(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(names)
}

func (s *Server) priorities(c *fiber.Ctx) error {
	return c.JSON(model.Priorities)
}

func (s *Server) importTodos(c *fiber.Ctx) error {
	var inputs []service.TodoInput
	if err := parseBody(c, &inputs); err != nil {
		return err
	}
	res, err := s.todos.Import(c.UserContext(), currentUser(c), inputs)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) export(c *fiber.Ctx) error {
	tasks, err := s.todos.Export(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(orEmpty(tasks))
}

// generateSubtasks uses the caller's AI provider key from the Authorization
// header rather than a session token.
func (s *Server) generateSubtasks(c *fiber.Ctx) error {
	apiKey, ok := bearerToken(c)
	if !ok {
		return service.ErrAPIKeyRequired
	}
	var req subtaskRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	subtasks, err := s.subtasks.Generate(c.UserContext(), apiKey, req.Title, req.Description)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"subtasks": subtasks})
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Invalid request body")
	}
	return nil
}

func todoID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return 0, fiber.NewError(fiber.StatusUnprocessableEntity, "id: must be a positive integer")
	}
	return uint(id), nil
}

// queryInt reads an optional integer bounded by [lo, hi]. A negative hi
// means unbounded.
func queryInt(c *fiber.Ctx, key string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi >= 0 && n > hi) {
		return 0, fiber.NewError(fiber.StatusUnprocessableEntity, fmt.Sprintf("%s: out of range", key))
	}
	return n, nil
}

func orEmpty(tasks []model.Task) []model.Task {
	if tasks == nil {
		return []model.Task{}
	}
	return tasks
}
