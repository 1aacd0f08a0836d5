package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"smart-todos/internal/model"
	"smart-todos/internal/service"
)

// userKey is the Locals key holding the authenticated *model.User.
const userKey = "user"

// requireUser resolves the Bearer token to a user or fails with 401.
func (s *Server) requireUser(c *fiber.Ctx) error {
	token, ok := bearerToken(c)
	if !ok {
		return service.ErrUnauthorized
	}
	user, err := s.auth.Authenticate(c.UserContext(), token)
	if err != nil {
		return err
	}
	c.Locals(userKey, user)
	return c.Next()
}

func currentUser(c *fiber.Ctx) *model.User {
	user, _ := c.Locals(userKey).(*model.User)
	return user
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	header := c.Get(fiber.HeaderAuthorization)
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, found && token != ""
}
