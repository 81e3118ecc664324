package server

import (
	"socialfeed/internal/models"

	"github.com/gofiber/fiber/v2"
)

func invalidBody() error {
	return models.NewValidationFailedError("Invalid request body", nil)
}

// Signup handles PUT /auth/signup
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}

	userID, err := s.accountService.Signup(c.UserContext(), req.Email, req.Password, req.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created!",
		"userId":  userID,
	})
}

// Login handles POST /auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}

	token, userID, err := s.accountService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"token":  token,
		"userId": userID,
	})
}

// GetStatus handles GET /auth/status
func (s *Server) GetStatus(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}
	status, err := s.accountService.GetStatus(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

// UpdateStatus handles PATCH /auth/status
func (s *Server) UpdateStatus(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}

	if err := s.accountService.UpdateStatus(c.UserContext(), userID, req.Status); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "User updated."})
}
