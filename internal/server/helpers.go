package server

import (
	"mime/multipart"

	"socialfeed/internal/middleware"
	"socialfeed/internal/models"
	"socialfeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

// parsePage reads ?page=N. Anything that is not a positive integer means page 1.
func parsePage(c *fiber.Ctx) int {
	page := c.QueryInt("page", 1)
	if page < 1 {
		return 1
	}
	return page
}

// callerID returns the authenticated user id or an Unauthenticated error.
func callerID(c *fiber.Ctx) (string, error) {
	id, ok := middleware.CallerID(c)
	if !ok {
		return "", models.NewUnauthenticatedError("")
	}
	return id, nil
}

// formImage opens the "image" file part, if the request carries one.
// The returned close func is always safe to call.
func formImage(c *fiber.Ctx) (*service.ImageUpload, func(), error) {
	header, err := c.FormFile("image")
	if err != nil || header == nil {
		return nil, func() {}, nil
	}
	f, err := header.Open()
	if err != nil {
		return nil, func() {}, err
	}
	return &service.ImageUpload{Name: header.Filename, Body: f}, closer(f), nil
}

func closer(f multipart.File) func() {
	return func() { _ = f.Close() }
}
