package server

import (
	"socialfeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetPosts handles GET /feed/posts?page=N
func (s *Server) GetPosts(c *fiber.Ctx) error {
	posts, total, err := s.postService.List(c.UserContext(), parsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":    "Fetched posts successfully.",
		"posts":      posts,
		"totalItems": total,
	})
}

// CreatePost handles POST /feed/post (multipart: title, content, image)
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	image, done, err := formImage(c)
	if err != nil {
		return err
	}
	defer done()

	post, creator, err := s.postService.Create(c.UserContext(), service.CreatePostInput{
		Title:    c.FormValue("title"),
		Content:  c.FormValue("content"),
		Image:    image,
		CallerID: userID,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Post created successfully!",
		"post":    post,
		"creator": creator,
	})
}

// GetPost handles GET /feed/post/:postId
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.postService.Get(c.UserContext(), c.Params("postId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Post fetched.",
		"post":    post,
	})
}

// UpdatePost handles PUT /feed/post/:postId. The image part may be a new file
// or a text field holding the current image URL.
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	image, done, err := formImage(c)
	if err != nil {
		return err
	}
	defer done()

	post, err := s.postService.Update(c.UserContext(), service.UpdatePostInput{
		PostID:           c.Params("postId"),
		Title:            c.FormValue("title"),
		Content:          c.FormValue("content"),
		Image:            image,
		ExistingImageURL: c.FormValue("image"),
		CallerID:         userID,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"message": "Post updated!",
		"post":    post,
	})
}

// DeletePost handles DELETE /feed/post/:postId
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}
	if err := s.postService.Delete(c.UserContext(), c.Params("postId"), userID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Deleted post."})
}

// GetUserPosts handles GET /feed/users/:userId/posts
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	posts, err := s.postService.ListUserPosts(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Fetched posts successfully.",
		"posts":   posts,
	})
}
