package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthenticated", NewUnauthenticatedError(""), 401},
		{"validation", NewValidationFailedError("bad", nil), 422},
		{"missing image", NewMissingImageError(""), 422},
		{"not found", NewNotFoundError("post"), 404},
		{"forbidden", NewForbiddenError(), 403},
		{"store unavailable", NewStoreUnavailableError(errors.New("dial")), 500},
		{"store error", NewStoreError(errors.New("boom")), 500},
		{"rate limited", NewRateLimitedError(), 429},
		{"wrapped", fmt.Errorf("ctx: %w", NewForbiddenError()), 403},
		{"fiber error", fiber.NewError(fiber.StatusRequestEntityTooLarge, "too big"), 413},
		{"plain", errors.New("plain"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestAppErrorMessages(t *testing.T) {
	assert.Equal(t, "Not authenticated.", NewUnauthenticatedError("").Message)
	assert.Equal(t, "No image provided.", NewMissingImageError("").Message)
	assert.Equal(t, "Could not find post.", NewNotFoundError("post").Message)
	assert.Equal(t, "Not authorized!", NewForbiddenError().Message)

	inner := errors.New("conn refused")
	err := NewStoreUnavailableError(inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "conn refused")
	assert.True(t, HasCode(err, CodeStoreUnavailable))
	assert.False(t, HasCode(inner, CodeStoreUnavailable))
}

func TestRespondWithError(t *testing.T) {
	app := fiber.New()
	app.Get("/validation", func(c *fiber.Ctx) error {
		return RespondWithError(c, NewValidationFailedError("Entered data is incorrect.", []FieldError{
			{Field: "title", Message: "must be at least 5 characters"},
		}))
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		return RespondWithError(c, errors.New("something broke"))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/validation", nil))
	require.NoError(t, err)
	assert.Equal(t, 422, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var parsed ErrorResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "Entered data is incorrect.", parsed.Message)
	assert.Equal(t, CodeValidationFailed, parsed.Code)
	require.Len(t, parsed.Data, 1)
	assert.Equal(t, "title", parsed.Data[0].Field)

	resp, err = app.Test(httptest.NewRequest("GET", "/plain", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "something broke")
}

func TestUserPostIDs(t *testing.T) {
	u := &User{}
	u.AddPost("a")
	u.AddPost("b")
	u.AddPost("a")
	assert.Equal(t, []string{"a", "b"}, u.PostIDs)

	assert.True(t, u.RemovePost("a"))
	assert.False(t, u.RemovePost("missing"))
	assert.Equal(t, []string{"b"}, u.PostIDs)
}

func TestBeforeCreateDefaults(t *testing.T) {
	u := &User{}
	require.NoError(t, u.BeforeCreate(nil))
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, DefaultStatus, u.Status)

	p := &Post{ID: "fixed"}
	require.NoError(t, p.BeforeCreate(nil))
	assert.Equal(t, "fixed", p.ID)
}

func TestPostJSONHidesCreatorAccount(t *testing.T) {
	p := Post{
		ID:        "p1",
		Title:     "hello world",
		CreatorID: "u1",
		Creator:   &User{ID: "u1", Name: "Ann", Email: "ann@example.com", PasswordHash: "hash"},
	}
	b, err := json.Marshal(p)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &parsed))
	assert.Equal(t, "p1", parsed["id"])
	assert.Equal(t, "u1", parsed["creatorId"])
	assert.Equal(t, map[string]interface{}{"id": "u1", "name": "Ann"}, parsed["creator"])
	assert.NotContains(t, string(b), "ann@example.com")
	assert.NotContains(t, string(b), "hash")

	b, err = json.Marshal(&Post{ID: "p2"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"creator"`)
}
