package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"socialfeed/internal/config"
	"socialfeed/internal/storage"
	"socialfeed/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupTestServer(t *testing.T) (*Server, *fiber.App) {
	t.Helper()
	images, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:   "test-secret-with-enough-length",
		TokenTTL:    time.Hour,
		Port:        "0",
		Env:         "test",
		FeedPerPage: 2,
		MaxUploadMB: 5,
	}
	s := NewServerWithDeps(cfg, testutil.NewSQLiteDB(t), nil, images)
	s.accountService.WithBcryptCost(bcrypt.MinCost)
	t.Cleanup(func() { _ = s.hub.Shutdown(context.Background()) })
	return s, s.App()
}

type formPart struct {
	name, value string
	file        []byte
}

func multipartRequest(t *testing.T, method, path, token string, parts ...formPart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range parts {
		if p.file != nil {
			fw, err := w.CreateFormFile(p.name, "upload.png")
			require.NoError(t, err)
			_, err = fw.Write(p.file)
			require.NoError(t, err)
			continue
		}
		require.NoError(t, w.WriteField(p.name, p.value))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func jsonRequest(method, path, token string, payload any) *http.Request {
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

// signup registers a user and returns its id and a valid token.
func signup(t *testing.T, app *fiber.App, name string) (string, string) {
	t.Helper()
	email := strings.ToLower(name) + "@example.com"

	status, body := do(t, app, jsonRequest(http.MethodPut, "/auth/signup", "", map[string]string{
		"email": email, "password": "secret1", "name": name,
	}))
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "User created!", body["message"])

	status, body = do(t, app, jsonRequest(http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": "secret1",
	}))
	require.Equal(t, http.StatusOK, status, body)
	require.NotEmpty(t, body["token"])
	return body["userId"].(string), body["token"].(string)
}

func createPost(t *testing.T, app *fiber.App, token, title string) map[string]any {
	t.Helper()
	status, body := do(t, app, multipartRequest(t, http.MethodPost, "/feed/post", token,
		formPart{name: "title", value: title},
		formPart{name: "content", value: "Great views all day"},
		formPart{name: "image", file: testutil.PNGBytes()},
	))
	require.Equal(t, http.StatusCreated, status, body)
	return body
}

func TestAuthGuard(t *testing.T) {
	_, app := setupTestServer(t)

	for _, header := range []string{"", "Bearer", "Bearer not-a-token", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/feed/posts", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		status, body := do(t, app, req)
		assert.Equal(t, http.StatusUnauthorized, status, header)
		assert.Equal(t, "Not authenticated.", body["message"], header)
	}
}

func TestFeedScenario(t *testing.T) {
	_, app := setupTestServer(t)
	u1, tok1 := signup(t, app, "Uno")
	_, tok2 := signup(t, app, "Dos")

	created := createPost(t, app, tok1, "Trip report")
	assert.Equal(t, "Post created successfully!", created["message"])
	post := created["post"].(map[string]any)
	postID := post["id"].(string)
	assert.Equal(t, u1, post["creatorId"])
	assert.Equal(t, map[string]any{"id": u1, "name": "Uno"}, created["creator"])
	imageURL := post["imageUrl"].(string)

	status, body := do(t, app, jsonRequest(http.MethodGet, "/feed/posts?page=1", tok2, nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Fetched posts successfully.", body["message"])
	assert.EqualValues(t, 1, body["totalItems"])
	listed := body["posts"].([]any)[0].(map[string]any)
	assert.Equal(t, "Uno", listed["creator"].(map[string]any)["name"])
	assert.NotContains(t, listed["creator"], "email")

	status, body = do(t, app, multipartRequest(t, http.MethodPut, "/feed/post/"+postID, tok2,
		formPart{name: "title", value: "Stolen title"},
		formPart{name: "content", value: "Great views all day"},
		formPart{name: "image", value: imageURL},
	))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Not authorized!", body["message"])

	status, _ = do(t, app, jsonRequest(http.MethodDelete, "/feed/post/"+postID, tok2, nil))
	assert.Equal(t, http.StatusForbidden, status)

	status, body = do(t, app, jsonRequest(http.MethodGet, "/feed/post/"+postID, tok2, nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Post fetched.", body["message"])
	assert.Equal(t, "Trip report", body["post"].(map[string]any)["title"])

	status, body = do(t, app, multipartRequest(t, http.MethodPut, "/feed/post/"+postID, tok1,
		formPart{name: "title", value: "Trip report, day two"},
		formPart{name: "content", value: "Even better views"},
		formPart{name: "image", value: imageURL},
	))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Post updated!", body["message"])
	assert.Equal(t, imageURL, body["post"].(map[string]any)["imageUrl"])

	status, body = do(t, app, jsonRequest(http.MethodDelete, "/feed/post/"+postID, tok1, nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Deleted post.", body["message"])

	status, body = do(t, app, jsonRequest(http.MethodGet, "/feed/post/"+postID, tok1, nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Could not find post.", body["message"])

	status, body = do(t, app, jsonRequest(http.MethodGet, "/feed/users/"+u1+"/posts", tok2, nil))
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["posts"])
}

func TestCreatePostRejections(t *testing.T) {
	_, app := setupTestServer(t)
	_, tok := signup(t, app, "Alice")

	status, body := do(t, app, multipartRequest(t, http.MethodPost, "/feed/post", tok,
		formPart{name: "title", value: "Trip"},
		formPart{name: "content", value: "Great views all day"},
		formPart{name: "image", file: testutil.PNGBytes()},
	))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "Entered data is incorrect.", body["message"])
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "title", data[0].(map[string]any)["field"])

	status, body = do(t, app, multipartRequest(t, http.MethodPost, "/feed/post", tok,
		formPart{name: "title", value: "A fine title"},
		formPart{name: "content", value: "Great views all day"},
	))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "No image provided.", body["message"])

	status, body = do(t, app, multipartRequest(t, http.MethodPut, "/feed/post/whatever", tok,
		formPart{name: "title", value: "A fine title"},
		formPart{name: "content", value: "Great views all day"},
	))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "No file picked.", body["message"])
}

func TestUpdatePostRejectsForeignImage(t *testing.T) {
	_, app := setupTestServer(t)
	_, aliceTok := signup(t, app, "Alice")
	_, bobTok := signup(t, app, "Bob")

	alicePost := createPost(t, app, aliceTok, "Alice's trip")["post"].(map[string]any)
	bobPost := createPost(t, app, bobTok, "Bob's trip")["post"].(map[string]any)

	status, body := do(t, app, multipartRequest(t, http.MethodPut, "/feed/post/"+bobPost["id"].(string), bobTok,
		formPart{name: "title", value: "Bob's trip, edited"},
		formPart{name: "content", value: "Great views all day"},
		formPart{name: "image", value: alicePost["imageUrl"].(string)},
	))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "image", data[0].(map[string]any)["field"])

	status, body = do(t, app, jsonRequest(http.MethodGet, "/feed/post/"+bobPost["id"].(string), bobTok, nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, bobPost["imageUrl"], body["post"].(map[string]any)["imageUrl"])
}

func TestGetPostsPagination(t *testing.T) {
	_, app := setupTestServer(t)
	_, tok := signup(t, app, "Alice")
	for _, title := range []string{"First title", "Second title", "Third title"} {
		createPost(t, app, tok, title)
	}

	count := func(query string) (int, float64) {
		status, body := do(t, app, jsonRequest(http.MethodGet, "/feed/posts"+query, tok, nil))
		require.Equal(t, http.StatusOK, status)
		return len(body["posts"].([]any)), body["totalItems"].(float64)
	}

	n, total := count("")
	assert.Equal(t, 2, n)
	assert.EqualValues(t, 3, total)

	n, _ = count("?page=2")
	assert.Equal(t, 1, n)

	n, total = count("?page=50")
	assert.Equal(t, 0, n)
	assert.EqualValues(t, 3, total)

	for _, q := range []string{"?page=abc", "?page=0", "?page=-3"} {
		n, _ = count(q)
		assert.Equal(t, 2, n, q)
	}
}

func TestImagesAreServed(t *testing.T) {
	_, app := setupTestServer(t)
	_, tok := signup(t, app, "Alice")
	post := createPost(t, app, tok, "Picture post")["post"].(map[string]any)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, post["imageUrl"].(string), nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, testutil.PNGBytes(), raw)
}

func TestAccountStatus(t *testing.T) {
	_, app := setupTestServer(t)
	_, tok := signup(t, app, "Alice")

	status, body := do(t, app, jsonRequest(http.MethodGet, "/auth/status", tok, nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "I am new!", body["status"])

	status, body = do(t, app, jsonRequest(http.MethodPatch, "/auth/status", tok, map[string]string{"status": "Travelling"}))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "User updated.", body["message"])

	_, body = do(t, app, jsonRequest(http.MethodGet, "/auth/status", tok, nil))
	assert.Equal(t, "Travelling", body["status"])

	status, body = do(t, app, jsonRequest(http.MethodPut, "/auth/signup", "", map[string]string{
		"email": "alice@example.com", "password": "secret1", "name": "Alice",
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "E-Mail address already exists!", body["message"])

	status, _ = do(t, app, jsonRequest(http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-one",
	}))
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHealthChecks(t *testing.T) {
	_, app := setupTestServer(t)

	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "up", body["status"])

	status, body = do(t, app, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, status)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "unavailable", checks["redis"])
}

func TestSocketRequiresUpgrade(t *testing.T) {
	s, app := setupTestServer(t)
	_, tok := signup(t, app, "Alice")

	status, _ := do(t, app, jsonRequest(http.MethodGet, "/socket", tok, nil))
	assert.Equal(t, http.StatusUpgradeRequired, status)

	status, _ = do(t, app, httptest.NewRequest(http.MethodGet, "/socket", nil))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Zero(t, s.hub.ConnectionCount())
}

func TestSocketReceivesPostEvents(t *testing.T) {
	s, app := setupTestServer(t)
	_, tokA := signup(t, app, "Alice")
	_, tokB := signup(t, app, "Bob")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	url := "ws://" + ln.Addr().String() + "/socket?token=" + tokB
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	read := func() map[string]any {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var env map[string]any
		require.NoError(t, json.Unmarshal(msg, &env))
		return env
	}

	post := createPost(t, app, tokA, "Live update")["post"].(map[string]any)
	env := read()
	assert.Equal(t, "posts", env["type"])
	payload := env["payload"].(map[string]any)
	assert.Equal(t, "create", payload["action"])
	sent := payload["post"].(map[string]any)
	assert.Equal(t, post["id"], sent["id"])
	assert.Equal(t, "Alice", sent["creator"].(map[string]any)["name"])

	status, _ := do(t, app, jsonRequest(http.MethodDelete, "/feed/post/"+post["id"].(string), tokA, nil))
	require.Equal(t, http.StatusOK, status)
	env = read()
	payload = env["payload"].(map[string]any)
	assert.Equal(t, "delete", payload["action"])
	assert.Equal(t, post["id"], payload["post"])

	_, resp, err = websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/socket?token=bogus", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	require.NoError(t, s.hub.Shutdown(context.Background()))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
