package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"socialfeed/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := observability.Tracer
	observability.Tracer = tp.Tracer("test")
	t.Cleanup(func() {
		observability.Tracer = prev
		_ = tp.Shutdown(t.Context())
	})
	return recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestTracingMiddleware(t *testing.T) {
	recorder := recordSpans(t)

	app := fiber.New()
	app.Use(TracingMiddleware())
	app.Get("/feed/post/:postId", func(c *fiber.Ctx) error {
		c.Locals("userID", "u-42")
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/feed/posts", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	t.Run("post route", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/feed/post/abc123", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

		spans := recorder.Ended()
		require.NotEmpty(t, spans)
		span := spans[len(spans)-1]
		assert.Equal(t, "GET /feed/post/:postId", span.Name())

		attrs := spanAttrs(span)
		assert.Equal(t, "abc123", attrs["post.id"].AsString())
		assert.Equal(t, "/feed/post/:postId", attrs["http.route"].AsString())
		assert.Equal(t, "u-42", attrs["user.id"].AsString())
		assert.Equal(t, int64(http.StatusOK), attrs["http.status_code"].AsInt64())
	})

	t.Run("feed page", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/feed/posts?page=3", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		spans := recorder.Ended()
		span := spans[len(spans)-1]
		assert.Equal(t, "GET /feed/posts", span.Name())

		attrs := spanAttrs(span)
		assert.Equal(t, "3", attrs["feed.page"].AsString())
		_, hasPost := attrs["post.id"]
		assert.False(t, hasPost)
		_, hasUser := attrs["user.id"]
		assert.False(t, hasUser)
	})

	t.Run("unmatched path keeps raw name", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nowhere", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		spans := recorder.Ended()
		span := spans[len(spans)-1]
		assert.Equal(t, "GET /nowhere", span.Name())
		assert.Equal(t, int64(http.StatusNotFound), spanAttrs(span)["http.status_code"].AsInt64())
	})
}
