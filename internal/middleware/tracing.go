package middleware

import (
	"fmt"

	"socialfeed/internal/models"
	"socialfeed/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Route parameters copied onto request spans.
var spanParams = map[string]string{
	"postId": "post.id",
	"userId": "owner.id",
}

// TracingMiddleware opens a server span per request. The span is renamed to
// the matched route template once routing is done, so /feed/post/:postId
// aggregates across posts while the concrete id is kept as post.id.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), propagation.HeaderCarrier(c.GetReqHeaders()))

		ctx, span := observability.Tracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.path", c.Path()),
				attribute.String("http.ip", c.IP()),
				attribute.String("http.user_agent", c.Get(fiber.HeaderUserAgent)),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		c.Locals("traceID", traceID)
		if requestID := c.Locals("requestid"); requestID != nil {
			span.SetAttributes(attribute.String("request.id", fmt.Sprintf("%v", requestID)))
		}
		c.Set("X-Trace-ID", traceID)
		c.SetUserContext(ctx)

		err := c.Next()

		if route := c.Route(); route != nil && route.Path != "" && route.Path != "/" {
			span.SetName(c.Method() + " " + route.Path)
			span.SetAttributes(attribute.String("http.route", route.Path))
		}
		span.SetAttributes(feedAttributes(c)...)
		status := c.Response().StatusCode()
		if err != nil {
			// The app error handler has not written the response yet.
			status = models.StatusOf(err)
			span.RecordError(err)
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		return err
	}
}

// feedAttributes describes which post, owner and page the request touched.
func feedAttributes(c *fiber.Ctx) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for param, key := range spanParams {
		if v := c.Params(param); v != "" {
			attrs = append(attrs, attribute.String(key, v))
		}
	}
	if page := c.Query("page"); page != "" {
		attrs = append(attrs, attribute.String("feed.page", page))
	}
	if userID, ok := CallerID(c); ok {
		attrs = append(attrs, attribute.String("user.id", userID))
	}
	return attrs
}
