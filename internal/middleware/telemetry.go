package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/zfogg/listingboard/internal/util"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware starts a server span with otelgin and tags it with the
// actor, the request id and the listing being addressed.
func TracingMiddleware(serviceName string) gin.HandlersChain {
	return gin.HandlersChain{otelgin.Middleware(serviceName), annotateSpan}
}

// annotateSpan runs inside the otelgin span; tags are added once the rest of
// the chain has identified the actor.
func annotateSpan(c *gin.Context) {
	c.Next()

	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}

	if actor := util.ActorFromContext(c); actor != "" {
		span.SetAttributes(attribute.String("user.id", actor))
	}
	if requestID := c.GetString("request_id"); requestID != "" {
		span.SetAttributes(attribute.String("request.id", requestID))
	}
	if kind := c.Param("kind"); kind != "" {
		span.SetAttributes(
			attribute.String("listing.kind", kind),
			attribute.String("listing.owner_id", c.Param("owner_id")),
			attribute.String("listing.id", c.Param("listing_id")),
		)
	}

	for _, ginErr := range c.Errors {
		if ginErr.Err != nil {
			span.RecordError(ginErr.Err)
			span.SetStatus(codes.Error, ginErr.Error())
		}
	}
}
