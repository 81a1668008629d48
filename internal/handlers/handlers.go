package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/listingboard/internal/ledger"
	"github.com/zfogg/listingboard/internal/models"
	"github.com/zfogg/listingboard/internal/util"
)

// Handlers contains the HTTP handlers for the listing interaction API
type Handlers struct {
	ledger  *ledger.Ledger
	timeout time.Duration
	checks  map[string]HealthCheck
}

// NewHandlers creates a new handlers instance. timeout bounds every ledger
// call made on behalf of a request; zero means no extra bound.
func NewHandlers(l *ledger.Ledger, timeout time.Duration) *Handlers {
	return &Handlers{
		ledger:  l,
		timeout: timeout,
		checks:  make(map[string]HealthCheck),
	}
}

// RegisterRoutes mounts the listing routes under api. identify sets the actor
// when a token is present; limit guards the mutating routes.
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup, identify gin.HandlerFunc, limit gin.HandlerFunc) {
	listings := api.Group("/listings/:kind/:owner_id/:listing_id")
	listings.Use(identify)
	{
		listings.GET("/statistics", h.GetStatistics)
		listings.GET("/recommended", h.CheckRecommended)
		listings.GET("/favorited", h.CheckFavorited)

		listings.POST("/recommend", limit, h.ToggleRecommend)
		listings.POST("/favorite", limit, h.ToggleFavorite)
		listings.POST("/click", limit, h.RecordClick)
	}
}

// listingRef reads the listing reference from the route, responding 400 when it is malformed
func listingRef(c *gin.Context) (models.ListingRef, bool) {
	ref, err := models.NewListingRef(c.Param("kind"), c.Param("owner_id"), c.Param("listing_id"))
	if err != nil {
		util.RespondWithError(c, err)
		return models.ListingRef{}, false
	}
	return ref, true
}

// requestContext derives the context for ledger calls of one request
func (h *Handlers) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.timeout)
}
