package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/listingboard/internal/models"
	"github.com/zfogg/listingboard/internal/util"
)

// GetStatistics returns the interaction statistics of a listing
// GET /api/v1/listings/:kind/:owner_id/:listing_id/statistics
func (h *Handlers) GetStatistics(c *gin.Context) {
	ref, ok := listingRef(c)
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	snap, err := h.ledger.Snapshot(ctx, ref)
	if err != nil {
		util.RespondWithError(c, err)
		return
	}

	c.Header("ETag", etag(snap.Version))
	c.JSON(http.StatusOK, snap.Statistics)
}

// ToggleRecommend flips the caller's recommendation of a listing
// POST /api/v1/listings/:kind/:owner_id/:listing_id/recommend
func (h *Handlers) ToggleRecommend(c *gin.Context) {
	h.toggle(c, models.SignalRecommend, "recommended")
}

// ToggleFavorite flips the caller's favorite of a listing
// POST /api/v1/listings/:kind/:owner_id/:listing_id/favorite
func (h *Handlers) ToggleFavorite(c *gin.Context) {
	h.toggle(c, models.SignalFavorite, "favorited")
}

func (h *Handlers) toggle(c *gin.Context, signal models.Signal, field string) {
	ref, ok := listingRef(c)
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	res, err := h.ledger.Toggle(ctx, signal, ref, util.ActorFromContext(c))
	if err != nil {
		util.RespondWithError(c, err)
		return
	}

	c.Header("ETag", etag(res.Snapshot.Version))
	c.JSON(http.StatusOK, gin.H{
		field:        res.Active,
		"statistics": res.Snapshot.Statistics,
	})
}

// RecordClick records the caller's first click on a listing. Anonymous
// clicks are accepted and ignored.
// POST /api/v1/listings/:kind/:owner_id/:listing_id/click
func (h *Handlers) RecordClick(c *gin.Context) {
	ref, ok := listingRef(c)
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	recorded, err := h.ledger.RecordClick(ctx, ref, util.ActorFromContext(c))
	if err != nil {
		util.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": recorded})
}

// CheckRecommended reports whether the caller recommends a listing
// GET /api/v1/listings/:kind/:owner_id/:listing_id/recommended
func (h *Handlers) CheckRecommended(c *gin.Context) {
	ref, ok := listingRef(c)
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	active, err := h.ledger.CheckRecommended(ctx, ref, util.ActorFromContext(c))
	if err != nil {
		util.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommended": active})
}

// CheckFavorited reports whether a listing is one of the caller's favorites
// GET /api/v1/listings/:kind/:owner_id/:listing_id/favorited
func (h *Handlers) CheckFavorited(c *gin.Context) {
	ref, ok := listingRef(c)
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	active, err := h.ledger.CheckFavorited(ctx, ref, util.ActorFromContext(c))
	if err != nil {
		util.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorited": active})
}
