package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gamevault/backend/internal/api/middleware"
	"github.com/gamevault/backend/internal/entitlement"
	"github.com/gamevault/backend/internal/store"
)

// PlayGame gates access to a game. Entitlement is re-evaluated here, at the
// point of access, never cached from the checkout-page check: a purchase may
// have completed in between.
func PlayGame(games *store.GameStore, resolver *entitlement.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		game, err := games.FindBySlug(c.Request.Context(), c.Param("slug"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
				return
			}
			log.Printf("[GAME] Lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load game"})
			return
		}

		user := middleware.CurrentUser(c)
		allowed, err := resolver.CanAccess(c.Request.Context(), user, game)
		if err != nil {
			log.Printf("[GAME] Entitlement check failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load game"})
			return
		}

		if !allowed {
			if user == nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "You must log in to play this game."})
				return
			}
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "You must purchase this game to play it."})
			return
		}

		c.JSON(http.StatusOK, gin.H{"game": game})
	}
}
