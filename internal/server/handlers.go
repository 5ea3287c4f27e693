package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/authgate/internal/auth"
)

// handleHealthz reports liveness. The path is expected to be public.
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleService is the protected sample endpoint. It returns the verified
// claims, the resolving provider and the raw token the gate accepted.
func (s *Server) handleService(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		// The gate always runs first; reaching here without an identity
		// means the route was wrongly listed as public.
		c.JSON(http.StatusInternalServerError, gin.H{"errors": []string{"no identity in request context"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"claims":   identity.Claims,
		"provider": identity.Provider,
		"id_token": identity.RawToken,
	})
}

// handleUserInfo returns the verified claim set of the caller.
func (s *Server) handleUserInfo(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"errors": []string{"no identity in request context"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider": identity.Provider,
		"claims":   identity.Claims,
	})
}
