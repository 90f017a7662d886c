package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleGetConfig returns the current configuration with secrets masked.
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Redacted())
}
