package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/voxelgate/internal/protocol"
	"github.com/energizer-project/voxelgate/internal/telemetry"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "voxelgate",
		"version": telemetry.AppVersion,
	})
}

// handleStatus returns the server list document a client sees on ping.
func (s *Server) handleStatus(c *gin.Context) {
	doc, err := s.game.StatusDocument()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
}

// handleVersion returns the application and protocol versions.
func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":             "Voxelgate",
		"version":          telemetry.AppVersion,
		"game_version":     protocol.VersionName,
		"protocol_version": protocol.ProtocolVersion,
	})
}
