package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/voxelgate/internal/protocol"
	"github.com/energizer-project/voxelgate/internal/server"
)

// defaultKickReason is used when the request names no reason.
const defaultKickReason = "Kicked by an operator"

// handleKick disconnects a player by UUID.
func (s *Server) handleKick(c *gin.Context) {
	id, ok := parseUUID(c)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	// The body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if body.Reason == "" {
		body.Reason = defaultKickReason
	}

	if err := s.game.Kick(c.Request.Context(), id, body.Reason); err != nil {
		if errors.Is(err, server.ErrPlayerOffline) {
			c.JSON(http.StatusNotFound, gin.H{"error": "player not online", "uuid": id.String()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Info().Str("uuid", id.String()).Str("reason", body.Reason).Msg("API: player kicked")

	c.JSON(http.StatusOK, gin.H{
		"status": "kicked",
		"uuid":   id.String(),
		"reason": body.Reason,
	})
}

// handleBroadcast sends a system message to every player.
func (s *Server) handleBroadcast(c *gin.Context) {
	var body struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	sent := s.game.Broadcast(c.Request.Context(), protocol.Text{Text: body.Message})

	c.JSON(http.StatusOK, gin.H{
		"status":     "sent",
		"message":    body.Message,
		"recipients": sent,
	})
}

// handleClearProfileCache drops every cached online-mode profile.
func (s *Server) handleClearProfileCache(c *gin.Context) {
	if s.profiles == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "online mode is disabled"})
		return
	}

	if err := s.profiles.ClearCache(c.Request.Context()); err != nil {
		log.Error().Err(err).Msg("API: failed to clear profile cache")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Info().Msg("API: profile cache cleared")
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
