package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/voxelgate/internal/events"
	"github.com/energizer-project/voxelgate/internal/util"
)

// eventStreamBuffer is how many events a slow websocket client may lag
// behind before events are dropped for it.
const eventStreamBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin is enforced by CORS and the token
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handlePlayers lists every session, joined or not.
func (s *Server) handlePlayers(c *gin.Context) {
	sessions := s.game.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"players": sessions,
		"total":   len(sessions),
	})
}

// handlePlayer returns one player by UUID.
func (s *Server) handlePlayer(c *gin.Context) {
	id, ok := parseUUID(c)
	if !ok {
		return
	}
	info, found := s.game.Session(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not online", "uuid": id.String()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// handleAllocator reports entity ID usage and the free intervals.
func (s *Server) handleAllocator(c *gin.Context) {
	alloc := s.game.Allocator()
	intervals := alloc.Intervals()

	free := make([][2]int32, 0, len(intervals))
	for _, iv := range intervals {
		free = append(free, [2]int32{iv.Start, iv.End})
	}

	c.JSON(http.StatusOK, gin.H{
		"in_use":      alloc.InUse(),
		"free":        alloc.FreeCount(),
		"fragments":   alloc.Fragments(),
		"free_ranges": free,
	})
}

// handleSystem returns host CPU and memory usage and server stats.
func (s *Server) handleSystem(c *gin.Context) {
	resp := gin.H{
		"system": util.GetSystemInfo(),
		"server": s.game.Stats(),
	}

	if cpu, err := util.GetCPUUsage(); err == nil {
		resp["cpu_percent"] = cpu
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		resp["memory"] = mem
	}
	if proc, err := util.GetProcessUsage(); err == nil {
		resp["process"] = proc
	}
	if s.profiles != nil {
		if stats, err := s.profiles.CacheStats(c.Request.Context()); err == nil {
			resp["profile_cache"] = stats
		}
	}

	c.JSON(http.StatusOK, resp)
}

// handleEvents upgrades to a websocket and streams every bus event as JSON
// until the client disconnects.
func (s *Server) handleEvents(c *gin.Context) {
	if s.eventBus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event bus unavailable"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	name := "ws-" + uuid.NewString()
	queue := make(chan events.Event, eventStreamBuffer)
	s.eventBus.SubscribeAll(name, func(ctx context.Context, e events.Event) error {
		select {
		case queue <- e:
		default:
		}
		return nil
	})
	defer s.eventBus.UnsubscribeAll(name)

	log.Info().Str("client_ip", c.ClientIP()).Msg("event stream opened")

	// The read loop only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			log.Info().Str("client_ip", c.ClientIP()).Msg("event stream closed")
			return
		case <-s.eventBus.StopCh():
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case e := <-queue:
			ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := ws.WriteJSON(e); err != nil {
				log.Debug().Err(err).Msg("event stream write failed")
				return
			}
		}
	}
}

// parseUUID reads the :uuid path parameter, writing a 400 on failure.
func parseUUID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return uuid.Nil, false
	}
	return id, true
}
