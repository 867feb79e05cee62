package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/services"
	apperrors "ndilive/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PlayerHandler exposes the shared players. The registry only holds
// players weakly, so a player connected through the API is pinned here
// until it is deleted.
type PlayerHandler struct {
	players        *services.PlayerRegistry
	connectTimeout time.Duration
	logger         *zap.SugaredLogger

	mu     sync.Mutex
	pinned map[string]*services.Player
}

func NewPlayerHandler(players *services.PlayerRegistry, connectTimeout time.Duration, logger *zap.SugaredLogger) *PlayerHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PlayerHandler{
		players:        players,
		connectTimeout: connectTimeout,
		logger:         logger,
		pinned:         make(map[string]*services.Player),
	}
}

func (h *PlayerHandler) ListPlayers(c *gin.Context) {
	players := h.players.Players()
	stats := make([]domain.PlayerStats, 0, len(players))
	for _, p := range players {
		stats = append(stats, p.Stats())
	}
	c.JSON(http.StatusOK, gin.H{
		"players": stats,
		"count":   len(stats),
	})
}

func (h *PlayerHandler) GetPlayer(c *gin.Context) {
	name, err := sourceName(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	p := h.players.ForName(name)
	c.JSON(http.StatusOK, gin.H{"player": p.Stats()})
}

// ConnectPlayer forces receiver acquisition and keeps the player alive.
func (h *PlayerHandler) ConnectPlayer(c *gin.Context) {
	name, err := sourceName(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	timeout, err := queryDuration(c, "timeout", h.connectTimeout)
	if err != nil {
		_ = c.Error(err)
		return
	}

	ctx := c.Request.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p := h.players.ForName(name)
	if err := p.Connect(ctx); err != nil {
		h.logger.Warnw("player connect failed", "source", name, "error", err)
		_ = c.Error(toAppError(err).WithDetail("name", name))
		return
	}

	h.mu.Lock()
	h.pinned[name] = p
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"player": p.Stats()})
}

// DeletePlayer unpins and closes a player. Open subscriptions end.
func (h *PlayerHandler) DeletePlayer(c *gin.Context) {
	name, err := sourceName(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.mu.Lock()
	p, ok := h.pinned[name]
	delete(h.pinned, name)
	h.mu.Unlock()

	if !ok {
		for _, live := range h.players.Players() {
			if live.Name() == name {
				p, ok = live, true
				break
			}
		}
	}
	if !ok {
		_ = c.Error(apperrors.NewNotFoundError("player").WithDetail("name", name))
		return
	}

	p.Close()
	h.logger.Infow("player closed", "source", name)
	c.Status(http.StatusNoContent)
}

// Close unpins every player.
func (h *PlayerHandler) Close() {
	h.mu.Lock()
	h.pinned = make(map[string]*services.Player)
	h.mu.Unlock()
}
