package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"misterx/services"
)

type PlayerHandler struct {
	playerService *services.PlayerService
}

func NewPlayerHandler(playerService *services.PlayerService) *PlayerHandler {
	return &PlayerHandler{
		playerService: playerService,
	}
}

func (h *PlayerHandler) ListPlayers(c *gin.Context) {
	var filter services.PlayerFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	players, err := h.playerService.ListPlayers(&filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, players)
}

func (h *PlayerHandler) CreatePlayer(c *gin.Context) {
	var req services.CreatePlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	player, err := h.playerService.CreatePlayer(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, player)
}

func (h *PlayerHandler) GetPlayerByID(c *gin.Context) {
	playerID, ok := idParam(c, "id")
	if !ok {
		return
	}

	player, err := h.playerService.GetPlayerByID(playerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, player)
}

func (h *PlayerHandler) UpdatePlayer(c *gin.Context) {
	playerID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdatePlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	player, err := h.playerService.UpdatePlayer(playerID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, player)
}

func (h *PlayerHandler) DeletePlayer(c *gin.Context) {
	playerID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.playerService.DeletePlayer(playerID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Player deleted successfully"})
}
