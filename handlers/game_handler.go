package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"misterx/services"
)

type GameHandler struct {
	gameService *services.GameService
	hub         *services.Hub
}

func NewGameHandler(gameService *services.GameService, hub *services.Hub) *GameHandler {
	return &GameHandler{
		gameService: gameService,
		hub:         hub,
	}
}

func (h *GameHandler) ListGames(c *gin.Context) {
	var filter services.GameFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	games, err := h.gameService.ListGames(&filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, games)
}

func (h *GameHandler) CreateGame(c *gin.Context) {
	var req services.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	game, err := h.gameService.CreateGame(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, game)
}

func (h *GameHandler) GetGameByID(c *gin.Context) {
	gameID, ok := idParam(c, "id")
	if !ok {
		return
	}

	game, err := h.gameService.GetGameByID(gameID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, game)
}

func (h *GameHandler) UpdateGame(c *gin.Context) {
	gameID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	game, err := h.gameService.UpdateGame(gameID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, game)
}

func (h *GameHandler) DeleteGame(c *gin.Context) {
	gameID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.gameService.DeleteGame(gameID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Game deleted successfully"})
}

type reorderTasksRequest struct {
	TaskIDs []uint `json:"task_ids" binding:"required"`
}

func (h *GameHandler) ReorderTasks(c *gin.Context) {
	gameID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req reorderTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.gameService.ReorderTasks(gameID, req.TaskIDs); err != nil {
		respondError(c, err)
		return
	}

	game, err := h.gameService.GetGameByID(gameID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, game)
}

func (h *GameHandler) GetScoreboard(c *gin.Context) {
	gameID, ok := idParam(c, "id")
	if !ok {
		return
	}

	entries, err := h.gameService.Scoreboard(gameID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"scoreboard": entries})
}
