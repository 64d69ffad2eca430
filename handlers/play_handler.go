package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"misterx/models"
	"misterx/services"
)

// PlayHandler serves the player-facing surface: the active game with its
// task list and the player's own submissions. Task solutions are never
// included in these responses.
type PlayHandler struct {
	gameService       *services.GameService
	submissionService *services.SubmissionService
}

func NewPlayHandler(gameService *services.GameService, submissionService *services.SubmissionService) *PlayHandler {
	return &PlayHandler{
		gameService:       gameService,
		submissionService: submissionService,
	}
}

type playTaskView struct {
	TaskID     uint   `json:"task_id"`
	TaskNumber *int   `json:"task_number"`
	Text       string `json:"text"`
	Points     uint   `json:"points"`
	Completed  bool   `json:"completed"`
	Submitted  bool   `json:"submitted"`
}

// GetActiveGame returns the running game scoped to the player's group. A
// missing active game is a regular state for players, not an error, so the
// response carries an explicit flag instead of a conflict status.
func (h *PlayHandler) GetActiveGame(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	game, group, err := h.gameService.ActiveGameForPlayer(userID)
	if err == models.ErrNoActiveGame {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	tasks := make([]playTaskView, 0, len(game.Tasks))
	for _, ot := range game.Tasks {
		view := playTaskView{
			TaskID:     ot.TaskID,
			TaskNumber: ot.TaskNumber,
			Text:       ot.Task.Text,
			Points:     ot.Task.Points,
		}

		view.Completed, err = h.submissionService.TaskCompletedByGroup(game.ID, ot.TaskID, group.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		view.Submitted, err = h.submissionService.TaskSubmittedByGroup(game.ID, ot.TaskID, group.ID)
		if err != nil {
			respondError(c, err)
			return
		}

		tasks = append(tasks, view)
	}

	c.JSON(http.StatusOK, gin.H{
		"active": true,
		"game": gin.H{
			"id":   game.ID,
			"name": game.Name,
			"date": game.Date,
		},
		"group": gin.H{
			"id":   group.ID,
			"name": group.Name,
		},
		"tasks": tasks,
	})
}

// CreateSubmission accepts a multipart form with task_id, an optional
// explanation and any number of proof files.
func (h *PlayHandler) CreateSubmission(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	game, group, err := h.gameService.ActiveGameForPlayer(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	var form struct {
		TaskID      uint   `form:"task_id" binding:"required"`
		Explanation string `form:"explanation"`
	}
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	multipartForm, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	proofs := multipartForm.File["proof"]

	submission, err := h.submissionService.CreatePlayerSubmission(game, group, userID, form.TaskID, form.Explanation, proofs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, submission)
}

// ListSubmissions returns the submissions of the player's own group in the
// active game.
func (h *PlayHandler) ListSubmissions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	game, group, err := h.gameService.ActiveGameForPlayer(userID)
	if err == models.ErrNoActiveGame {
		c.JSON(http.StatusOK, gin.H{"active": false, "submissions": []struct{}{}})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	filter := services.SubmissionFilter{GameID: &game.ID, GroupID: &group.ID}
	submissions, err := h.submissionService.ListSubmissions(&filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"active": true, "submissions": submissions})
}

// GetSubmissionByID returns one submission, but only if it belongs to the
// player's own group.
func (h *PlayHandler) GetSubmissionByID(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	submissionID, ok := idParam(c, "id")
	if !ok {
		return
	}

	_, group, err := h.gameService.ActiveGameForPlayer(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	submission, err := h.submissionService.GetSubmissionByID(submissionID)
	if err != nil {
		respondError(c, err)
		return
	}

	if submission.GroupID != group.ID {
		respondError(c, models.ErrForbidden)
		return
	}

	c.JSON(http.StatusOK, submission)
}
