package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"misterx/services"
)

type SubmissionHandler struct {
	submissionService *services.SubmissionService
	gameService       *services.GameService
	hub               *services.Hub
}

func NewSubmissionHandler(submissionService *services.SubmissionService, gameService *services.GameService, hub *services.Hub) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService: submissionService,
		gameService:       gameService,
		hub:               hub,
	}
}

func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	var filter services.SubmissionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	submissions, err := h.submissionService.ListSubmissions(&filter)
	if err != nil {
		respondError(c, err)
		return
	}

	facets, err := h.submissionService.FilterFacets(&filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"submissions": submissions, "facets": facets})
}

func (h *SubmissionHandler) CreateSubmission(c *gin.Context) {
	var req services.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	submission, err := h.submissionService.CreateSubmission(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, submission)
}

func (h *SubmissionHandler) GetSubmissionByID(c *gin.Context) {
	submissionID, ok := idParam(c, "id")
	if !ok {
		return
	}

	submission, err := h.submissionService.GetSubmissionByID(submissionID)
	if err != nil {
		respondError(c, err)
		return
	}

	own, others, err := h.submissionService.RelatedSubmissions(&submission.Submission)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"submission":        submission,
		"own_submissions":   own,
		"other_submissions": others,
	})
}

func (h *SubmissionHandler) UpdateSubmission(c *gin.Context) {
	submissionID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	submission, err := h.submissionService.UpdateSubmission(submissionID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

// ReviewSubmission records the decision and pushes the result and the fresh
// scoreboard to everyone watching the game.
func (h *SubmissionHandler) ReviewSubmission(c *gin.Context) {
	submissionID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req services.ReviewSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	submission, err := h.submissionService.ReviewSubmission(submissionID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastToGame(submission.GameID, "submission_reviewed", gin.H{
			"submission_id":  submission.ID,
			"task_id":        submission.TaskID,
			"group_id":       submission.GroupID,
			"accepted":       submission.Accepted,
			"granted_points": submission.GrantedPoints,
			"feedback":       submission.Feedback,
		})

		entries, err := h.gameService.Scoreboard(submission.GameID)
		if err != nil {
			log.Printf("Failed to load scoreboard for game %d: %v", submission.GameID, err)
		} else {
			h.hub.BroadcastToGame(submission.GameID, "scoreboard_update", gin.H{"scoreboard": entries})
		}
	}

	c.JSON(http.StatusOK, submission)
}

func (h *SubmissionHandler) DeleteSubmission(c *gin.Context) {
	submissionID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.submissionService.DeleteSubmission(submissionID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Submission deleted successfully"})
}
