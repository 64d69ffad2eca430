package routes

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"misterx/handlers"
	"misterx/middleware"
	"misterx/models"
	"misterx/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	gameHandler *handlers.GameHandler,
	taskHandler *handlers.TaskHandler,
	groupHandler *handlers.GroupHandler,
	playerHandler *handlers.PlayerHandler,
	submissionHandler *handlers.SubmissionHandler,
	playHandler *handlers.PlayHandler,
	mediaHandler *handlers.MediaHandler,
	hub *services.Hub,
	jwtSecret string,
) {
	// API routes
	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
		}

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(jwtSecret))
		{
			// User profile
			protected.GET("/auth/profile", authHandler.GetProfile)

			// Staff-only management routes
			staff := protected.Group("/")
			staff.Use(middleware.RequireRole(models.RoleAdmin, models.RoleReviewer))
			{
				games := staff.Group("/games")
				{
					games.GET("", gameHandler.ListGames)
					games.POST("", gameHandler.CreateGame)
					games.GET("/:id", gameHandler.GetGameByID)
					games.PUT("/:id", gameHandler.UpdateGame)
					games.DELETE("/:id", gameHandler.DeleteGame)
					games.PUT("/:id/tasks/order", gameHandler.ReorderTasks)
					games.GET("/:id/scoreboard", gameHandler.GetScoreboard)
				}

				tasks := staff.Group("/tasks")
				{
					tasks.GET("", taskHandler.ListTasks)
					tasks.POST("", taskHandler.CreateTask)
					tasks.GET("/:id", taskHandler.GetTaskByID)
					tasks.PUT("/:id", taskHandler.UpdateTask)
					tasks.DELETE("/:id", taskHandler.DeleteTask)
				}

				groups := staff.Group("/groups")
				{
					groups.GET("", groupHandler.ListGroups)
					groups.POST("", groupHandler.CreateGroup)
					groups.GET("/:id", groupHandler.GetGroupByID)
					groups.PUT("/:id", groupHandler.UpdateGroup)
					groups.DELETE("/:id", groupHandler.DeleteGroup)
				}

				players := staff.Group("/players")
				{
					players.GET("", playerHandler.ListPlayers)
					players.POST("", playerHandler.CreatePlayer)
					players.GET("/:id", playerHandler.GetPlayerByID)
					players.PUT("/:id", playerHandler.UpdatePlayer)
					players.DELETE("/:id", playerHandler.DeletePlayer)
				}

				submissions := staff.Group("/submissions")
				{
					submissions.GET("", submissionHandler.ListSubmissions)
					submissions.POST("", submissionHandler.CreateSubmission)
					submissions.GET("/:id", submissionHandler.GetSubmissionByID)
					submissions.PUT("/:id", submissionHandler.UpdateSubmission)
					submissions.DELETE("/:id", submissionHandler.DeleteSubmission)
					submissions.POST("/:id/review", submissionHandler.ReviewSubmission)
				}
			}

			// Player-facing routes
			play := protected.Group("/play")
			play.Use(middleware.RequireRole(models.RolePlayer))
			{
				play.GET("/game", playHandler.GetActiveGame)
				play.GET("/submissions", playHandler.ListSubmissions)
				play.POST("/submissions", playHandler.CreateSubmission)
				play.GET("/submissions/:id", playHandler.GetSubmissionByID)
			}
		}
	}

	// Proof files require authentication like the rest of the API
	media := router.Group("/media")
	media.Use(middleware.AuthMiddleware(jwtSecret))
	{
		media.GET("/*filepath", mediaHandler.ServeProof)
	}

	// WebSocket endpoint for live review and scoreboard updates. Browsers
	// cannot set headers on websocket requests, so the token travels as a
	// query parameter.
	router.GET("/ws/:gameID", func(c *gin.Context) {
		gameID, err := strconv.ParseUint(c.Param("gameID"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid game ID"})
			return
		}

		userID, err := authenticateToken(c.Query("token"), jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for game %d, user %d: %v", gameID, userID, err)
			return
		}

		hub.RegisterClient(conn, uint(gameID), userID)
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func authenticateToken(tokenString, jwtSecret string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, jwt.ErrTokenUnverifiable
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, jwt.ErrTokenInvalidClaims
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, jwt.ErrTokenInvalidClaims
	}
	return uint(userID), nil
}
