package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the dashboard and export endpoints under api
func RegisterRoutes(api *gin.RouterGroup, dashboard *DashboardHandler, exports *ExportHandler) {
	// Onboarding helpers
	api.POST("/onboarding/questions", dashboard.ClarificationQuestions)

	users := api.Group("/users/:userId")
	{
		// Dashboard endpoints
		users.GET("/dashboard", dashboard.GetDashboard)
		users.POST("/onboarding", dashboard.SubmitOnboarding)
		users.POST("/journal", dashboard.RecordJournalEntry)
		users.PATCH("/actions/:actionId/toggle", dashboard.ToggleActionItem)
		users.GET("/history", dashboard.GetScoreHistory)
		users.GET("/history/chart.png", dashboard.GetScoreHistoryChart)
		users.GET("/events", dashboard.StreamEvents)

		// Chat endpoints
		users.GET("/chat", dashboard.GetChatMessages)
		users.POST("/chat", dashboard.SendChatMessage)

		// Export endpoints
		if exports != nil {
			users.POST("/exports", exports.CreateExport)
			users.GET("/exports/:exportId", exports.GetExport)
		}
	}
}
