package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lifedash-backend/logger"
	"lifedash-backend/render"
	"lifedash-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const heartbeatInterval = 15 * time.Second

// DashboardHandler handles HTTP requests for a user's dashboard
type DashboardHandler struct {
	dashboard *service.DashboardService
	flows     service.Flows
	log       *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard *service.DashboardService, flows service.Flows, log *logger.Logger) *DashboardHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &DashboardHandler{
		dashboard: dashboard,
		flows:     flows,
		log:       log.With("component", "dashboard_handler"),
	}
}

// GetDashboard handles GET /api/users/:userId/dashboard
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	state, err := h.dashboard.Initialize(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, state)
}

// OnboardingRequest represents the request body for onboarding
type OnboardingRequest struct {
	UserValues string `json:"userValues" binding:"required"`
}

// SubmitOnboarding handles POST /api/users/:userId/onboarding
func (h *DashboardHandler) SubmitOnboarding(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req OnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Please tell us about your values and aspirations.")
		return
	}

	result, err := h.dashboard.SubmitOnboarding(c.Request.Context(), userID, req.UserValues)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// JournalRequest represents the request body for a journal entry
type JournalRequest struct {
	Entry string `json:"entry" binding:"required"`
}

// RecordJournalEntry handles POST /api/users/:userId/journal
func (h *DashboardHandler) RecordJournalEntry(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req JournalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Journal entry is empty")
		return
	}

	result, err := h.dashboard.RecordJournalEntry(c.Request.Context(), userID, req.Entry)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// ChatRequest represents the request body for a chat message
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// SendChatMessage handles POST /api/users/:userId/chat
func (h *DashboardHandler) SendChatMessage(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Message is required")
		return
	}

	result, err := h.dashboard.SendChatMessage(c.Request.Context(), userID, req.Message)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// GetChatMessages handles GET /api/users/:userId/chat
func (h *DashboardHandler) GetChatMessages(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	messages, err := h.dashboard.Messages(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, messages)
}

// ToggleActionItem handles PATCH /api/users/:userId/actions/:actionId/toggle
func (h *DashboardHandler) ToggleActionItem(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	actionID, err := uuid.Parse(c.Param("actionId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid action ID format")
		return
	}

	result, err := h.dashboard.ToggleActionItem(c.Request.Context(), userID, actionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// GetScoreHistory handles GET /api/users/:userId/history
func (h *DashboardHandler) GetScoreHistory(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	state, err := h.dashboard.Initialize(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, state.ScoreHistory)
}

// GetScoreHistoryChart handles GET /api/users/:userId/history/chart.png
func (h *DashboardHandler) GetScoreHistoryChart(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	state, err := h.dashboard.Initialize(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	opts := render.DefaultChartOptions()
	if w, err := strconv.Atoi(c.Query("width")); err == nil && w > 0 && w <= 2000 {
		opts.Width = w
	}
	if ht, err := strconv.Atoi(c.Query("height")); err == nil && ht > 0 && ht <= 2000 {
		opts.Height = ht
	}

	var buf bytes.Buffer
	if err := render.ScoreHistoryPNG(&buf, state.ScoreHistory, opts); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// StreamEvents handles GET /api/users/:userId/events as server-sent events
func (h *DashboardHandler) StreamEvents(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	events, cancel, err := h.dashboard.Subscribe(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			h.log.Debug("event stream closed by client", "user_id", userID)
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		}
	})
}

// ClarificationRequest represents the request body for follow-up questions
type ClarificationRequest struct {
	UserInput string `json:"userInput" binding:"required"`
	Context   string `json:"context"`
}

// ClarificationQuestions handles POST /api/onboarding/questions
func (h *DashboardHandler) ClarificationQuestions(c *gin.Context) {
	var req ClarificationRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserInput) == "" {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "userInput is required")
		return
	}

	questions, err := h.flows.ClarificationQuestions(c.Request.Context(), service.ClarificationRequest{
		UserInput: req.UserInput,
		Context:   req.Context,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"questions": questions})
}
