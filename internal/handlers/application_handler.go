package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/inbox-job-tracker/internal/auth"
	"github.com/justsurfingit/inbox-job-tracker/internal/dtos"
	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"github.com/justsurfingit/inbox-job-tracker/internal/services"
)

// Scanner runs the ingestion pipeline for one user.
type Scanner interface {
	Run(ctx context.Context, userID uint, opts services.Options) services.ScanReport
}

// ApplicationHandler serves the dashboard API. It only reads and updates
// stored applications; scanning is delegated to the pipeline.
type ApplicationHandler struct {
	Apps    *services.ApplicationService
	Users   *services.UserService
	Scanner Scanner
}

func NewApplicationHandler(apps *services.ApplicationService, users *services.UserService, scanner Scanner) *ApplicationHandler {
	return &ApplicationHandler{Apps: apps, Users: users, Scanner: scanner}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// ListUsers is GET /users
func (h *ApplicationHandler) ListUsers(c *gin.Context) {
	users, err := h.Users.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	resp := make([]dtos.UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, dtos.NewUserResponse(u))
	}
	c.JSON(http.StatusOK, resp)
}

// ListApplications is GET /users/:userID/applications
func (h *ApplicationHandler) ListApplications(c *gin.Context) {
	userID, ok := h.userParam(c)
	if !ok {
		return
	}
	var q dtos.ListApplicationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query: " + err.Error()})
		return
	}

	filter := services.ApplicationFilter{
		Company:  q.Company,
		Status:   q.Status,
		Platform: q.Platform,
		Limit:    q.Limit,
	}
	if q.Days > 0 {
		filter.Since = time.Now().AddDate(0, 0, -q.Days)
	}
	apps, err := h.Apps.List(c.Request.Context(), userID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(apps), "applications": apps})
}

// GetApplication is GET /users/:userID/applications/:id
func (h *ApplicationHandler) GetApplication(c *gin.Context) {
	userID, ok := h.userParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	app, err := h.Apps.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// UpdateStatus is PATCH /users/:userID/applications/:id/status
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	userID, ok := h.userParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req dtos.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.Apps.UpdateStatus(c.Request.Context(), userID, id, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// Stats is GET /users/:userID/stats
func (h *ApplicationHandler) Stats(c *gin.Context) {
	userID, ok := h.userParam(c)
	if !ok {
		return
	}
	st, err := h.Apps.Stats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Scan is POST /users/:userID/scan. It runs synchronously and returns the report.
func (h *ApplicationHandler) Scan(c *gin.Context) {
	userID, ok := h.userParam(c)
	if !ok {
		return
	}
	var req dtos.ScanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
			return
		}
	}

	report := h.Scanner.Run(c.Request.Context(), userID, services.Options{WindowDays: req.Days, Reprocess: req.Reprocess})
	switch {
	case auth.IsAuthError(report.Err):
		c.JSON(http.StatusUnauthorized, report)
	case report.Err != nil:
		c.JSON(http.StatusBadGateway, report)
	default:
		c.JSON(http.StatusOK, report)
	}
}

// userParam resolves :userID and checks that the user exists.
func (h *ApplicationHandler) userParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("userID"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return 0, false
	}
	if _, err := h.Users.Get(c.Request.Context(), uint(id)); err != nil {
		respondError(c, err)
		return 0, false
	}
	return uint(id), true
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid application id"})
		return 0, false
	}
	return uint(id), true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error: " + err.Error()})
	}
}
