package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"rms-connector-service/internal/clients"
	"rms-connector-service/internal/errs"
	"rms-connector-service/internal/models"
	"rms-connector-service/internal/services"
)

// SyncHandler exposes the order sync operations over HTTP.
type SyncHandler struct {
	orchestrator *services.Orchestrator
	gateway      clients.StorefrontGateway
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(orchestrator *services.Orchestrator, gateway clients.StorefrontGateway) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		gateway:      gateway,
	}
}

// TriggerPoll runs one poll cycle on demand. The request body is optional;
// an empty body runs a cycle with the configured defaults.
func (h *SyncHandler) TriggerPoll(c *gin.Context) {
	var opts models.PollOptions
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	report := h.orchestrator.PollAndSync(c.Request.Context(), opts)
	status := http.StatusOK
	if report.Status == models.ReportError {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"data": report})
}

// GetStats returns the cumulative sync statistics.
func (h *SyncHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.orchestrator.Statistics()})
}

// ResetStats clears the cumulative sync statistics.
func (h *SyncHandler) ResetStats(c *gin.Context) {
	h.orchestrator.ResetStatistics()
	c.JSON(http.StatusOK, gin.H{"message": "statistics reset"})
}

// GetLastReport returns the most recent cycle report.
func (h *SyncHandler) GetLastReport(c *gin.Context) {
	report := h.orchestrator.LastReport()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle has run yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// GetOrder fetches a single storefront order by its external id, for
// debugging sync discrepancies.
func (h *SyncHandler) GetOrder(c *gin.Context) {
	externalID := c.Param("id")

	order, err := h.gateway.FetchOrderByID(c.Request.Context(), externalID)
	if err != nil {
		status := http.StatusBadGateway
		if errs.KindOf(err) == errs.KindUnauthorized {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}
