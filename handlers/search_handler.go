package handlers

import (
	"net/http"

	"lexfind-backend/models"
	"lexfind-backend/service"

	"github.com/gin-gonic/gin"
)

// SearchHandler handles HTTP requests for semantic search
type SearchHandler struct {
	retrieval *service.RetrievalService
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(retrieval *service.RetrievalService) *SearchHandler {
	return &SearchHandler{retrieval: retrieval}
}

// SearchRequestBody is the JSON body for POST /api/search
type SearchRequestBody struct {
	Query         string         `json:"query" binding:"required"`
	Filters       map[string]any `json:"filters"`
	MaxResults    int            `json:"max_results"`
	ContextWindow int            `json:"context_window"`
}

// Search handles POST /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	var body SearchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	result, err := h.retrieval.Search(c.Request.Context(), service.SearchRequest{
		Query:         body.Query,
		Filters:       body.Filters,
		MaxResults:    body.MaxResults,
		ContextWindow: body.ContextWindow,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	// Upstream degradation surfaces as a gateway error, distinct from a
	// legitimate empty result set
	if result.Status == models.SearchStatusError {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SEARCH_DEGRADED",
				"message": result.Error,
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}
