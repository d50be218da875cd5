package handlers

import (
	"net/http"

	"lexfind-backend/models"
	"lexfind-backend/ranker"

	"github.com/gin-gonic/gin"
)

// RankHandler handles HTTP requests for case relevance ranking
type RankHandler struct {
	ranker *ranker.Ranker
}

// NewRankHandler creates a new rank handler
func NewRankHandler(r *ranker.Ranker) *RankHandler {
	return &RankHandler{ranker: r}
}

// RankRequestBody is the JSON body for POST /api/cases/rank
type RankRequestBody struct {
	Cases          []models.CaseCandidate `json:"cases" binding:"required"`
	Query          string                 `json:"query" binding:"required"`
	TargetStatutes []string               `json:"target_statutes"`
	QueryFacts     []string               `json:"query_facts"`
}

// RankCases handles POST /api/cases/rank
func (h *RankHandler) RankCases(c *gin.Context) {
	var body RankRequestBody
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

	// Derive factual elements from the query when the caller supplies none
	queryFacts := body.QueryFacts
	if len(queryFacts) == 0 {
		queryFacts = ranker.ExtractQueryFacts(body.Query)
	}

	ranked := h.ranker.Rank(body.Cases, ranker.RankRequest{
		Query:          body.Query,
		TargetStatutes: body.TargetStatutes,
		QueryFacts:     queryFacts,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"total_cases": len(ranked),
			"cases":       ranked,
		},
	})
}
