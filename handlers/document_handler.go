package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"lexfind-backend/models"
	"lexfind-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentHandler handles HTTP requests for document ingestion and lifecycle
type DocumentHandler struct {
	ingestion        *service.IngestionService
	maxFileSize      int64
	allowedMimeTypes map[string]bool
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(ingestion *service.IngestionService) *DocumentHandler {
	return &DocumentHandler{
		ingestion:   ingestion,
		maxFileSize: 50 * 1024 * 1024, // 50MB
		allowedMimeTypes: map[string]bool{
			"application/pdf": true,
			"text/plain":      true,
		},
	}
}

// UploadDocument handles POST /api/documents. Text content arrives in the
// "text" form field (extraction happens upstream); the original file may be
// attached for archival.
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	title := c.PostForm("title")
	text := c.PostForm("text")

	var publicationYear *int
	if yearStr := c.PostForm("publication_year"); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_YEAR",
					"message": "publication_year must be an integer",
				},
			})
			return
		}
		publicationYear = &year
	}

	req := service.IngestRequest{
		Title:           title,
		Author:          c.PostForm("author"),
		LegalArea:       c.PostForm("legal_area"),
		Edition:         c.PostForm("edition"),
		PublicationYear: publicationYear,
		Text:            text,
	}

	fileHeader, err := c.FormFile("file")
	if err == nil {
		if fileHeader.Size > h.maxFileSize {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "FILE_TOO_LARGE",
					"message": fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize),
				},
			})
			return
		}

		mimeType := fileHeader.Header.Get("Content-Type")
		if mimeType == "" {
			if strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".pdf") {
				mimeType = "application/pdf"
			} else {
				mimeType = "text/plain"
			}
		}
		if !h.allowedMimeTypes[mimeType] && !strings.HasPrefix(mimeType, "text/") {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_FILE_TYPE",
					"message": "File type not allowed. Allowed types: PDF, TXT",
				},
			})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "FILE_OPEN_ERROR",
					"message": err.Error(),
				},
			})
			return
		}
		defer file.Close()

		req.Filename = fileHeader.Filename

		// Plain-text uploads double as the document text when no text field
		// was supplied
		if req.Text == "" && strings.HasPrefix(mimeType, "text/") {
			data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "FILE_READ_ERROR",
						"message": err.Error(),
					},
				})
				return
			}
			req.Text = string(data)
		} else {
			req.File = file
		}
	}

	if req.Filename == "" {
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "MISSING_DOCUMENT",
					"message": "Either a file or a title with text is required",
				},
			})
			return
		}
		req.Filename = title + ".txt"
	}

	if req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_TEXT",
				"message": "Document text is required",
			},
		})
		return
	}

	result, err := h.ingestion.IngestDocument(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INGESTION_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	// Staged documents are accepted but not yet searchable; surface that
	// distinction in the status code
	status := http.StatusCreated
	if result.Staged {
		status = http.StatusAccepted
	}

	c.JSON(status, gin.H{
		"success": true,
		"data": gin.H{
			"id":                result.Document.ID,
			"title":             result.Document.Title,
			"processing_status": result.Document.ProcessingStatus,
			"total_chunks":      result.TotalChunks,
			"staged":            result.Staged,
			"staged_uri":        result.StagedURI,
		},
	})
}

// GetDocument handles GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Invalid document ID format",
			},
		})
		return
	}

	doc, err := h.ingestion.GetDocument(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Document not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    doc,
	})
}

// ListDocuments handles GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.ingestion.ListDocuments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": err.Error(),
			},
		})
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    docs,
	})
}

// DeleteDocument handles DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Invalid document ID format",
			},
		})
		return
	}

	if err := h.ingestion.DeleteDocument(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DELETE_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"id":      id,
			"deleted": true,
		},
	})
}
