package httpadapter

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

func (rt *Router) analyzeDocument(c *gin.Context) {
	if rt.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, rt.cfg.MaxUploadBytes)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondFailure(c, http.StatusRequestEntityTooLarge, "File exceeds the upload limit", nil)
			return
		}
		respondFailure(c, http.StatusBadRequest, "File is required", nil)
		return
	}
	file, err := header.Open()
	if err != nil {
		rt.respondError(c, err)
		return
	}
	defer file.Close()

	outcome, err := rt.services.Analyzer.Analyze(c.Request.Context(), domain.UploadInput{
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Size:         header.Size,
		Body:         file,
	})
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "File analyzed successfully", outcome)
}

func (rt *Router) getDocumentStatus(c *gin.Context) {
	view, err := rt.services.Documents.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "File status retrieved successfully", view)
}

func (rt *Router) listDocuments(c *gin.Context) {
	page, err := rt.services.Documents.ListDocuments(c.Request.Context(), domain.ListQuery{
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
		Search: strings.TrimSpace(c.Query("search")),
		Order:  domain.SortOrder(strings.ToLower(c.Query("order"))),
	})
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Files retrieved successfully", page)
}

func (rt *Router) getDocument(c *gin.Context) {
	view, err := rt.services.Documents.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "File retrieved successfully", view)
}

func (rt *Router) listDocumentJobs(c *gin.Context) {
	jobs, err := rt.services.Jobs.ListJobs(c.Request.Context(), c.Param("id"))
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Jobs retrieved successfully", jobs)
}

func (rt *Router) getJob(c *gin.Context) {
	job, err := rt.services.Jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Job retrieved successfully", job)
}

// queryInt returns 0 for a missing or malformed value; the use case applies
// defaults.
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return 0
	}
	return n
}
