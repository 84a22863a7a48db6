package httpadapter

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

type ingestRequest struct {
	OCRID string `json:"ocrId"`
}

type searchRequest struct {
	OCRID    string `json:"ocrId"`
	Query    string `json:"query"`
	Question string `json:"question"`
}

type chatRequest struct {
	OCRID    string            `json:"ocrId"`
	Question string            `json:"question"`
	History  []domain.ChatTurn `json:"history"`
}

// bindJSON treats an empty body as an empty object so required-field checks
// produce their own messages.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		respondFailure(c, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return false
	}
	return true
}

func (rt *Router) ingestDocument(c *gin.Context) {
	var req ingestRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := rt.services.QA.EnsureIngested(c.Request.Context(), req.OCRID); err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Ingestion ensured for "+req.OCRID, nil)
}

func (rt *Router) searchDocument(c *gin.Context) {
	var req searchRequest
	if !bindJSON(c, &req) {
		return
	}
	query := req.Query
	if strings.TrimSpace(query) == "" {
		query = req.Question
	}
	answer, err := rt.services.QA.Search(c.Request.Context(), req.OCRID, query)
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, answerMessage(answer), answer)
}

func (rt *Router) chatWithDocument(c *gin.Context) {
	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}
	answer, err := rt.services.QA.Chat(c.Request.Context(), req.OCRID, req.Question, req.History)
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, answerMessage(answer), answer)
}

// answerMessage distinguishes the no-context reply, which carries no sources.
func answerMessage(answer *domain.Answer) string {
	if len(answer.Sources) == 0 {
		return "Answer"
	}
	return "Answer generated"
}
