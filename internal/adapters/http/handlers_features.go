package httpadapter

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

type entityRequest struct {
	OCRID  string   `json:"ocrId"`
	Fields []string `json:"fields"`
}

type summaryRequest struct {
	OCRID  string `json:"ocrId"`
	Prompt string `json:"prompt"`
}

type formRequest struct {
	OCRID    string         `json:"ocrId"`
	Schema   map[string]any `json:"schema"`
	FormType string         `json:"formType"`
}

type compareRequest struct {
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
}

type identityRequest struct {
	DocAID string `json:"docA_Id"`
	DocBID string `json:"docB_Id"`
}

type resumeRequest struct {
	OCRID          string `json:"ocrId"`
	JobDescription string `json:"job_description"`
}

type imageRequest struct {
	OCRID string `json:"ocrId"`
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

func historyQuery(c *gin.Context) domain.HistoryQuery {
	return domain.HistoryQuery{
		DocumentID: strings.TrimSpace(c.Query("ocrId")),
		Limit:      queryInt(c, "limit"),
	}
}

func (rt *Router) extractEntities(c *gin.Context) {
	var req entityRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := rt.services.Entities.ExtractEntities(c.Request.Context(), domain.EntityRequest{DocumentID: req.OCRID, Fields: req.Fields})
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Entities extracted successfully", result)
}

func (rt *Router) entityHistory(c *gin.Context) {
	items, err := rt.services.Entities.EntityHistory(c.Request.Context(), historyQuery(c))
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Entity history retrieved", items)
}

func (rt *Router) summarize(c *gin.Context) {
	var req summaryRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := rt.services.Summaries.Summarize(c.Request.Context(), domain.SummaryRequest{DocumentID: req.OCRID, Prompt: req.Prompt})
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Summary generated successfully", result)
}

func (rt *Router) summaryHistory(c *gin.Context) {
	items, err := rt.services.Summaries.SummaryHistory(c.Request.Context(), historyQuery(c))
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Summary history retrieved", items)
}

func (rt *Router) fillForm(c *gin.Context) {
	var req formRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := rt.services.Forms.FillForm(c.Request.Context(), domain.FormRequest{
		DocumentID: req.OCRID,
		Schema:     req.Schema,
		FormType:   req.FormType,
	})
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Form filled successfully", result)
}

func (rt *Router) formHistory(c *gin.Context) {
	items, err := rt.services.Forms.FormHistory(c.Request.Context(), historyQuery(c))
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Form history retrieved", items)
}

func (rt *Router) compareDocuments(c *gin.Context) {
	var req compareRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := rt.services.Compare.Compare(c.Request.Context(), domain.CompareRequest{SourceID: req.SourceID, TargetID: req.TargetID})
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Comparison completed successfully", result)
}

func (rt *Router) compareHistory(c *gin.Context) {
	items, err := rt.services.Compare.CompareHistory(c.Request.Context(), historyQuery(c))
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Comparison history retrieved", items)
}

func (rt *Router) verifyIdentity(c *gin.Context) {
	var req identityRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := rt.services.Identity.Verify(c.Request.Context(), domain.IdentityRequest{DocAID: req.DocAID, DocBID: req.DocBID})
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Identity verification completed", result)
}

func (rt *Router) identityHistory(c *gin.Context) {
	items, err := rt.services.Identity.IdentityHistory(c.Request.Context(), historyQuery(c))
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "History retrieved", items)
}

func (rt *Router) analyzeResume(c *gin.Context) {
	var req resumeRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := rt.services.Resume.AnalyzeResume(c.Request.Context(), domain.ResumeRequest{DocumentID: req.OCRID, JobDescription: req.JobDescription})
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Resume Analysis & Matching Completed", result)
}

func (rt *Router) resumeHistory(c *gin.Context) {
	items, err := rt.services.Resume.ResumeHistory(c.Request.Context(), historyQuery(c))
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Resume history retrieved", items)
}

func (rt *Router) generateImage(c *gin.Context) {
	var req imageRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := rt.services.Images.GenerateDocumentImage(c.Request.Context(), req.OCRID)
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Image generated and saved successfully", result)
}

func (rt *Router) generateText(c *gin.Context) {
	var req generateRequest
	if !bindJSON(c, &req) {
		return
	}
	text, err := rt.services.Generator.GenerateFromPrompt(c.Request.Context(), req.Prompt)
	if err != nil {
		rt.respondError(c, err)
		return
	}
	respondOK(c, "Text generated successfully", gin.H{"text": text})
}
