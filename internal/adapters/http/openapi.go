package httpadapter

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"
	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openAPISpec []byte

type apiDocument struct {
	doc    *openapi3.T
	json   []byte
	router routers.Router
}

// loadAPIDocument parses and validates the embedded OpenAPI document.
func loadAPIDocument(ctx context.Context) (*apiDocument, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal openapi document: %w", err)
	}
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &apiDocument{doc: doc, json: raw, router: router}, nil
}

func (d *apiDocument) serve(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", d.json)
}

// validateRequests checks JSON requests against the document before they
// reach a handler. Multipart bodies are left to the handler.
func (d *apiDocument) validateRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, params, err := d.router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}
		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: params,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				ExcludeRequestBody: strings.HasPrefix(c.ContentType(), "multipart/"),
			},
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			respondFailure(c, http.StatusBadRequest, "Request does not match the API schema", err.Error())
			return
		}
		c.Next()
	}
}
