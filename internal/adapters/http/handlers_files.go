package httpadapter

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

// servedPrefixes are the storage areas readable over HTTP.
var servedPrefixes = []string{"generated/", "uploads/"}

func (rt *Router) serveFile(c *gin.Context) {
	key, ok := cleanFileKey(c.Param("key"))
	if !ok {
		respondFailure(c, http.StatusNotFound, "File not found", nil)
		return
	}
	body, err := rt.services.Files.Open(c.Request.Context(), key)
	if err != nil {
		if domain.IsKind(err, domain.ErrObjectNotFound) {
			respondFailure(c, http.StatusNotFound, "File not found", nil)
			return
		}
		rt.respondError(c, err)
		return
	}
	defer body.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
}

// cleanFileKey rejects traversal and keys outside the served prefixes.
func cleanFileKey(raw string) (string, bool) {
	raw = strings.TrimPrefix(raw, "/")
	if raw == "" || strings.Contains(raw, "..") || strings.Contains(raw, "\\") {
		return "", false
	}
	key := path.Clean(raw)
	for _, prefix := range servedPrefixes {
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return key, true
		}
	}
	return "", false
}
