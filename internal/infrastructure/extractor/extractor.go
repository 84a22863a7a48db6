package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

const (
	MimePlain = "text/plain"
	MimeCSV   = "text/csv"
	MimeDOCX  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimePDF   = "application/pdf"
)

type Kind int

const (
	// KindMedia covers everything handed to the multimodal model as a file.
	KindMedia Kind = iota
	KindText
	KindDOCX
	KindXLSX
)

// Classify decides how a file is read, by MIME type first and extension second.
func Classify(mimeType, filename string) Kind {
	mt := normalizeMIME(mimeType)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch {
	case mt == MimePlain || mt == MimeCSV || ext == "txt" || ext == "csv":
		return KindText
	case mt == MimeDOCX || ext == "docx":
		return KindDOCX
	case mt == MimeXLSX || ext == "xlsx":
		return KindXLSX
	default:
		return KindMedia
	}
}

// Extractor reads text-bearing formats locally so they never reach the
// provider's file store.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Supports(mimeType, filename string) bool {
	return Classify(mimeType, filename) != KindMedia
}

func (e *Extractor) Extract(ctx context.Context, mimeType, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch Classify(mimeType, filename) {
	case KindText:
		if !utf8.Valid(data) {
			return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("file %s is not valid utf-8", filename))
		}
		return string(data), nil
	case KindDOCX:
		text, err := DOCXText(data)
		if err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, "extract docx", err)
		}
		return text, nil
	case KindXLSX:
		text, err := XLSXText(data)
		if err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, "extract xlsx", err)
		}
		return text, nil
	default:
		return "", domain.WrapError(domain.ErrUnsupported, "extract", fmt.Errorf("no local extractor for %s", mimeType))
	}
}

func (e *Extractor) PageCount(mimeType string, data []byte) int {
	if normalizeMIME(mimeType) != MimePDF {
		return 0
	}
	return PDFPageCount(data)
}

func normalizeMIME(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
