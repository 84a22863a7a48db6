package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create docx entry: %v", err)
	}
	doc := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("write docx entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close docx: %v", err)
	}
	return buf.Bytes()
}

func TestClassify(t *testing.T) {
	cases := []struct {
		mime, name string
		want       Kind
	}{
		{"text/plain", "a.bin", KindText},
		{"text/csv; charset=utf-8", "data", KindText},
		{"application/octet-stream", "notes.TXT", KindText},
		{MimeDOCX, "letter", KindDOCX},
		{"", "report.docx", KindDOCX},
		{MimeXLSX, "book", KindXLSX},
		{"image/png", "scan.png", KindMedia},
		{MimePDF, "invoice.pdf", KindMedia},
	}
	for _, tc := range cases {
		if got := Classify(tc.mime, tc.name); got != tc.want {
			t.Fatalf("Classify(%q, %q) = %v, want %v", tc.mime, tc.name, got, tc.want)
		}
	}
}

func TestExtractPlainText(t *testing.T) {
	e := New()
	text, err := e.Extract(context.Background(), "text/plain", "invoice.txt", []byte("Invoice #123, Total: $50"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Invoice #123, Total: $50" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractRejectsBinaryText(t *testing.T) {
	_, err := New().Extract(context.Background(), "text/plain", "x.txt", []byte{0xff, 0xfe, 0xfd})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestExtractDOCXParagraphs(t *testing.T) {
	data := buildDOCX(t, `<w:p><w:r><w:t>Invoice</w:t></w:r><w:r><w:t xml:space="preserve"> #123</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>Total:</w:t><w:tab/><w:t>$50</w:t></w:r></w:p>`)

	text, err := New().Extract(context.Background(), MimeDOCX, "invoice.docx", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Invoice #123\nTotal:\t$50" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestDOCXWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := zw.Create("other.xml"); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	_ = zw.Close()

	if _, err := DOCXText(buf.Bytes()); err == nil {
		t.Fatalf("expected error for missing body")
	}
	if _, err := DOCXText([]byte("not a zip")); err == nil {
		t.Fatalf("expected error for invalid container")
	}
}

func TestExtractXLSX(t *testing.T) {
	f := excelize.NewFile()
	if err := f.SetCellValue("Sheet1", "A1", "Item"); err != nil {
		t.Fatalf("SetCellValue() error = %v", err)
	}
	if err := f.SetCellValue("Sheet1", "B1", "Total"); err != nil {
		t.Fatalf("SetCellValue() error = %v", err)
	}
	if err := f.SetCellValue("Sheet1", "A2", "Widget"); err != nil {
		t.Fatalf("SetCellValue() error = %v", err)
	}
	if err := f.SetCellValue("Sheet1", "B2", "50"); err != nil {
		t.Fatalf("SetCellValue() error = %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	text, err := New().Extract(context.Background(), MimeXLSX, "book.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(text, "## Sheet1") || !strings.Contains(text, "Widget\t50") {
		t.Fatalf("unexpected xlsx text %q", text)
	}
}

func TestExtractMediaUnsupported(t *testing.T) {
	_, err := New().Extract(context.Background(), "image/png", "a.png", []byte{1, 2})
	if !errors.Is(err, domain.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestPageCountIgnoresNonPDF(t *testing.T) {
	e := New()
	if got := e.PageCount("image/png", []byte("x")); got != 0 {
		t.Fatalf("PageCount() = %d", got)
	}
	if got := e.PageCount(MimePDF, []byte("%PDF-broken")); got != 0 {
		t.Fatalf("PageCount() for broken pdf = %d", got)
	}
}

func TestDetectMIME(t *testing.T) {
	if got := DetectMIME("image/jpeg", "a.bin", nil); got != "image/jpeg" {
		t.Fatalf("declared type should win, got %q", got)
	}
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if got := DetectMIME("application/octet-stream", "upload", png); got != "image/png" {
		t.Fatalf("expected sniffed png, got %q", got)
	}
	if got := DetectMIME("", "notes.txt", []byte("hello world")); got != "text/plain" {
		t.Fatalf("expected text/plain, got %q", got)
	}
	if got := DetectMIME("", "", nil); got != "application/octet-stream" {
		t.Fatalf("expected octet-stream fallback, got %q", got)
	}
}
