package extractor

import (
	"mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

const mimeOctetStream = "application/octet-stream"

// DetectMIME keeps a declared type unless it is missing or generic, then
// falls back to content sniffing and finally to the file extension.
func DetectMIME(declared, filename string, head []byte) string {
	if mt := normalizeMIME(declared); mt != "" && mt != mimeOctetStream {
		return mt
	}
	if len(head) > 0 {
		if mt := normalizeMIME(mimetype.Detect(head).String()); mt != mimeOctetStream {
			return mt
		}
	}
	if byExt := normalizeMIME(mime.TypeByExtension(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	return mimeOctetStream
}

func (e *Extractor) DetectMIME(declared, filename string, head []byte) string {
	return DetectMIME(declared, filename, head)
}
