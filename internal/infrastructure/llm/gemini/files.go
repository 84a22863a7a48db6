package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/llm/transport"
)

const (
	fileStateActive     = "ACTIVE"
	fileStateProcessing = "PROCESSING"
	fileStateFailed     = "FAILED"
)

type remoteFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
}

// UploadFile pushes a file through the resumable upload protocol and waits
// until the provider reports it usable.
func (c *Client) UploadFile(ctx context.Context, name, mimeType string, body io.Reader) (domain.FileRef, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return domain.FileRef{}, fmt.Errorf("read upload body: %w", err)
	}

	var file remoteFile
	err = c.http.Execute(ctx, "upload_file", func(ctx context.Context) error {
		uploadURL, err := c.startUpload(ctx, name, mimeType, len(data))
		if err != nil {
			return err
		}
		file, err = c.finishUpload(ctx, uploadURL, data)
		return err
	})
	if err != nil {
		return domain.FileRef{}, err
	}

	file, err = c.waitActive(ctx, file)
	if err != nil {
		return domain.FileRef{}, err
	}
	if file.MimeType == "" {
		file.MimeType = mimeType
	}
	return domain.FileRef{URI: file.URI, MimeType: file.MimeType}, nil
}

// ReleaseFile deletes the remote copy ahead of the provider's own expiry.
func (c *Client) ReleaseFile(ctx context.Context, ref domain.FileRef) error {
	name, err := fileName(ref.URI)
	if err != nil {
		return err
	}
	err = c.http.Execute(ctx, "delete_file", func(ctx context.Context) error {
		req, err := c.http.NewRequest(ctx, http.MethodDelete, c.http.BaseURL()+"/v1beta/"+name, nil)
		if err != nil {
			return fmt.Errorf("create delete_file request: %w", err)
		}
		resp, err := c.http.Do(req, "delete_file")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
	var statusErr *transport.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// fileName turns a file uri such as https://host/v1beta/files/abc into the
// resource name files/abc.
func fileName(uri string) (string, error) {
	i := strings.LastIndex(uri, "/files/")
	if i < 0 || i+len("/files/") == len(uri) {
		return "", domain.WrapError(domain.ErrInvalidInput, "gemini release", fmt.Errorf("unknown file reference %q", uri))
	}
	return uri[i+1:], nil
}

func (c *Client) startUpload(ctx context.Context, name, mimeType string, size int) (string, error) {
	meta, err := json.Marshal(map[string]any{"file": map[string]string{"display_name": name}})
	if err != nil {
		return "", fmt.Errorf("marshal upload metadata: %w", err)
	}
	req, err := c.http.NewRequest(ctx, http.MethodPost, c.http.BaseURL()+"/upload/v1beta/files", bytes.NewReader(meta))
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(size))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	resp, err := c.http.Do(req, "upload_file")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	uploadURL := strings.TrimSpace(resp.Header.Get("X-Goog-Upload-URL"))
	if uploadURL == "" {
		return "", errors.New("gemini upload_file: missing upload url")
	}
	return uploadURL, nil
}

func (c *Client) finishUpload(ctx context.Context, uploadURL string, data []byte) (remoteFile, error) {
	req, err := c.http.NewRequest(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return remoteFile{}, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("X-Goog-Upload-Offset", "0")
	req.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	resp, err := c.http.Do(req, "upload_file")
	if err != nil {
		return remoteFile{}, err
	}
	defer resp.Body.Close()

	var out struct {
		File remoteFile `json:"file"`
	}
	if err := transport.DecodeJSON(resp, &out, "upload_file"); err != nil {
		return remoteFile{}, err
	}
	if out.File.URI == "" {
		return remoteFile{}, errors.New("gemini upload_file: response has no file uri")
	}
	return out.File, nil
}

// waitActive polls audio and video uploads, which are processed
// asynchronously before they can be referenced.
func (c *Client) waitActive(ctx context.Context, file remoteFile) (remoteFile, error) {
	for {
		switch file.State {
		case "", fileStateActive:
			return file, nil
		case fileStateFailed:
			return remoteFile{}, fmt.Errorf("gemini upload_file: processing failed for %s", file.Name)
		case fileStateProcessing:
		default:
			return file, nil
		}

		timer := time.NewTimer(c.cfg.FilePollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return remoteFile{}, ctx.Err()
		case <-timer.C:
		}

		var next remoteFile
		err := c.http.Execute(ctx, "get_file", func(ctx context.Context) error {
			req, err := c.http.NewRequest(ctx, http.MethodGet, c.http.BaseURL()+"/v1beta/"+file.Name, nil)
			if err != nil {
				return fmt.Errorf("create get_file request: %w", err)
			}
			resp, err := c.http.Do(req, "get_file")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return transport.DecodeJSON(resp, &next, "get_file")
		})
		if err != nil {
			return remoteFile{}, err
		}
		file = next
	}
}
