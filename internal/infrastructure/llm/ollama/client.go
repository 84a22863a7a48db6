package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/extractor"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/llm/transport"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/resilience"
)

// fileScheme marks references to files kept in object storage on behalf of
// the local model, which has no file API of its own.
const fileScheme = "ollama-file://"

type Config struct {
	BaseURL    string
	GenModel   string
	EmbedModel string
}

// Client is the self-hosted alternative to the hosted provider. Images go
// inline as base64, PDFs contribute their text layer, audio and video are
// not supported.
type Client struct {
	cfg     Config
	http    *transport.Client
	storage ports.ObjectStorage
}

func New(cfg Config, storage ports.ObjectStorage, executor *resilience.Executor, observer transport.Observer) *Client {
	return &Client{
		cfg:     cfg,
		storage: storage,
		http: transport.New("ollama", cfg.BaseURL,
			transport.WithExecutor(executor),
			transport.WithObserver(observer),
		),
	}
}

func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.GenerateMultimodal(ctx, prompt, nil)
}

func (c *Client) GenerateMultimodal(ctx context.Context, prompt string, file *domain.FileRef) (string, error) {
	reqBody := map[string]any{
		"model":  c.cfg.GenModel,
		"prompt": prompt,
		"stream": false,
	}
	if file != nil {
		data, err := c.readFile(ctx, *file)
		if err != nil {
			return "", err
		}
		switch {
		case strings.HasPrefix(file.MimeType, "image/"):
			reqBody["images"] = []string{base64.StdEncoding.EncodeToString(data)}
		case file.MimeType == extractor.MimePDF:
			text, err := extractor.PDFText(data)
			if err != nil {
				return "", domain.WrapError(domain.ErrInvalidInput, "ollama pdf text", err)
			}
			reqBody["prompt"] = prompt + "\n\nDOCUMENT CONTENT:\n" + text
		default:
			return "", domain.WrapError(domain.ErrUnsupported, "ollama generate", fmt.Errorf("media type %s is not supported by local models", file.MimeType))
		}
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.http.PostJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": c.cfg.EmbedModel,
		"input": []string{text},
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := c.http.PostJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding result")
	}
	return response.Embeddings[0], nil
}

func (c *Client) GenerateImage(context.Context, string) (string, error) {
	return "", domain.NewError(domain.ErrUnsupported, "Image generation is not available with the configured provider")
}

// UploadFile keeps the bytes in object storage and returns a reference the
// generate call can resolve later, possibly from another process.
func (c *Client) UploadFile(ctx context.Context, name, mimeType string, body io.Reader) (domain.FileRef, error) {
	if c.storage == nil {
		return domain.FileRef{}, domain.WrapError(domain.ErrUnsupported, "ollama upload", fmt.Errorf("no file storage configured"))
	}
	key := "provider-files/" + uuid.NewString()
	if err := c.storage.Save(ctx, key, body); err != nil {
		return domain.FileRef{}, fmt.Errorf("store %s for local model: %w", name, err)
	}
	return domain.FileRef{URI: fileScheme + key, MimeType: mimeType}, nil
}

func (c *Client) ReleaseFile(ctx context.Context, ref domain.FileRef) error {
	key, ok := strings.CutPrefix(ref.URI, fileScheme)
	if !ok || c.storage == nil {
		return domain.WrapError(domain.ErrInvalidInput, "ollama release", fmt.Errorf("unknown file reference %q", ref.URI))
	}
	if err := c.storage.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete provider file: %w", err)
	}
	return nil
}

func (c *Client) readFile(ctx context.Context, ref domain.FileRef) ([]byte, error) {
	key, ok := strings.CutPrefix(ref.URI, fileScheme)
	if !ok || c.storage == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ollama file", fmt.Errorf("unknown file reference %q", ref.URI))
	}
	rc, err := c.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open provider file: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read provider file: %w", err)
	}
	return data, nil
}
