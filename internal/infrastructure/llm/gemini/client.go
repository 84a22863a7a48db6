package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/llm/transport"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL        = "https://generativelanguage.googleapis.com"
	DefaultModel          = "gemini-2.5-flash"
	DefaultEmbeddingModel = "text-embedding-004"
	DefaultImageModel     = "gemini-2.0-flash-preview-image-generation"
)

type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	ImageModel     string
	// FilePollInterval paces polling for uploads still being processed.
	FilePollInterval time.Duration
}

// Client implements the generation gateway against the Gemini REST API.
type Client struct {
	cfg  Config
	http *transport.Client
}

func New(cfg Config, executor *resilience.Executor, observer transport.Observer) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.FilePollInterval <= 0 {
		cfg.FilePollInterval = 2 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: transport.New("gemini", cfg.BaseURL,
			transport.WithHeader("x-goog-api-key", cfg.APIKey),
			transport.WithExecutor(executor),
			transport.WithObserver(observer),
		),
	}
}

type part struct {
	Text       string      `json:"text,omitempty"`
	FileData   *fileData   `json:"fileData,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type fileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.GenerateMultimodal(ctx, prompt, nil)
}

// GenerateMultimodal sends the prompt followed by an optional file part.
func (c *Client) GenerateMultimodal(ctx context.Context, prompt string, file *domain.FileRef) (string, error) {
	parts := []part{{Text: prompt}}
	if file != nil {
		parts = append(parts, part{FileData: &fileData{MimeType: file.MimeType, FileURI: file.URI}})
	}

	resp, err := c.generate(ctx, c.cfg.Model, generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
	}, "generate")
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	return out.String(), nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": "models/" + c.cfg.EmbeddingModel,
		"content": content{
			Parts: []part{{Text: text}},
		},
	}
	var response struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	path := "/v1beta/models/" + c.cfg.EmbeddingModel + ":embedContent"
	if err := c.http.PostJSON(ctx, path, request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty embedding result")
	}
	return response.Embedding.Values, nil
}

// GenerateImage returns the first inline image of the response as base64.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := c.generate(ctx, c.cfg.ImageModel, generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	}, "generate_image")
	if err != nil {
		return "", err
	}
	for _, candidate := range resp.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				return p.InlineData.Data, nil
			}
		}
	}
	return "", errors.New("gemini generate_image: no image data in response")
}

func (c *Client) generate(ctx context.Context, model string, request generateRequest, operation string) (*generateResponse, error) {
	var response generateResponse
	path := "/v1beta/models/" + model + ":generateContent"
	if err := c.http.PostJSON(ctx, path, request, &response, operation); err != nil {
		return nil, err
	}
	if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("gemini %s: prompt blocked: %s", operation, response.PromptFeedback.BlockReason)
	}
	if len(response.Candidates) == 0 {
		return nil, fmt.Errorf("gemini %s: no candidates in response", operation)
	}
	return &response, nil
}
