package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"fraclaims/internal/config"
	"fraclaims/internal/domain"
	"fraclaims/internal/port"
)

const maxResponseBytes = 32 << 20

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// HealthStatus is the engine's /health report.
type HealthStatus struct {
	Status             string   `json:"status"`
	OCRReady           bool     `json:"ocr_ready"`
	NERReady           bool     `json:"ner_ready"`
	PDFSupport         bool     `json:"pdf_support"`
	SupportedLanguages []string `json:"supported_languages"`
}

// Client submits documents to the extraction engine. It implements port.TransferClient.
type Client struct {
	cfg    config.EngineConfig
	client *http.Client
	retry  retryPolicy
}

// NewClient creates an engine transfer client from the engine config.
func NewClient(cfg *config.EngineConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	fileField := cfg.FileField
	if fileField == "" {
		fileField = "file"
	}
	c := *cfg
	c.FileField = fileField
	return &Client{
		cfg:    c,
		client: &http.Client{Timeout: timeout},
		retry:  retryPolicy{maxRetries: cfg.MaxRetries, backoff: cfg.RetryBackoff},
	}
}

// Submit posts the document bytes as a multipart upload. Transport failures are
// retried with backoff; a non-success status is returned as *EngineRejectedError
// without retry.
func (c *Client) Submit(ctx context.Context, req domain.ProcessingRequest) (*port.EngineResponse, error) {
	if len(req.RawBytes) == 0 {
		return nil, fmt.Errorf("submitting document %s: %w", req.DocumentID, domain.ErrEmptyDocument)
	}

	body, contentType, err := encodeMultipart(c.cfg.FileField, req)
	if err != nil {
		return nil, fmt.Errorf("encoding multipart body: %w", err)
	}

	var resp *port.EngineResponse
	err = c.retry.do(ctx, "submit "+req.DocumentID, func(ctx context.Context) error {
		r, err := c.submitOnce(ctx, req.DocumentID, body, contentType)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) submitOnce(ctx context.Context, documentID string, body []byte, contentType string) (*port.EngineResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ExtractURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Document-ID", documentID)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("calling engine: %w", ctx.Err())
		}
		return nil, &EngineUnreachableError{Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("reading engine response: %w", ctx.Err())
		}
		return nil, &EngineUnreachableError{Cause: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &EngineRejectedError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return &port.EngineResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// CheckHealth queries the engine's health endpoint once, without retry.
func (c *Client) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &EngineUnreachableError{Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &EngineRejectedError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var health HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, &MalformedResultError{Cause: err}
	}
	return &health, nil
}

func encodeMultipart(field string, req domain.ProcessingRequest) ([]byte, string, error) {
	filename := req.Filename
	if strings.TrimSpace(filename) == "" {
		filename = domain.DefaultFilename
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", mimetype.Detect(req.RawBytes).String())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.RawBytes); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
