package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTimeout = 30 * time.Second

// Extractor turns a stored attachment into plain text.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Config contains settings for the HTTP OCR client.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Client calls a self-hosted OCR service over HTTP. The service accepts a
// JSON body with the document URL and responds with the extracted text.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// New constructs an OCR client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("ocr endpoint must be provided")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		tracer:   otel.Tracer("github.com/promptforge/promptforge-api/pkg/ocr"),
		logger:   cfg.Logger.With().Str("component", "ocr_client").Logger(),
	}, nil
}

type extractRequest struct {
	URL string `json:"url"`
}

type extractResponse struct {
	Text string `json:"text"`
}

// Extract submits the document URL and returns the recognized text.
func (c *Client) Extract(parent context.Context, url string) (string, error) {
	ctx, span := c.tracer.Start(parent, "ocr.extract", trace.WithAttributes(
		attribute.String("ocr.endpoint", c.endpoint),
	))
	defer span.End()

	body, err := json.Marshal(extractRequest{URL: url})
	if err != nil {
		return "", fmt.Errorf("encode ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("ocr service returned status %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var parsed extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode ocr response: %w", err)
	}

	return parsed.Text, nil
}
