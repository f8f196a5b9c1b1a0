// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/extract-server/internal/httputil"
	"github.com/pdiddy/extract-server/pkg/types"
)

const backendService = "service"

// maxServiceResponse caps the response body read from the remote service.
const maxServiceResponse = 64 << 20

// serviceResponse accepts both the {"markdown": ...} shape and the older
// {"text": ...} shape some conversion services return.
type serviceResponse struct {
	Markdown string `json:"markdown"`
	Text     string `json:"text"`
	Error    string `json:"error"`
}

// ServiceConverter uploads files to a remote conversion service as a
// multipart form with a single "file" field.
type ServiceConverter struct {
	url        string
	apiKey     string
	client     *http.Client
	maxRetries int
}

// NewServiceConverter returns a converter posting to url. A nil client uses
// a dedicated client without timeout; callers bound requests by context.
func NewServiceConverter(url, apiKey string, client *http.Client, maxRetries int) *ServiceConverter {
	if client == nil {
		client = &http.Client{}
	}
	return &ServiceConverter{
		url:        url,
		apiKey:     apiKey,
		client:     client,
		maxRetries: maxRetries,
	}
}

// Name returns "service".
func (s *ServiceConverter) Name() string { return backendService }

// Accepts returns true for every format; the service decides what it supports.
func (s *ServiceConverter) Accepts(string) bool { return true }

// Convert posts the file at path to the service and returns its Markdown.
func (s *ServiceConverter) Convert(ctx context.Context, path string) (*types.Document, error) {
	body, contentType, err := buildUpload(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating conversion request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := httputil.DoWithRetry(ctx, s.client, req, s.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("calling conversion service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxServiceResponse))
	if err != nil {
		return nil, fmt.Errorf("reading conversion service response: %w", err)
	}

	var out serviceResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Error != "" {
			return nil, fmt.Errorf("conversion service returned %d: %s", resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("conversion service returned %d: %s", resp.StatusCode, snippet(raw))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding conversion service response: %w", decodeErr)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("conversion service: %s", out.Error)
	}

	markdown := out.Markdown
	if markdown == "" {
		markdown = out.Text
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, fmt.Errorf("conversion service: %w", ErrEmptyOutput)
	}

	return newDocument(path, backendService, markdown), nil
}

// buildUpload encodes the file at path as a multipart body in memory so the
// request can be replayed on retry.
func buildUpload(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("creating multipart part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finishing multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// snippet returns the start of a response body for error messages.
func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}
