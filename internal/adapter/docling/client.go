package docling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoText marks a document the converter could read but found no usable
// text in. The pipeline treats it the same as any extraction failure.
var ErrNoText = errors.New("no extractable text in document")

// Client talks to a docling conversion service to turn uploaded documents
// into plain text. Plain-text formats short-circuit without a network call.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Extract converts the document bytes to plain text.
func (c *Client) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".csv":
		text := string(data)
		if strings.TrimSpace(text) == "" {
			return "", ErrNoText
		}
		return text, nil
	}

	slog.DebugContext(ctx, "converting document via docling", "filename", filename, "bytes", len(data))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", filepath.Base(filename))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1alpha/convert/file", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("docling request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("docling returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out struct {
		Document struct {
			MdContent   string `json:"md_content"`
			TextContent string `json:"text_content"`
		} `json:"document"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode docling response: %w", err)
	}

	text := out.Document.TextContent
	if text == "" {
		text = out.Document.MdContent
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}
