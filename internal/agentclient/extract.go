// ABOUTME: File extraction call used for spreadsheet uploads
// ABOUTME: Posts the file as multipart form data and decodes the extraction result

package agentclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/2389/pitstop/internal/apperr"
	"github.com/2389/pitstop/internal/files"
	"github.com/2389/pitstop/internal/wire"
)

// extractPath is the extraction endpoint, relative to the base URL.
const extractPath = "/vehicle_service_logs/api/files/process-file"

// Extract submits f to the extraction endpoint. A 204 or empty body
// yields a nil result and no error.
func (c *Client) Extract(ctx context.Context, f files.File) (*wire.Extraction, error) {
	body, contentType, err := multipartBody(f)
	if err != nil {
		return nil, err
	}

	req, requestID, err := c.newRequest(ctx, http.MethodPost, c.baseURL+extractPath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	var result wire.Extraction
	found, err := c.doJSON(req, &result)
	if err != nil {
		c.logger.Warn("extraction failed", "file", f.Name(), "error", err, "request_id", requestID)
		return nil, fmt.Errorf("extracting %s: %w", f.Name(), err)
	}
	if !found {
		return nil, nil
	}
	return &result, nil
}

// multipartBody encodes f as the single "file" field of a form.
func multipartBody(f files.File) (*bytes.Buffer, string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, "", fmt.Errorf("%w: opening %s: %v", apperr.ErrUnreadableFile, f.Name(), err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", multipart.FileContentDisposition("file", f.Name()))
	if mt := f.MIMEType(); mt != "" {
		header.Set("Content-Type", mt)
	} else {
		header.Set("Content-Type", files.DefaultMIMEType)
	}

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("creating form part: %w", err)
	}
	if _, err := io.Copy(part, rc); err != nil {
		return nil, "", fmt.Errorf("%w: reading %s: %v", apperr.ErrUnreadableFile, f.Name(), err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}

	return &buf, mw.FormDataContentType(), nil
}
