// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/calliope-tui/internal/protocol"
)

// Upload sends a local file as an attachment. Failures are returned as
// *protocol.UploadError; cancellation as ErrCancelled. Uploads are never
// retried.
func (c *Client) Upload(ctx context.Context, path string) (protocol.UploadResult, error) {
	name := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		return protocol.UploadResult{}, &protocol.UploadError{Filename: name, Message: "cannot open file", Cause: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return protocol.UploadResult{}, &protocol.UploadError{Filename: name, Message: "cannot stat file", Cause: err}
	}
	if info.IsDir() {
		return protocol.UploadResult{}, &protocol.UploadError{Filename: name, Message: "is a directory"}
	}
	if info.Size() > MaxUploadSize {
		return protocol.UploadResult{}, &protocol.UploadError{Filename: name, Message: "file too large", Cause: ErrFileTooLarge}
	}

	return c.UploadReader(ctx, name, f)
}

// UploadReader sends r as an attachment named name.
func (c *Client) UploadReader(ctx context.Context, name string, r io.Reader) (protocol.UploadResult, error) {
	const op = "upload"

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return protocol.UploadResult{}, &protocol.UploadError{Filename: name, Message: "cannot encode file", Cause: err}
	}
	n, err := io.Copy(part, io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return protocol.UploadResult{}, &protocol.UploadError{Filename: name, Message: "cannot read file", Cause: err}
	}
	if n > MaxUploadSize {
		return protocol.UploadResult{}, &protocol.UploadError{Filename: name, Message: "file too large", Cause: ErrFileTooLarge}
	}
	if err := mw.Close(); err != nil {
		return protocol.UploadResult{}, &protocol.UploadError{Filename: name, Message: "cannot encode file", Cause: err}
	}

	if err := c.wait(ctx, op); err != nil {
		return protocol.UploadResult{}, uploadFailure(name, err)
	}

	req, id, err := c.newRequest(ctx, http.MethodPost, c.endpoint(c.uploadPath), &body)
	if err != nil {
		return protocol.UploadResult{}, &protocol.UploadError{Filename: name, Message: "cannot build request", Cause: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return protocol.UploadResult{}, uploadFailure(name, c.classify(ctx, op, err))
	}
	defer resp.Body.Close()

	raw, err := readResponse(resp)
	if err != nil {
		return protocol.UploadResult{}, uploadFailure(name, c.classify(ctx, op, err))
	}

	var result protocol.UploadResult
	decodeErr := json.Unmarshal(raw, &result)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || decodeErr != nil || !result.Success {
		msg := strings.TrimSpace(result.Error)
		if msg == "" {
			msg = fmt.Sprintf("upload failed (HTTP %d)", resp.StatusCode)
		}
		c.logger.Warn("upload rejected",
			zap.String("request_id", id),
			zap.String("file", name),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return result, &protocol.UploadError{Filename: name, Message: msg, Cause: decodeErr}
	}

	if result.Filename == "" {
		result.Filename = name
	}
	c.logger.Debug("upload complete",
		zap.String("request_id", id),
		zap.String("file", result.Filename),
		zap.Int("bytes", len(result.Content)))
	return result, nil
}

// uploadFailure wraps a transport failure; cancellation passes through.
func uploadFailure(name string, err error) error {
	if errors.Is(err, ErrCancelled) {
		return err
	}
	return &protocol.UploadError{Filename: name, Message: "upload failed", Cause: err}
}
