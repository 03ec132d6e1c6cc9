// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/calliope-tui/internal/protocol"
)

// =============================================================================
// MEMORY ENDPOINTS
// =============================================================================

// ListMemoryCategories fetches the categories memories are filed under.
func (c *Client) ListMemoryCategories(ctx context.Context) ([]protocol.MemoryCategory, error) {
	var cats []protocol.MemoryCategory
	if err := c.getJSON(ctx, "memory-categories", c.memoriesPath+"/categories", &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// ListMemories fetches one page of saved memories.
func (c *Client) ListMemories(ctx context.Context, q protocol.MemoryQuery) (protocol.MemoryPage, error) {
	params := url.Values{}
	if q.CategoryID > 0 {
		params.Set("category_id", strconv.FormatInt(q.CategoryID, 10))
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(q.PerPage))
	}
	path := c.memoriesPath
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var page protocol.MemoryPage
	if err := c.getJSON(ctx, "memories", path, &page); err != nil {
		return protocol.MemoryPage{}, err
	}
	return page, nil
}

// CreateMemory saves a new memory and returns its id.
func (c *Client) CreateMemory(ctx context.Context, in protocol.MemoryInput) (int64, error) {
	if err := in.ValidateNew(); err != nil {
		return 0, &protocol.TransportError{Op: "memory-create", Cause: err}
	}
	var reply struct {
		MemoryID int64 `json:"memory_id"`
	}
	if err := c.sendJSON(ctx, "memory-create", http.MethodPost, c.memoriesPath, in, &reply); err != nil {
		return 0, err
	}
	return reply.MemoryID, nil
}

// UpdateMemory changes the set fields of a memory.
func (c *Client) UpdateMemory(ctx context.Context, id int64, in protocol.MemoryInput) error {
	if in.IsEmpty() {
		return &protocol.TransportError{Op: "memory-update", Cause: errors.New("nothing to update")}
	}
	return c.sendJSON(ctx, "memory-update", http.MethodPut, c.memoryPath(id), in, nil)
}

// DeleteMemory removes a memory.
func (c *Client) DeleteMemory(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, "memory-delete", http.MethodDelete, c.memoryPath(id), nil, nil)
}

// VerifyMemory marks a memory as confirmed by the user.
func (c *Client) VerifyMemory(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, "memory-verify", http.MethodPost, c.memoryPath(id)+"/verify", nil, nil)
}

func (c *Client) memoryPath(id int64) string {
	return c.memoriesPath + "/" + strconv.FormatInt(id, 10)
}

// apiReply is the envelope of the server's write endpoints.
type apiReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// sendJSON performs a write request. Writes are never retried.
func (c *Client) sendJSON(ctx context.Context, op, method, path string, in, out any) error {
	if err := c.wait(ctx, op); err != nil {
		return err
	}

	var body *bytes.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &protocol.TransportError{Op: op, Cause: fmt.Errorf("failed to marshal request: %w", err)}
		}
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, id, err := c.newRequest(ctx, method, c.endpoint(path), body)
	if err != nil {
		return &protocol.TransportError{Op: op, Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classify(ctx, op, err)
	}
	defer resp.Body.Close()

	raw, err := readResponse(resp)
	if err != nil {
		return c.classify(ctx, op, err)
	}

	var reply apiReply
	_ = json.Unmarshal(raw, &reply)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(reply.Error)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.logger.Warn("request rejected",
			zap.String("op", op),
			zap.String("request_id", id),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return &protocol.TransportError{Op: op, StatusCode: resp.StatusCode, Cause: errors.New(msg)}
	}
	c.logger.Debug("response",
		zap.String("op", op),
		zap.String("request_id", id),
		zap.Int("status", resp.StatusCode))

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &protocol.TransportError{Op: op, StatusCode: resp.StatusCode, Cause: fmt.Errorf("failed to parse response: %w", err)}
		}
	}
	return nil
}
