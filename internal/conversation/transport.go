// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"

	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/transport"
)

// ChunkStream is the raw response of one turn. Next returns io.EOF at the
// clean end and transport.ErrCancelled after cancellation.
type ChunkStream interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Transport is what the controller needs from the network.
type Transport interface {
	OpenStream(ctx context.Context, turn protocol.OutgoingTurn) (ChunkStream, error)
	Upload(ctx context.Context, path string) (protocol.UploadResult, error)
	ChatMessages(ctx context.Context, id protocol.ChatID) ([]protocol.HistoryMessage, error)
}

// HTTPTransport adapts a transport.Client to Transport.
func HTTPTransport(c *transport.Client) Transport {
	return httpTransport{c}
}

type httpTransport struct {
	client *transport.Client
}

func (t httpTransport) OpenStream(ctx context.Context, turn protocol.OutgoingTurn) (ChunkStream, error) {
	s, err := t.client.OpenStream(ctx, turn)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (t httpTransport) Upload(ctx context.Context, path string) (protocol.UploadResult, error) {
	return t.client.Upload(ctx, path)
}

func (t httpTransport) ChatMessages(ctx context.Context, id protocol.ChatID) ([]protocol.HistoryMessage, error) {
	return t.client.ChatMessages(ctx, id)
}
