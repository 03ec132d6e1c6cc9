// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jeranaias/calliope-tui/internal/config"
	"github.com/jeranaias/calliope-tui/internal/conversation"
	"github.com/jeranaias/calliope-tui/internal/history"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/storage"
	"github.com/jeranaias/calliope-tui/internal/transport"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app holds the services shared by the chat front ends and the offline
// commands.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	version     protocol.Version
	client      *transport.Client
	cache       *history.Cache // nil when the cache could not be opened
	history     *history.Store
	transcripts *storage.TranscriptStore // nil when the directory is unusable
}

// appOptions tweak wiring for a particular front end.
type appOptions struct {
	// onHistoryChange runs after every history store mutation.
	onHistoryChange func()
}

// newApp builds the transport client and the local stores from cfg. A
// history cache or transcript directory that cannot be opened is logged and
// skipped; chatting still works without them.
func newApp(ctx context.Context, c *config.Config, l *zap.Logger, opts appOptions) (*app, error) {
	version, err := protocol.ParseVersion(c.Protocol.Version)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	a := &app{cfg: c, logger: l, version: version}
	a.client = newClient(c, version, l)

	if path, err := c.HistoryCachePath(); err == nil {
		cache, err := history.OpenCache(path)
		if err != nil {
			l.Warn("history cache unavailable", zap.String("path", path), zap.Error(err))
		} else {
			a.cache = cache
		}
	}

	storeOpts := []history.Option{
		history.WithLister(a.client),
		history.WithLogger(l),
	}
	if a.cache != nil {
		storeOpts = append(storeOpts, history.WithCache(a.cache))
	}
	if opts.onHistoryChange != nil {
		storeOpts = append(storeOpts, history.WithOnChange(opts.onHistoryChange))
	}
	a.history = history.NewStore(storeOpts...)
	if n, err := a.history.Load(ctx); err != nil {
		l.Warn("failed to load cached history", zap.Error(err))
	} else {
		l.Debug("history loaded from cache", zap.Int("entries", n))
	}

	if dir, err := c.TranscriptDir(); err == nil {
		ts, err := storage.NewTranscriptStoreWithDir(dir)
		if err != nil {
			l.Warn("transcripts disabled", zap.String("dir", dir), zap.Error(err))
		} else {
			ts.MaxConversations = c.Storage.MaxConversations
			a.transcripts = ts
		}
	}
	return a, nil
}

// newClient configures the HTTP client from the server section.
func newClient(c *config.Config, version protocol.Version, l *zap.Logger) *transport.Client {
	return transport.NewClient(c.Server.BaseURL).
		WithPaths(c.Server.ChatPath, c.Server.UploadPath, c.Server.ChatsPath).
		WithMemoriesPath(c.Server.MemoriesPath).
		WithVersion(version).
		WithSessionCookie(c.Server.SessionCookie).
		WithAPIToken(c.Server.APIToken).
		WithRateLimit(c.Server.RequestsPerSecond).
		WithTimeout(c.Server.ConnectTimeout()).
		WithRetry(c.Server.MaxRetries, 0).
		WithLogger(l)
}

// controller builds a conversation controller rendering into sink.
func (a *app) controller(sink conversation.Sink, extra ...conversation.Option) *conversation.Controller {
	opts := []conversation.Option{
		conversation.WithLogger(a.logger),
		conversation.WithVersion(a.version),
		conversation.WithCancellationNotice(a.cfg.Chat.CancellationNotice),
		conversation.WithSourceRegistry(conversation.NewSourceRegistry(a.cfg.Chat.RetainedMessages)),
		conversation.WithObserver(conversation.ObserverFunc(a.logEvent)),
	}
	if a.transcripts != nil {
		opts = append(opts, conversation.WithRecorder(a.transcripts))
	}
	opts = append(opts, extra...)
	return conversation.NewController(conversation.HTTPTransport(a.client), sink, a.history, opts...)
}

// logEvent traces controller events after the sink has seen them.
func (a *app) logEvent(ev conversation.Event) {
	a.logger.Debug("conversation event", zap.String("event", ev.EventName()))
}

// transcript returns the local transcript for a chat, falling back to the
// server's copy when none was recorded here.
func (a *app) transcript(ctx context.Context, id protocol.ChatID) (*storage.Transcript, error) {
	if a.transcripts != nil {
		t, err := a.transcripts.Load(id.String())
		if err == nil {
			return t, nil
		}
		a.logger.Debug("no local transcript, asking the server",
			zap.String("chat_id", id.String()), zap.Error(err))
	}

	msgs, err := a.client.ChatMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch chat %s: %w", id, err)
	}
	title := ""
	if e, ok := a.history.Get(id); ok {
		title = e.DisplayTitle()
	}
	return storage.FromHistory(id, title, msgs), nil
}

// Close releases the history cache.
func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close history cache", zap.Error(err))
		}
	}
}
