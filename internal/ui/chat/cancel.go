// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// =============================================================================
// BACKGROUND CONTEXT (THREAD-SAFE)
// =============================================================================

// cancelManager owns the context that background commands (send, load,
// history refresh, export) run under. Quitting cancels it so no command
// outlives the program.
// IMPORTANT: keep it behind a pointer in Model; Bubble Tea copies the model
// on every Update.
type cancelManager struct {
	mu         sync.Mutex
	ctx        context.Context
	cancelFunc context.CancelFunc
}

func newCancelManager(parent context.Context) *cancelManager {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &cancelManager{ctx: ctx, cancelFunc: cancel}
}

// context returns the shared context.
func (cm *cancelManager) context() context.Context {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.ctx
}

// cancel cancels the context. Safe to call more than once.
func (cm *cancelManager) cancel() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancelFunc != nil {
		cm.cancelFunc()
		cm.cancelFunc = nil
	}
}
