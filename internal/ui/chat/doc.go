// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat is the Bubble Tea front end of calliope.

It renders a conversation driven by a conversation.Controller and turns key
presses and slash commands into controller calls.

# Key Components

## Sink (streaming.go)

Sink implements conversation.Sink and conversation.Observer. The controller
calls it from the request goroutine; every call becomes a tea.Msg queued in
an ordered mailbox and delivered to the program by a single goroutine.
Posting never blocks, so controller calls made from inside Update (NewChat,
for example) cannot deadlock the event loop. Consecutive streamed segments of
one message merge while they wait and are delivered at most 30 times a
second.

## Model (model.go, input.go, commands.go)

Model owns the textarea composer, the transcript viewport, the spinner and
the history pane. Sends, loads and history refreshes run as tea.Cmds under a
context that quitting cancels.

## View (view.go)

Finished assistant messages that look like markdown are rendered through
glamour; streaming text is shown as styled citation segments with their
source ids. Cancellation notices use the amber notice style, server errors
the error style.

# Usage

	sink := chat.NewSink()
	ctrl := conversation.NewController(conversation.HTTPTransport(client), sink, store)
	model := chat.New(chat.Options{Conversation: ctrl, History: store})
	p := tea.NewProgram(model, tea.WithAltScreen())
	sink.Attach(p)
	defer sink.Close()
	_, err := p.Run()
*/
package chat
