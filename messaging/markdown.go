// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdownInstance is initialized once and reused. The goldmark
// converter is safe to share; each Convert call creates its own
// parse state.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownInstance
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
	}
}

// NewMarkdownMessage creates a message whose formatted_body is the
// HTML rendering of the given markdown. The plain-text body keeps the
// markdown source, which is the standard Matrix fallback for clients
// that do not render HTML. If rendering fails (it should not for any
// input goldmark accepts), the message degrades to plain text.
func NewMarkdownMessage(markdown string) MessageContent {
	var html bytes.Buffer
	if err := getMarkdown().Convert([]byte(markdown), &html); err != nil {
		return NewTextMessage(markdown)
	}

	return MessageContent{
		MsgType:       "m.text",
		Body:          markdown,
		Format:        "org.matrix.custom.html",
		FormattedBody: strings.TrimSpace(html.String()),
	}
}
