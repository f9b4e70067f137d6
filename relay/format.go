// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "fmt"

// separator sits between the message text and the trailing URL.
const separator = "⋅"

// maxExcerptRunes bounds quoted titles and exception text.
const maxExcerptRunes = 72

// unknownField is rendered for payload fields that were absent.
const unknownField = "(unknown)"

// Format renders an event as a single line of message text. It is
// pure and total over the supported kinds: same event, same bytes,
// no error case. Absent fields render as a placeholder instead of
// failing, so a sparse payload still produces a usable message.
//
// The output is markdown; the delivery path renders it to HTML for
// the formatted message body, with the raw text as the plain-text
// fallback.
func Format(event *Event) string {
	switch event.Type {
	case KindPush:
		return formatPush(event.Push)
	case KindIssue:
		e := event.Issue
		return fmt.Sprintf("[%s] %s %s issue #%d: %s %s %s",
			orUnknown(e.Repo), orUnknown(e.Author), orUnknown(e.Action),
			e.Number, shorten(e.Title), separator, e.URL)
	case KindComment:
		e := event.Comment
		return fmt.Sprintf("[%s] %s commented on #%d: %s %s %s",
			orUnknown(e.Repo), orUnknown(e.Author), e.Number,
			shorten(e.Excerpt), separator, e.URL)
	case KindPullRequest:
		e := event.PullRequest
		return fmt.Sprintf("[%s] %s %s PR #%d: %s %s %s",
			orUnknown(e.Repo), orUnknown(e.Author), orUnknown(e.Action),
			e.Number, shorten(e.Title), separator, e.URL)
	case KindTag:
		e := event.Tag
		return fmt.Sprintf("[%s] %s created tag %s %s %s",
			orUnknown(e.Repo), orUnknown(e.Sender), orUnknown(e.Tag),
			separator, e.URL)
	case KindRelease:
		e := event.Release
		return fmt.Sprintf("[%s] %s published release %s %s %s",
			orUnknown(e.Repo), orUnknown(e.Author), orUnknown(e.Name),
			separator, e.URL)
	case KindSiteDeploy:
		e := event.SiteDeploy
		return fmt.Sprintf("[prolosite] deployed version %s %s %s",
			orUnknown(e.Version), separator, e.URL)
	case KindSiteError:
		return formatSiteError(event.SiteError)
	default:
		panic(fmt.Sprintf("relay: format for unknown kind %q", event.Type))
	}
}

func formatPush(e *PushEvent) string {
	verb := "pushed"
	if e.Forced {
		verb = "force-pushed"
	}

	commitWord := "commit"
	if e.CommitCount != 1 {
		commitWord = "commits"
	}

	line := fmt.Sprintf("[%s] %s %s %d %s to %s",
		orUnknown(e.Repo), orUnknown(e.Sender), verb,
		e.CommitCount, commitWord, orUnknown(e.Branch))
	if e.HeadTitle != "" {
		line += ": " + shorten(e.HeadTitle)
	}
	return line + " " + separator + " " + e.URL
}

func formatSiteError(e *SiteErrorEvent) string {
	line := "[prolosite] django crash"
	if e.User != "" {
		line += " (" + e.User + ")"
	}
	return fmt.Sprintf("%s %s %s: %s",
		line, orUnknown(e.Method), orUnknown(e.Path), orUnknown(e.Exception))
}

func orUnknown(s string) string {
	if s == "" {
		return unknownField
	}
	return s
}

// shorten truncates content to maxExcerptRunes runes, marking the cut
// with an ellipsis. Rune-based so multi-byte text never splits.
func shorten(content string) string {
	runes := []rune(content)
	if len(runes) <= maxExcerptRunes {
		return content
	}
	return string(runes[:maxExcerptRunes]) + "…"
}
