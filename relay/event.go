// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the webhook-to-Matrix pipeline: signature
// verification, event classification, message formatting, room
// routing, and deduplicated delivery.
//
// The pipeline is a straight line. The HTTP handler verifies the raw
// body against the source's secret, classifies it into a typed Event,
// formats the event into message text, resolves destination rooms from
// the source's routing rules, and hands the result to the delivery
// engine. Each stage is a pure function over its inputs except the
// engine, which owns the only mutable state (the delivery log and the
// per-room send queues).
package relay

import "fmt"

// Kind identifies an event variant.
type Kind string

// Supported event kinds.
const (
	KindPush        Kind = "push"
	KindIssue       Kind = "issue"
	KindComment     Kind = "comment"
	KindPullRequest Kind = "pull_request"
	KindTag         Kind = "tag"
	KindRelease     Kind = "release"
	KindSiteDeploy  Kind = "site_deploy"
	KindSiteError   Kind = "site_error"
)

// Event is a tagged union over the supported webhook event variants.
// Exactly one variant pointer is non-nil, matching Type. Each variant
// carries only the fields the formatter needs; everything else in the
// webhook payload is dropped at the classification boundary.
type Event struct {
	Type Kind

	Push        *PushEvent
	Issue       *IssueEvent
	Comment     *CommentEvent
	PullRequest *PullRequestEvent
	Tag         *TagEvent
	Release     *ReleaseEvent
	SiteDeploy  *SiteDeployEvent
	SiteError   *SiteErrorEvent
}

// PushEvent is a batch of commits pushed to a branch.
type PushEvent struct {
	Repo        string
	Sender      string
	Branch      string
	CommitCount int
	// HeadTitle is the first line of the head commit message, empty
	// for pushes that delete the ref.
	HeadTitle string
	Forced    bool
	URL       string
}

// IssueEvent is an issue lifecycle change (opened, closed, reopened).
type IssueEvent struct {
	Repo   string
	Action string
	Number int
	Title  string
	Author string
	URL    string
}

// CommentEvent is a new comment on an issue or pull request.
type CommentEvent struct {
	Repo   string
	Author string
	Number int
	// Excerpt is the comment body, truncated for display.
	Excerpt string
	URL     string
}

// PullRequestEvent is a pull request lifecycle change. Action is
// normalized: a close that merged the PR becomes "merged".
type PullRequestEvent struct {
	Repo   string
	Action string
	Number int
	Title  string
	Author string
	URL    string
}

// TagEvent is a tag creation. Branch creations are intentionally not
// translated into events; only tags are announced.
type TagEvent struct {
	Repo   string
	Sender string
	Tag    string
	URL    string
}

// ReleaseEvent is a published release.
type ReleaseEvent struct {
	Repo   string
	Name   string
	Author string
	URL    string
}

// SiteDeployEvent is a website deployment notification.
type SiteDeployEvent struct {
	Version string
	URL     string
}

// SiteErrorEvent is an unhandled exception reported by the website.
type SiteErrorEvent struct {
	// User is the authenticated user on the failing request, empty
	// for anonymous requests.
	User      string
	Method    string
	Path      string
	Exception string
}

// RoutingKey derives the string the routing rules match against.
// Push-like events key on "repo:ref" so rules can target a single
// branch or tag; other forge events key on the bare repo; website
// events key on "site:<kind>".
func (e *Event) RoutingKey() string {
	switch e.Type {
	case KindPush:
		return e.Push.Repo + ":" + e.Push.Branch
	case KindTag:
		return e.Tag.Repo + ":" + e.Tag.Tag
	case KindIssue:
		return e.Issue.Repo
	case KindComment:
		return e.Comment.Repo
	case KindPullRequest:
		return e.PullRequest.Repo
	case KindRelease:
		return e.Release.Repo
	case KindSiteDeploy:
		return "site:deploy"
	case KindSiteError:
		return "site:error"
	default:
		panic(fmt.Sprintf("relay: event with unknown kind %q", e.Type))
	}
}
