// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/json"
	"fmt"
	"strings"
)

// classifyGitHub dispatches on the X-GitHub-Event header value.
func classifyGitHub(eventType string, body []byte) (*Event, error) {
	switch eventType {
	case "push":
		return translatePush(body)
	case "issues":
		return translateIssues(body)
	case "issue_comment":
		return translateIssueComment(body)
	case "pull_request":
		return translatePullRequest(body)
	case "create":
		return translateCreate(body)
	case "release":
		return translateRelease(body)
	case "ping":
		// Sent when a webhook is first configured. Acknowledge
		// silently.
		return nil, ErrUnhandledEvent
	default:
		// Event types GitHub adds in the future must not bounce with
		// an error, or the sender retries forever.
		return nil, ErrUnhandledEvent
	}
}

// --- Minimal GitHub payload structs ---
//
// Hand-rolled rather than pulled from an API client library: each
// webhook payload is a few fields deep and the full GitHub schema
// would dwarf the rest of the program. Unknown fields are ignored by
// encoding/json.

type ghUser struct {
	Login string `json:"login"`
}

type ghRepository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
}

type ghCommit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	URL     string `json:"url"`
}

// title returns the first line of the commit message.
func (c ghCommit) title() string {
	line, _, _ := strings.Cut(c.Message, "\n")
	return line
}

type ghPushPayload struct {
	Ref        string       `json:"ref"`
	Forced     bool         `json:"forced"`
	Deleted    bool         `json:"deleted"`
	Compare    string       `json:"compare"`
	Commits    []ghCommit   `json:"commits"`
	HeadCommit *ghCommit    `json:"head_commit"`
	Repository ghRepository `json:"repository"`
	Sender     ghUser       `json:"sender"`
}

type ghIssue struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
	User    ghUser `json:"user"`
}

type ghIssuesPayload struct {
	Action     string       `json:"action"`
	Issue      ghIssue      `json:"issue"`
	Repository ghRepository `json:"repository"`
	Sender     ghUser       `json:"sender"`
}

type ghComment struct {
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	User    ghUser `json:"user"`
}

type ghIssueCommentPayload struct {
	Action     string       `json:"action"`
	Issue      ghIssue      `json:"issue"`
	Comment    ghComment    `json:"comment"`
	Repository ghRepository `json:"repository"`
}

type ghPullRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Merged  bool   `json:"merged"`
	HTMLURL string `json:"html_url"`
	User    ghUser `json:"user"`
}

type ghPullRequestPayload struct {
	Action      string        `json:"action"`
	PullRequest ghPullRequest `json:"pull_request"`
	Repository  ghRepository  `json:"repository"`
	Sender      ghUser        `json:"sender"`
}

type ghCreatePayload struct {
	Ref        string       `json:"ref"`
	RefType    string       `json:"ref_type"`
	Repository ghRepository `json:"repository"`
	Sender     ghUser       `json:"sender"`
}

type ghRelease struct {
	Name    string `json:"name"`
	TagName string `json:"tag_name"`
	Draft   bool   `json:"draft"`
	HTMLURL string `json:"html_url"`
	Author  ghUser `json:"author"`
}

type ghReleasePayload struct {
	Action     string       `json:"action"`
	Release    ghRelease    `json:"release"`
	Repository ghRepository `json:"repository"`
}

// --- Per-event-type translators ---

func translatePush(body []byte) (*Event, error) {
	var payload ghPushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformed("push", err)
	}
	if payload.Repository.FullName == "" {
		return nil, malformed("push", fmt.Errorf("missing repository.full_name"))
	}
	if payload.Deleted {
		// Branch/tag deletions carry no commits and are noise for a
		// chat channel.
		return nil, ErrUnhandledEvent
	}

	branch, ok := strings.CutPrefix(payload.Ref, "refs/heads/")
	if !ok {
		// Tag pushes arrive as refs/tags/...; the create event already
		// announces the tag, so the push form is noise.
		return nil, ErrUnhandledEvent
	}

	var headTitle string
	if payload.HeadCommit != nil {
		headTitle = payload.HeadCommit.title()
	}

	return &Event{
		Type: KindPush,
		Push: &PushEvent{
			Repo:        payload.Repository.FullName,
			Sender:      payload.Sender.Login,
			Branch:      branch,
			CommitCount: len(payload.Commits),
			HeadTitle:   headTitle,
			Forced:      payload.Forced,
			URL:         payload.Compare,
		},
	}, nil
}

func translateIssues(body []byte) (*Event, error) {
	var payload ghIssuesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformed("issues", err)
	}
	if payload.Repository.FullName == "" {
		return nil, malformed("issues", fmt.Errorf("missing repository.full_name"))
	}

	switch payload.Action {
	case "opened", "closed", "reopened":
	default:
		// Label/assignment churn is noise for a chat channel.
		return nil, ErrUnhandledEvent
	}

	return &Event{
		Type: KindIssue,
		Issue: &IssueEvent{
			Repo:   payload.Repository.FullName,
			Action: payload.Action,
			Number: payload.Issue.Number,
			Title:  payload.Issue.Title,
			Author: payload.Sender.Login,
			URL:    payload.Issue.HTMLURL,
		},
	}, nil
}

func translateIssueComment(body []byte) (*Event, error) {
	var payload ghIssueCommentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformed("issue_comment", err)
	}
	if payload.Repository.FullName == "" {
		return nil, malformed("issue_comment", fmt.Errorf("missing repository.full_name"))
	}

	// New comments only. Edits and deletions are not worth a ping.
	if payload.Action != "created" {
		return nil, ErrUnhandledEvent
	}

	return &Event{
		Type: KindComment,
		Comment: &CommentEvent{
			Repo:    payload.Repository.FullName,
			Author:  payload.Comment.User.Login,
			Number:  payload.Issue.Number,
			Excerpt: shorten(payload.Comment.Body),
			URL:     payload.Comment.HTMLURL,
		},
	}, nil
}

func translatePullRequest(body []byte) (*Event, error) {
	var payload ghPullRequestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformed("pull_request", err)
	}
	if payload.Repository.FullName == "" {
		return nil, malformed("pull_request", fmt.Errorf("missing repository.full_name"))
	}

	// GitHub uses "closed" for both close and merge.
	action := payload.Action
	if action == "closed" && payload.PullRequest.Merged {
		action = "merged"
	}

	switch action {
	case "opened", "closed", "reopened", "merged", "ready_for_review":
	default:
		return nil, ErrUnhandledEvent
	}

	return &Event{
		Type: KindPullRequest,
		PullRequest: &PullRequestEvent{
			Repo:   payload.Repository.FullName,
			Action: action,
			Number: payload.PullRequest.Number,
			Title:  payload.PullRequest.Title,
			Author: payload.Sender.Login,
			URL:    payload.PullRequest.HTMLURL,
		},
	}, nil
}

func translateCreate(body []byte) (*Event, error) {
	var payload ghCreatePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformed("create", err)
	}
	if payload.Repository.FullName == "" {
		return nil, malformed("create", fmt.Errorf("missing repository.full_name"))
	}

	// Branch creations are ignored; the push event for the branch is
	// the interesting one. Tags get announced.
	if payload.RefType != "tag" {
		return nil, ErrUnhandledEvent
	}

	return &Event{
		Type: KindTag,
		Tag: &TagEvent{
			Repo:   payload.Repository.FullName,
			Sender: payload.Sender.Login,
			Tag:    payload.Ref,
			URL:    payload.Repository.HTMLURL + "/releases/tag/" + payload.Ref,
		},
	}, nil
}

func translateRelease(body []byte) (*Event, error) {
	var payload ghReleasePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformed("release", err)
	}
	if payload.Repository.FullName == "" {
		return nil, malformed("release", fmt.Errorf("missing repository.full_name"))
	}

	if payload.Action != "published" || payload.Release.Draft {
		return nil, ErrUnhandledEvent
	}

	name := payload.Release.Name
	if name == "" {
		name = payload.Release.TagName
	}

	return &Event{
		Type: KindRelease,
		Release: &ReleaseEvent{
			Repo:   payload.Repository.FullName,
			Name:   name,
			Author: payload.Release.Author.Login,
			URL:    payload.Release.HTMLURL,
		},
	}, nil
}
