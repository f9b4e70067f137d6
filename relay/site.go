// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/json"
	"fmt"
)

// classifySite dispatches on the X-Prolosite-Event header value.
func classifySite(eventType string, body []byte) (*Event, error) {
	switch eventType {
	case "deploy":
		return translateSiteDeploy(body)
	case "error":
		return translateSiteError(body)
	case "forum", "new-school":
		// Declared by the website but not announced anywhere yet.
		return nil, ErrUnhandledEvent
	default:
		return nil, ErrUnhandledEvent
	}
}

type siteDeployPayload struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// siteErrorPayload mirrors the website's unhandled-exception report.
type siteErrorPayload struct {
	Request struct {
		User   string `json:"user"`
		Method string `json:"method"`
		Path   string `json:"path"`
	} `json:"request"`
	Exception struct {
		Value string `json:"value"`
		Trace string `json:"trace"`
	} `json:"exception"`
}

func translateSiteDeploy(body []byte) (*Event, error) {
	var payload siteDeployPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformed("deploy", err)
	}
	if payload.Version == "" {
		return nil, malformed("deploy", fmt.Errorf("missing version"))
	}

	return &Event{
		Type: KindSiteDeploy,
		SiteDeploy: &SiteDeployEvent{
			Version: payload.Version,
			URL:     payload.URL,
		},
	}, nil
}

func translateSiteError(body []byte) (*Event, error) {
	var payload siteErrorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformed("error", err)
	}
	if payload.Exception.Value == "" {
		return nil, malformed("error", fmt.Errorf("missing exception.value"))
	}

	return &Event{
		Type: KindSiteError,
		SiteError: &SiteErrorEvent{
			User:      payload.Request.User,
			Method:    payload.Request.Method,
			Path:      payload.Request.Path,
			Exception: shorten(payload.Exception.Value),
		},
	}, nil
}
