// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prologin/prololo/lib/config"
	"github.com/prologin/prololo/lib/metrics"
	"github.com/prologin/prololo/lib/ref"
	"github.com/prologin/prololo/messaging"
)

// maxWebhookBodySize caps accepted payload sizes. GitHub's documented
// maximum is ~25 MB for push events with large commit histories; 32 MB
// gives headroom.
const maxWebhookBodySize = 32 * 1024 * 1024

// Handler is the webhook ingestion endpoint. It runs the pipeline for
// one request: source lookup, signature verification, classification,
// formatting, routing, and enqueueing into the delivery engine.
//
// Response codes follow webhook-sender semantics: non-2xx makes the
// sender retry, so only authentication failures (401) and schema
// mismatches (400) are rejected. Ignored event kinds and routing
// misses return 202; queued messages return 200. Delivery failures
// never change the HTTP response — a sender retry of an
// already-delivered webhook would re-send to rooms the dedup log no
// longer covers.
type Handler struct {
	config  *config.Config
	engine  *Engine
	rooms   func(ref.RoomTarget) (ref.RoomID, bool)
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	// Config supplies source definitions. Required.
	Config *config.Config

	// Engine receives formatted messages. Required.
	Engine *Engine

	// Rooms resolves a configured room target to a concrete room ID.
	// Aliases are resolved at startup; this is the lookup into that
	// result. Required.
	Rooms func(ref.RoomTarget) (ref.RoomID, bool)

	// Logger for request outcomes. Required.
	Logger *slog.Logger

	// Metrics receives ingestion counters. Optional.
	Metrics *metrics.Metrics
}

// NewHandler creates the ingestion handler. Panics on missing required
// configuration.
func NewHandler(hc HandlerConfig) *Handler {
	if hc.Config == nil {
		panic("Handler: Config is required")
	}
	if hc.Engine == nil {
		panic("Handler: Engine is required")
	}
	if hc.Rooms == nil {
		panic("Handler: Rooms is required")
	}
	if hc.Logger == nil {
		panic("Handler: Logger is required")
	}
	return &Handler{
		config:  hc.Config,
		engine:  hc.Engine,
		rooms:   hc.Rooms,
		logger:  hc.Logger,
		metrics: hc.Metrics,
	}
}

// Register mounts the handler on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/webhooks/{source}", h)
}

// ServeHTTP handles one webhook request. Expects to be mounted with a
// {source} path wildcard (see Register).
func (h *Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	sourceID := request.PathValue("source")
	source := h.config.Source(sourceID)
	if source == nil {
		h.logger.Warn("webhook: unknown source",
			"source", sourceID,
			"remote_addr", request.RemoteAddr,
		)
		h.countReceived(sourceID, "unknown_source")
		http.Error(writer, "", http.StatusNotFound)
		return
	}

	// Read the body first; HMAC verification needs the raw bytes.
	body, err := io.ReadAll(io.LimitReader(request.Body, maxWebhookBodySize))
	if err != nil {
		h.logger.Error("webhook: failed to read body", "source", sourceID, "error", err)
		http.Error(writer, "", http.StatusInternalServerError)
		return
	}
	if len(body) == 0 {
		h.countReceived(sourceID, "malformed")
		http.Error(writer, "", http.StatusBadRequest)
		return
	}

	if err := h.verify(source, body, request); err != nil {
		h.logger.Warn("webhook: verification failed",
			"source", sourceID,
			"error", err,
			"remote_addr", request.RemoteAddr,
		)
		h.countReceived(sourceID, "unauthorized")
		// 401 with no information disclosure.
		http.Error(writer, "", http.StatusUnauthorized)
		return
	}

	eventType, deliveryID := eventHeaders(source.Kind, request)
	if eventType == "" {
		h.logger.Warn("webhook: missing event type header", "source", sourceID)
		h.countReceived(sourceID, "malformed")
		http.Error(writer, "", http.StatusBadRequest)
		return
	}

	event, err := Classify(source.Kind, eventType, body)
	switch {
	case errors.Is(err, ErrUnhandledEvent):
		h.logger.Debug("webhook: ignored event type",
			"source", sourceID,
			"event_type", eventType,
			"delivery_id", deliveryID,
		)
		h.countReceived(sourceID, "ignored")
		writer.WriteHeader(http.StatusAccepted)
		return
	case err != nil:
		h.logger.Error("webhook: malformed payload",
			"source", sourceID,
			"event_type", eventType,
			"delivery_id", deliveryID,
			"error", err,
		)
		h.countReceived(sourceID, "malformed")
		http.Error(writer, "", http.StatusBadRequest)
		return
	}

	targets := Resolve(source, event)
	if len(targets) == 0 {
		h.logger.Debug("webhook: no routing rule matched",
			"source", sourceID,
			"routing_key", event.RoutingKey(),
			"delivery_id", deliveryID,
		)
		h.countReceived(sourceID, "unrouted")
		writer.WriteHeader(http.StatusAccepted)
		return
	}

	message := messaging.NewMarkdownMessage(Format(event))
	for _, target := range targets {
		roomID, ok := h.rooms(target)
		if !ok {
			// Every configured room resolves at startup, so this is a
			// directory bug, not a request problem.
			h.logger.Error("webhook: configured room not resolved",
				"source", sourceID,
				"room", target,
			)
			continue
		}
		h.engine.Enqueue(deliveryID, roomID, message)
	}

	h.logger.Info("webhook accepted",
		"source", sourceID,
		"event_type", eventType,
		"delivery_id", deliveryID,
		"rooms", len(targets),
	)
	h.countReceived(sourceID, "accepted")
	writer.WriteHeader(http.StatusOK)
}

// verify authenticates the raw body against the source's secret, using
// the scheme the source kind mandates. The payload is never inspected
// before this check.
func (h *Handler) verify(source *config.SourceConfig, body []byte, request *http.Request) error {
	switch source.Kind {
	case config.KindGitHub:
		return VerifyHMAC(source.Secret, body, request.Header.Get("X-Hub-Signature-256"))
	case config.KindSite:
		return VerifyBearer(source.Secret, request.Header.Get("Authorization"))
	default:
		panic("relay: unknown source kind " + source.Kind)
	}
}

// eventHeaders extracts the event type and delivery ID headers for the
// source kind. The delivery ID may be empty; deduplication is then
// skipped for that request.
func eventHeaders(kind string, request *http.Request) (eventType, deliveryID string) {
	switch kind {
	case config.KindGitHub:
		return request.Header.Get("X-GitHub-Event"), request.Header.Get("X-GitHub-Delivery")
	case config.KindSite:
		return request.Header.Get("X-Prolosite-Event"), request.Header.Get("X-Prolosite-Delivery")
	default:
		panic("relay: unknown source kind " + kind)
	}
}

func (h *Handler) countReceived(source, outcome string) {
	if h.metrics != nil {
		h.metrics.WebhooksReceived.WithLabelValues(source, outcome).Inc()
	}
}
