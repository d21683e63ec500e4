package webhook

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattjoyce/hookbus/internal/events"
)

// Handler authenticates deliveries sent to one path and emits them.
// It keeps no per-request state and is safe for concurrent use.
type Handler struct {
	cfg     Config
	secret  []byte
	emitter Emitter
	logger  *slog.Logger
}

// New creates a handler. Defaults are applied to cfg once, here.
func New(cfg Config, emitter Emitter, logger *slog.Logger) (*Handler, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("webhook path is required")
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return nil, fmt.Errorf("webhook path %q must start with /", cfg.Path)
	}
	if emitter == nil {
		return nil, fmt.Errorf("webhook emitter is nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	cfg = cfg.withDefaults()
	return &Handler{
		cfg:     cfg,
		secret:  []byte(cfg.Secret),
		emitter: emitter,
		logger:  logger,
	}, nil
}

// Path returns the path the handler intercepts.
func (h *Handler) Path() string {
	return h.cfg.Path
}

// Middleware intercepts POST requests to the configured path and passes
// everything else to next untouched.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.matches(r) {
			next.ServeHTTP(w, r)
			return
		}
		h.handleDelivery(w, r)
	})
}

// ServeHTTP handles deliveries directly; other requests get 404.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.matches(r) {
		http.NotFound(w, r)
		return
	}
	h.handleDelivery(w, r)
}

func (h *Handler) matches(r *http.Request) bool {
	return r.Method == http.MethodPost && r.URL.Path == h.cfg.Path
}

// handleDelivery runs the checks cheapest first; any failure rejects the
// request and skips the rest.
func (h *Handler) handleDelivery(w http.ResponseWriter, r *http.Request) {
	delivery := r.Header.Get(h.cfg.DeliveryHeader)
	if delivery == "" {
		h.reject(w, r, ErrNoDelivery)
		return
	}

	eventType := r.Header.Get(h.cfg.EventHeader)
	if eventType == "" {
		h.reject(w, r, ErrNoEvent)
		return
	}

	signature := r.Header.Get(h.cfg.SignatureHeader)
	if len(h.secret) > 0 && signature == "" {
		h.reject(w, r, ErrNoSignature)
		return
	}

	body, err := h.readBody(w, r)
	if err != nil {
		h.reject(w, r, err)
		return
	}

	if len(h.secret) > 0 && !Verify(h.secret, body.raw, signature, h.cfg.SignData) {
		h.reject(w, r, ErrBadSignature)
		return
	}

	payload := body.payload
	if payload == nil {
		payload, err = decodePayload(body.raw, r.Header.Get("Content-Type"))
		if err != nil {
			h.reject(w, r, err)
			return
		}
	}

	ev := events.Event{
		ID:         uuid.NewString(),
		Delivery:   delivery,
		Type:       eventType,
		Source:     h.cfg.SourceKey(payload),
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("webhook.event", ev.Type),
		attribute.String("webhook.delivery", ev.Delivery),
		attribute.String("webhook.source", ev.Source),
	)
	h.emit(r, ev)

	h.logger.Info("webhook delivery accepted",
		"path", r.URL.Path,
		"event", ev.Type,
		"delivery", ev.Delivery,
		"source", ev.Source,
		"event_id", ev.ID,
		"request_id", middleware.GetReqID(r.Context()),
	)
	respondJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// emit publishes ev under the wildcard, its type and its source, in that order.
func (h *Handler) emit(r *http.Request, ev events.Event) {
	keys := []string{events.Wildcard, ev.Type}
	if ev.Source != "" && ev.Source != events.Wildcard {
		keys = append(keys, ev.Source)
	}

	for _, key := range keys {
		if err := h.emitter.Emit(r.Context(), key, ev); err != nil {
			h.logger.Error("failed to emit webhook event",
				"key", key,
				"event_id", ev.ID,
				"error", err,
			)
		}
	}
}

// reject answers 400 with the message and notifies error listeners.
func (h *Handler) reject(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("webhook delivery rejected",
		"path", r.URL.Path,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)

	respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	h.emitter.Fail(events.Failure{Err: err, Request: r, Response: w})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
