package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/trending/internal/adapters/mq/queue"
	service "github.com/okian/trending/internal/app"
	"github.com/okian/trending/internal/domain/model"
	"github.com/okian/trending/internal/domain/trending"
)

const maxEventBody = 1 << 20

// EventDependencies defines the interface for event ingestion.
type EventDependencies interface {
	Submit(ctx context.Context, ev model.Event) (service.SubmitResult, error)
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// addEventRequest keeps numbers raw so both JSON numbers and numeric strings are accepted.
type addEventRequest struct {
	ItemID    *string         `json:"item_id"`
	EventTime json.RawMessage `json:"event_time"`
	Weight    json.RawMessage `json:"weight"`
	EventID   string          `json:"event_id"`
}

func (req addEventRequest) event(op string) (model.Event, error) {
	const required = "item_id and event_time are required"

	if req.ItemID == nil || *req.ItemID == "" {
		return model.Event{}, badRequest(op, required)
	}
	ts, ok, err := parseNumber(req.EventTime)
	if !ok {
		return model.Event{}, badRequest(op, required)
	}
	if err != nil {
		return model.Event{}, badRequest(op, "event_time: %v", err)
	}
	eventTime, err := truncate(ts)
	if err != nil {
		return model.Event{}, badRequest(op, "event_time: %v", err)
	}

	weight := model.DefaultWeight
	if w, ok, err := parseNumber(req.Weight); ok {
		if err != nil {
			return model.Event{}, badRequest(op, "weight: %v", err)
		}
		weight = w.float
	}

	return model.Event{
		EventID:   req.EventID,
		ItemID:    *req.ItemID,
		EventTime: eventTime,
		Weight:    weight,
	}, nil
}

// number keeps the integer form when the literal is one, so large
// timestamps survive without a float round trip.
type number struct {
	float float64
	int   int64
	isInt bool
}

// parseNumber reads a JSON number or numeric string. ok is false when the
// field is absent or null.
func parseNumber(raw json.RawMessage) (n number, ok bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return number{}, false, nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return number{}, true, errors.New("not a number")
		}
		text = strings.TrimSpace(text)
	} else if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return number{}, true, errors.New("not a number")
	}

	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return number{float: float64(i), int: i, isInt: true}, true, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return number{}, true, fmt.Errorf("not a number: %q", text)
	}
	return number{float: f}, true, nil
}

// truncate converts to whole seconds, dropping any fraction.
func truncate(n number) (int64, error) {
	if n.isInt {
		return n.int, nil
	}
	t := math.Trunc(n.float)
	if math.IsNaN(t) || t < math.MinInt64 || t >= math.MaxInt64 {
		return 0, fmt.Errorf("out of range: %v", n.float)
	}
	return int64(t), nil
}

// HandleAddEvent handles POST /add_event requests.
func (h *EventsHandler) HandleAddEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_event"

	var req addEventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("invalid json: %w", err)))
		return
	}
	ev, err := req.event(op)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	res, err := h.deps.Submit(r.Context(), ev)
	if err != nil {
		writeSubmitError(w, op, err)
		return
	}

	switch res.Status {
	case service.StatusDuplicate:
		writeJSON(w, http.StatusOK, ackResponse{Status: res.Status, Message: "Event already processed", Duplicate: true})
	case service.StatusQueued:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: res.Status, Message: "Event queued"})
	default:
		writeJSON(w, http.StatusOK, ackResponse{Status: service.StatusAccepted, Message: "Event added successfully"})
	}
}

func writeSubmitError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, trending.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrInFlight):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "in_flight", err)
	case errors.Is(err, trending.ErrStoreUnavailable),
		errors.Is(err, queue.ErrClosed),
		errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
