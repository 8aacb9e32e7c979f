package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/trending/internal/app"
	"github.com/okian/trending/internal/domain/trending"
	"github.com/okian/trending/internal/domain/types"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	Rank(ctx context.Context, itemID string) (Entry, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps      RankDependencies
	precision int
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies, precision int) *RankHandler {
	return &RankHandler{deps: deps, precision: precision}
}

// HandleGetRank handles GET /trending/{item_id} requests.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"

	itemID, err := pathParam(r, "itemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", badRequest(op, "malformed item_id: %v", err))
		return
	}
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", badRequest(op, "item_id is required"))
		return
	}
	entry, err := h.deps.Rank(r.Context(), itemID)
	if err != nil {
		writeReadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromItemScore(entry, h.precision))
}

// pathParam returns the decoded value of a route parameter. chi matches on
// RawPath when the request carries escapes like %2F, leaving them in the value.
func pathParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

// writeReadError maps query failures to status codes.
func writeReadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trending.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, trending.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, trending.ErrStoreUnavailable), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
