package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/trending/internal/domain/types"
)

// TrendingDependencies defines the interface for top-K reads.
type TrendingDependencies interface {
	Trending(ctx context.Context, count int) ([]Entry, error)
}

// TrendingHandler handles trending requests.
type TrendingHandler struct {
	deps   TrendingDependencies
	limits Limits
}

// NewTrendingHandler creates a new trending handler.
func NewTrendingHandler(deps TrendingDependencies, limits Limits) *TrendingHandler {
	return &TrendingHandler{deps: deps, limits: limits}
}

// HandleGetTrending handles GET /trending?count=N requests.
func (h *TrendingHandler) HandleGetTrending(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_trending"

	count := h.limits.DefaultCount
	if raw := strings.TrimSpace(r.URL.Query().Get("count")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", badRequest(op, "count must be an integer"))
			return
		}
		count = n
	}
	if count > h.limits.MaxCount {
		writeError(w, http.StatusBadRequest, "limit_exceeded",
			badRequest(op, "count must not exceed %d", h.limits.MaxCount))
		return
	}

	entries, err := h.deps.Trending(r.Context(), count)
	if err != nil {
		writeReadError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, types.FromItemScores(entries, h.limits.ScorePrecision))
}
