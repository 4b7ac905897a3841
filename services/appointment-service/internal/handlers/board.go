package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/garageboard/garageboard/libs/httpx"
	"github.com/garageboard/garageboard/services/appointment-service/internal/board"
	"github.com/garageboard/garageboard/services/appointment-service/internal/tenant"
)

type BoardReader interface {
	Board(ctx context.Context, tenantID string, day time.Time) (board.Board, error)
	Stats(ctx context.Context, tenantID string, day time.Time) (board.Stats, error)
}

type BoardHandler struct {
	reader BoardReader
	logger *slog.Logger
	now    func() time.Time
}

func NewBoardHandler(reader BoardReader, logger *slog.Logger) *BoardHandler {
	return &BoardHandler{reader: reader, logger: logger, now: time.Now}
}

func (h *BoardHandler) Board(w http.ResponseWriter, r *http.Request) {
	tenantID, day, ok := h.boardQuery(w, r)
	if !ok {
		return
	}

	b, err := h.reader.Board(r.Context(), tenantID, day)
	if err != nil {
		h.logger.Error("board read failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "board read failed")
		return
	}
	httpx.WriteData(w, r, http.StatusOK, b)
}

func (h *BoardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenantID, day, ok := h.boardQuery(w, r)
	if !ok {
		return
	}

	stats, err := h.reader.Stats(r.Context(), tenantID, day)
	if err != nil {
		h.logger.Error("stats read failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "stats read failed")
		return
	}
	httpx.WriteData(w, r, http.StatusOK, stats)
}

// boardQuery resolves the tenant and the board date. A missing date means
// today; a malformed one is a validation error.
func (h *BoardHandler) boardQuery(w http.ResponseWriter, r *http.Request) (string, time.Time, bool) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusBadRequest, "tenant_context_missing", "no tenant resolved for request")
		return "", time.Time{}, false
	}

	day := h.now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "date must be YYYY-MM-DD")
			return "", time.Time{}, false
		}
		day = parsed
	}
	return tenantID, day, true
}
