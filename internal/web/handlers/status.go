package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

// PresenceSource reports who is currently present.
type PresenceSource interface {
	Present() []identity.Identity
}

// StatsSource reports attendance counters.
type StatsSource interface {
	Stats() attendance.Stats
}

// StatusHandler serves read-only views of the running monitor.
type StatusHandler struct {
	runID    string
	presence PresenceSource
	stats    StatsSource
	logs     database.LogReader
}

// NewStatusHandler creates a status handler. stats may be nil.
func NewStatusHandler(runID string, presence PresenceSource, stats StatsSource, logs database.LogReader) *StatusHandler {
	return &StatusHandler{runID: runID, presence: presence, stats: stats, logs: logs}
}

// PresenceResponse is the body of GET /presence.
type PresenceResponse struct {
	RunID   string              `json:"run_id"`
	Present []identity.Identity `json:"present"`
	Stats   *attendance.Stats   `json:"stats,omitempty"`
}

// Presence returns the identities currently present.
func (h *StatusHandler) Presence(w http.ResponseWriter, r *http.Request) {
	resp := PresenceResponse{RunID: h.runID, Present: h.presence.Present()}
	if h.stats != nil {
		s := h.stats.Stats()
		resp.Stats = &s
	}
	respondJSON(w, http.StatusOK, resp)
}

// Logs lists log rows newest first. Query parameters: empid, open, limit.
func (h *StatusHandler) Logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := database.LogFilter{
		EmpID: identity.Identity(strings.TrimSpace(q.Get("empid"))),
		Limit: constants.DefaultLogLimit,
	}
	if v := q.Get("open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid open parameter")
			return
		}
		filter.OpenOnly = open
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		filter.Limit = limit
	}

	rows, err := h.logs.ListLogs(r.Context(), filter)
	if err != nil {
		log.Printf("Listing logs failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}
	if rows == nil {
		rows = []database.LogRow{}
	}
	respondJSON(w, http.StatusOK, rows)
}
