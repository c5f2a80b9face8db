package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPHandler exposes read-only audit queries.
type HTTPHandler struct {
	service Service
}

func NewHTTPHandler(service Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// decisionItem 查询响应里的一条决策记录
type decisionItem struct {
	Session string    `json:"session"`
	Agent   string    `json:"agent"`
	Seq     uint64    `json:"seq"`
	Obs     []float64 `json:"obs"`
	Action  int       `json:"action"`
	Error   string    `json:"error,omitempty"`
	Elapsed string    `json:"elapsed"`
	At      time.Time `json:"at"`
}

// HandleRecent serves GET /audit/recent?session=<id>&limit=<n>.
func (h *HTTPHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session is required")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.service.RecentDecisions(r.Context(), sessionID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}

	items := make([]decisionItem, 0, len(records))
	for _, rec := range records {
		items = append(items, decisionItem{
			Session: rec.Session,
			Agent:   rec.Agent,
			Seq:     rec.Seq,
			Obs:     rec.Obs,
			Action:  rec.Action,
			Error:   rec.Err,
			Elapsed: rec.Elapsed.String(),
			At:      rec.At,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
