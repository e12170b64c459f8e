package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/vai-examiner/pkg/gateway/live/sessions"
	"github.com/vango-go/vai-examiner/pkg/gateway/mw"
)

// SessionsHandler reports the exams currently in progress.
type SessionsHandler struct {
	Sessions *sessions.Tracker
}

type sessionsResponse struct {
	Count    int             `json:"count"`
	Sessions []sessions.Info `json:"sessions"`
}

func (h SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		reqID, _ := mw.RequestIDFrom(r.Context())
		mw.WriteJSONError(w, http.StatusMethodNotAllowed, reqID, "method_not_allowed", "method not allowed")
		return
	}
	list := h.Sessions.Snapshot()
	if list == nil {
		list = []sessions.Info{}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(sessionsResponse{Count: len(list), Sessions: list})
}
