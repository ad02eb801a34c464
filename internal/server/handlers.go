package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/quillhq/quill/internal/db"
	"github.com/quillhq/quill/internal/httputil"
	"github.com/quillhq/quill/internal/hub"
)

const version = "0.1.0"

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.OkJSON(w, &healthResponse{
			Status:    "healthy",
			Version:   version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

type overlayStateResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
}

func activateOverlayHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Supervisor.Activate(r.Context()); err != nil {
			if errors.Is(err, hub.ErrAgentFailedToStart) {
				httputil.ErrorWithCode(w, http.StatusBadGateway, err.Error())
				return
			}
			httputil.ErrorWithCode(w, http.StatusInternalServerError, err.Error())
			return
		}
		st := deps.Supervisor.Status()
		httputil.OkJSON(w, &overlayStateResponse{
			Status:    string(st.State),
			SessionID: st.SessionID,
		})
	}
}

func deactivateOverlayHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Supervisor.Deactivate(r.Context()); err != nil {
			httputil.ErrorWithCode(w, http.StatusInternalServerError, err.Error())
			return
		}
		httputil.OkJSON(w, &overlayStateResponse{Status: string(hub.StateInactive)})
	}
}

func overlayStatusHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Supervisor.Status()
		httputil.OkJSON(w, &st)
	}
}

type draftRequest struct {
	Context string `json:"context"`
	Count   int    `json:"count,omitempty"`
}

type draftResponse struct {
	Suggestions []string `json:"suggestions"`
	Provider    string   `json:"provider"`
}

func draftHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req draftRequest
		if err := httputil.ParseJSON(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		if deps.Engine == nil {
			httputil.ErrorWithCode(w, http.StatusServiceUnavailable, "no suggestion provider configured")
			return
		}

		replies := deps.Engine.Generate(r.Context(), req.Context)
		if req.Count > 0 && req.Count < len(replies) {
			replies = replies[:req.Count]
		}

		httputil.OkJSON(w, &draftResponse{
			Suggestions: replies,
			Provider:    deps.Engine.ProviderID(),
		})
	}
}

type selectionsResponse struct {
	Selections []db.Selection `json:"selections"`
}

func listSelectionsHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httputil.ErrorWithCode(w, http.StatusServiceUnavailable, "selection history not available")
			return
		}

		limit := httputil.QueryInt(r, "limit", 20)
		rows, err := deps.Store.ListSelections(r.Context(), limit)
		if err != nil {
			httputil.ErrorWithCode(w, http.StatusInternalServerError, err.Error())
			return
		}
		if rows == nil {
			rows = []db.Selection{}
		}

		httputil.OkJSON(w, &selectionsResponse{Selections: rows})
	}
}
