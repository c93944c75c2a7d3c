package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/checkin"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/render"
)

type listCheckinsResponse struct {
	Sessions []render.CheckinState `json:"sessions"`
	Count    int                   `json:"count"`
}

// handleListCheckins lists running sessions, oldest first. Optional
// channel_id and creator_id query parameters narrow the result.
func (s *Server) handleListCheckins(w http.ResponseWriter, r *http.Request) {
	channelID := strings.TrimSpace(r.URL.Query().Get("channel_id"))
	creatorID := strings.TrimSpace(r.URL.Query().Get("creator_id"))

	sessions := make([]render.CheckinState, 0)
	for _, st := range s.deps.Checkins.Sessions() {
		if channelID != "" && st.ChannelID != channelID {
			continue
		}
		if creatorID != "" && st.Creator.ID != creatorID {
			continue
		}
		sessions = append(sessions, st)
	}
	respondJSON(w, http.StatusOK, listCheckinsResponse{Sessions: sessions, Count: len(sessions)})
}

func (s *Server) handleGetCheckin(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	st, err := s.deps.Checkins.Session(id)
	if errors.Is(err, checkin.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		respondError(w, http.StatusNotImplemented, "tasks_disabled", "task list is not configured")
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query parameter user_id is required")
		return
	}
	list, err := s.deps.Tasks.List(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "task_list_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user_id": userID, "tasks": nonNil(list), "count": len(list)})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	if s.deps.Groups == nil {
		respondError(w, http.StatusNotImplemented, "groups_disabled", "study groups are not configured")
		return
	}
	guildID := strings.TrimSpace(r.URL.Query().Get("guild_id"))
	if guildID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query parameter guild_id is required")
		return
	}
	list, err := s.deps.Groups.List(r.Context(), guildID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "group_list_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"guild_id": guildID, "groups": nonNil(list), "count": len(list)})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Metrics.GatewayLatencySnapshot()
	if op := strings.TrimSpace(r.URL.Query().Get("op")); op != "" {
		filtered := snap.Ops[:0:0]
		for _, st := range snap.Ops {
			if st.Op == op {
				filtered = append(filtered, st)
			}
		}
		snap.Ops = filtered
	}
	if raw := r.URL.Query().Get("min_samples"); raw != "" {
		minSamples, err := strconv.Atoi(raw)
		if err != nil || minSamples < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "min_samples must be a non-negative integer")
			return
		}
		filtered := snap.Ops[:0:0]
		for _, st := range snap.Ops {
			if st.Samples >= minSamples {
				filtered = append(filtered, st)
			}
		}
		snap.Ops = filtered
	}
	respondJSON(w, http.StatusOK, snap)
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
