package daemon

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/practice"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/google/uuid"
)

const (
	defaultDailyCount = 3
	defaultPageSize   = 20
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.practice.Status(r.Context())
	status := "running"
	if !st.BackendAvailable || !st.StorageOK {
		status = "degraded"
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":            status,
		"version":           s.version,
		"backend":           st.Backend,
		"backend_available": st.BackendAvailable,
		"storage":           s.cfg.Storage.Driver,
		"storage_ok":        st.StorageOK,
		"storage_error":     st.StorageError,
		"pool":              st.Pool,
	})
}

func (s *Server) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects := s.practice.Subjects()
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"subjects": subjects,
		"count":    len(subjects),
	})
}

// Challenge handlers

func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req practice.NewChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Subject == "" {
		s.jsonError(w, http.StatusBadRequest, "subject is required", nil)
		return
	}

	view, err := s.practice.NewChallenge(r.Context(), s.userID(r), req)
	if err != nil {
		s.serviceError(w, "failed to generate challenge", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, view)
}

func (s *Server) handleDailyChallenges(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count", defaultDailyCount)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid count", err)
		return
	}

	daily, err := s.practice.Daily(r.Context(), s.userID(r), count)
	if err != nil {
		s.serviceError(w, "failed to get daily challenges", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, daily)
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := s.challengeID(w, r)
	if !ok {
		return
	}

	view, err := s.practice.GetChallenge(r.Context(), id)
	if err != nil {
		s.serviceError(w, "failed to get challenge", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}

func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	id, ok := s.challengeID(w, r)
	if !ok {
		return
	}

	var req struct {
		CurrentHint int `json:"current_hint"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	hint, err := s.practice.Hint(r.Context(), id, req.CurrentHint)
	if err != nil {
		s.serviceError(w, "failed to get hint", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, hint)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.challengeID(w, r)
	if !ok {
		return
	}

	var req practice.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	req.ChallengeID = id

	result, err := s.practice.Submit(r.Context(), s.userID(r), req)
	if err != nil {
		s.serviceError(w, "failed to evaluate submission", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) challengeID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid challenge id", err)
		return uuid.Nil, false
	}
	return id, true
}

// Progress handlers

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid page", err)
		return
	}
	size, err := queryInt(r, "page_size", defaultPageSize)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid page_size", err)
		return
	}

	history, err := s.practice.History(r.Context(), s.userID(r), page, size)
	if err != nil {
		s.serviceError(w, "failed to get history", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, history)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.practice.Overview(r.Context(), s.userID(r))
	if err != nil {
		s.serviceError(w, "failed to get progress", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, overview)
}

func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	weekly, err := s.practice.WeeklyActivity(r.Context(), s.userID(r), s.practice.Today())
	if err != nil {
		s.serviceError(w, "failed to get weekly activity", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, weekly)
}

func (s *Server) handleSubjectProgress(w http.ResponseWriter, r *http.Request) {
	detail, err := s.practice.SubjectDetail(r.Context(), s.userID(r), r.PathValue("subject"))
	if err != nil {
		s.serviceError(w, "failed to get subject progress", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, detail)
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	streak, err := s.practice.Streak(r.Context(), s.userID(r))
	if err != nil {
		s.serviceError(w, "failed to get streak", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, streak)
}

func (s *Server) handleDifficulty(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	d, err := s.practice.NextDifficulty(r.Context(), s.userID(r), subject)
	if err != nil {
		s.serviceError(w, "failed to compute difficulty", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"subject":    subject,
		"difficulty": d,
	})
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	xp, err := strconv.Atoi(r.PathValue("xp"))
	if err != nil || xp < 0 {
		s.jsonError(w, http.StatusBadRequest, "xp must be a non-negative integer", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, progression.ComputeLevelProgress(xp))
}

// queryInt reads an integer query parameter, falling back to def when absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewInvalidInput(key, "not an integer: %q", raw)
	}
	return v, nil
}
