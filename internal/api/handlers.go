// Package api exposes HTTP handlers for the progress service.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"example.com/progress/internal/auth"
	"example.com/progress/internal/chart"
	"example.com/progress/internal/domain"
	"example.com/progress/internal/notify"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service   *domain.Service
	renderer  *chart.Renderer
	announcer notify.Announcer
	logger    *log.Logger
}

// NewHandler builds a Handler. A nil renderer disables the chart endpoints,
// a nil announcer disables goal announcements and a nil logger falls back to
// the default logger.
func NewHandler(service *domain.Service, renderer *chart.Renderer, announcer notify.Announcer, logger *log.Logger) *Handler {
	if announcer == nil {
		announcer = notify.Noop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, renderer: renderer, announcer: announcer, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/progress", h.progress)
	mux.HandleFunc("/v1/progress/summary", h.summary)
	mux.HandleFunc("/v1/progress/summary/chart", h.summaryChart)
	mux.HandleFunc("/v1/progress/leaderboard", h.leaderboard)
	mux.HandleFunc("/v1/progress/leaderboard/chart", h.leaderboardChart)
	mux.HandleFunc("/v1/exercises", h.exercises)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeProgressWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope progress:write required")
		return
	}

	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	user := domain.UserIdentity{
		ID:        req.UserID,
		FirstName: req.FirstName,
		Username:  req.Username,
	}

	result, err := h.service.Record(r.Context(), user, req.Exercise, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if result.JustCrossed() {
		n := domain.BuildGoalNotification(user, result.Exercise, result.NewTotal)
		if err := h.announcer.Announce(r.Context(), req.ChatID, n); err != nil {
			h.logger.Printf("announce failed (user=%d, exercise=%s): %v", user.ID, result.Exercise.ID, err)
		}
	}

	writeJSON(w, http.StatusCreated, RecordResponse{
		ExerciseID: result.Exercise.ID,
		Exercise:   result.Exercise.Name,
		Unit:       result.Exercise.Unit,
		Total:      result.NewTotal,
		Goal:       result.Exercise.Goal,
		Crossing:   result.Crossing.String(),
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.readAccess(w, r)
	if !ok {
		return
	}

	summaries, err := h.service.Summarize(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]SummaryEntry, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, toSummaryEntry(s))
	}
	writeJSON(w, http.StatusOK, SummaryResponse{UserID: userID, Items: items})
}

func (h *Handler) summaryChart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.readAccess(w, r)
	if !ok {
		return
	}
	if h.renderer == nil {
		writeError(w, http.StatusServiceUnavailable, "chart_disabled", "chart rendering is not configured")
		return
	}

	summaries, err := h.service.Summarize(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	title := r.URL.Query().Get("title")
	png, err := h.renderer.PersonalChart(title, summaries)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writePNG(w, png)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if !h.groupReadAccess(w, r) {
		return
	}

	standings, err := h.service.SummarizeAll(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]StandingsEntry, 0, len(standings))
	for _, st := range standings {
		entry := StandingsEntry{
			ExerciseID:   st.Exercise.ID,
			Exercise:     st.Exercise.Name,
			Unit:         st.Exercise.Unit,
			Goal:         st.Exercise.Goal,
			Participants: make([]ParticipantEntry, 0, len(st.Participants)),
		}
		for _, p := range st.Participants {
			entry.Participants = append(entry.Participants, ParticipantEntry{
				UserID:      p.UserID,
				DisplayName: p.DisplayName,
				Total:       p.Total,
				Crossed:     p.Crossed,
				LastUpdate:  timeOrNil(p.LastUpdate),
			})
		}
		items = append(items, entry)
	}
	writeJSON(w, http.StatusOK, StandingsResponse{Items: items})
}

func (h *Handler) leaderboardChart(w http.ResponseWriter, r *http.Request) {
	if !h.groupReadAccess(w, r) {
		return
	}
	if h.renderer == nil {
		writeError(w, http.StatusServiceUnavailable, "chart_disabled", "chart rendering is not configured")
		return
	}

	standings, err := h.service.SummarizeAll(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	png, err := h.renderer.GroupChart(standings)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writePNG(w, png)
}

func (h *Handler) exercises(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeProgressRead) && !claims.HasScope(auth.ScopeProgressWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope progress:read required")
		return
	}

	exercises := h.service.Catalog().Exercises()
	items := make([]ExerciseView, 0, len(exercises))
	for _, ex := range exercises {
		items = append(items, ExerciseView{
			ID:      ex.ID,
			Name:    ex.Name,
			Aliases: ex.Aliases,
			Unit:    ex.Unit,
			Goal:    ex.Goal,
		})
	}
	writeJSON(w, http.StatusOK, ExercisesResponse{Items: items})
}

// readAccess authorizes a personal read and extracts the user_id parameter.
func (h *Handler) readAccess(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if !h.groupReadAccess(w, r) {
		return 0, false
	}

	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid user_id parameter")
		return 0, false
	}
	return userID, true
}

func (h *Handler) groupReadAccess(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return false
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !claims.HasScope(auth.ScopeProgressRead) && !claims.HasScope(auth.ScopeProgressWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope progress:read required")
		return false
	}
	return true
}

// RecordRequest is the payload for POST /v1/progress.
type RecordRequest struct {
	UserID    int64  `json:"user_id"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
	Exercise  string `json:"exercise"`
	Amount    int64  `json:"amount"`
	ChatID    int64  `json:"chat_id,omitempty"`
}

// Validate ensures request correctness.
func (r RecordRequest) Validate() error {
	if r.UserID <= 0 {
		return errors.New("user_id must be > 0")
	}
	if r.Exercise == "" {
		return errors.New("exercise is required")
	}
	if r.Amount <= 0 {
		return errors.New("amount must be > 0")
	}
	return nil
}

// RecordResponse describes the response body for a recorded increment.
type RecordResponse struct {
	ExerciseID string `json:"exercise_id"`
	Exercise   string `json:"exercise"`
	Unit       string `json:"unit"`
	Total      int64  `json:"total"`
	Goal       int64  `json:"goal"`
	Crossing   string `json:"crossing"`
}

// SummaryEntry is one exercise row of a personal summary.
type SummaryEntry struct {
	ExerciseID    string     `json:"exercise_id"`
	Exercise      string     `json:"exercise"`
	Unit          string     `json:"unit"`
	Total         int64      `json:"total"`
	Goal          int64      `json:"goal"`
	PercentOfGoal float64    `json:"percent_of_goal"`
	Crossed       bool       `json:"crossed"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// SummaryResponse packages a personal summary.
type SummaryResponse struct {
	UserID int64          `json:"user_id"`
	Items  []SummaryEntry `json:"items"`
}

// ParticipantEntry is one member row inside a leaderboard section.
type ParticipantEntry struct {
	UserID      int64      `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Total       int64      `json:"total"`
	Crossed     bool       `json:"crossed"`
	LastUpdate  *time.Time `json:"last_update,omitempty"`
}

// StandingsEntry is the leaderboard section for one exercise.
type StandingsEntry struct {
	ExerciseID   string             `json:"exercise_id"`
	Exercise     string             `json:"exercise"`
	Unit         string             `json:"unit"`
	Goal         int64              `json:"goal"`
	Participants []ParticipantEntry `json:"participants"`
}

// StandingsResponse packages the group leaderboard.
type StandingsResponse struct {
	Items []StandingsEntry `json:"items"`
}

// ExerciseView describes one catalog entry.
type ExerciseView struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
	Unit    string   `json:"unit"`
	Goal    int64    `json:"goal"`
}

// ExercisesResponse lists the catalog.
type ExercisesResponse struct {
	Items []ExerciseView `json:"items"`
}

func toSummaryEntry(s domain.ExerciseSummary) SummaryEntry {
	return SummaryEntry{
		ExerciseID:    s.Exercise.ID,
		Exercise:      s.Exercise.Name,
		Unit:          s.Exercise.Unit,
		Total:         s.Total,
		Goal:          s.Goal,
		PercentOfGoal: s.PercentOfGoal,
		Crossed:       s.Crossed,
		UpdatedAt:     timeOrNil(s.UpdatedAt),
	}
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidUser):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrUnknownExercise):
		writeError(w, http.StatusBadRequest, "unknown_exercise", err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "store temporarily unavailable")
	case errors.Is(err, domain.ErrCorruptState):
		writeError(w, http.StatusInternalServerError, "corrupt_state", "stored progress state is corrupt")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
